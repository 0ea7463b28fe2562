package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Kind identifies how a listener serves.
type Kind int

// Listener kinds.
const (
	KindPlain Kind = iota
	KindTLS
	KindACME
	KindRedirect
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindTLS:
		return "tls"
	case KindACME:
		return "acme"
	case KindRedirect:
		return "redirect"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Listener is one bind target.
type Listener struct {
	ACME      *ACMEConfig
	Addr      string
	CertFile  string
	KeyFile   string
	Kind      Kind
	HTTPSPort int
}

// Plain serves HTTP on addr.
func Plain(addr string) Listener {
	return Listener{Kind: KindPlain, Addr: addr}
}

// TLS serves HTTPS on addr with the certificate and key at the given paths.
func TLS(addr, certFile, keyFile string) Listener {
	return Listener{Kind: KindTLS, Addr: addr, CertFile: certFile, KeyFile: keyFile}
}

// ACME serves HTTPS on addr with certificates issued automatically.
func ACME(addr string, cfg ACMEConfig) Listener {
	return Listener{Kind: KindACME, Addr: addr, ACME: &cfg}
}

// Redirect serves HTTP on addr and redirects every request to HTTPS on
// httpsPort. Port 443 is omitted from the target URL.
func Redirect(addr string, httpsPort int) Listener {
	return Listener{Kind: KindRedirect, Addr: addr, HTTPSPort: httpsPort}
}

// Validate checks the listener configuration without touching the network
// or the file system.
func (l Listener) Validate() error {
	if err := ValidateAddr(l.Addr); err != nil {
		return err
	}

	switch l.Kind {
	case KindPlain:
	case KindTLS:
		if l.CertFile == "" || l.KeyFile == "" {
			return fmt.Errorf("%w: %s listener on %s needs a certificate and a key", ErrInvalidTLS, l.Kind, l.Addr)
		}
	case KindACME:
		if l.ACME == nil || len(l.ACME.Domains) == 0 {
			return fmt.Errorf("%w: no domains for listener on %s", ErrInvalidACME, l.Addr)
		}
	case KindRedirect:
		if l.HTTPSPort < 0 || l.HTTPSPort > 65535 {
			return fmt.Errorf("%w: https port %d", ErrInvalidAddress, l.HTTPSPort)
		}
	default:
		return fmt.Errorf("%w: unknown listener kind %s", ErrInvalidAddress, l.Kind)
	}

	return nil
}

// ValidateAddr checks that addr is a host:port pair with a numeric port.
// The host may be empty to listen on all interfaces.
func ValidateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.Join(ErrInvalidAddress, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
	}
	return nil
}
