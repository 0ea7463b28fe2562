package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// DefaultACMECacheDir is where issued certificates are cached when
// ACMEConfig.CacheDir is empty.
const DefaultACMECacheDir = "data/certs"

// ACMEConfig configures automatic certificate issuance.
type ACMEConfig struct {
	// Email is the contact address registered with the CA. Optional.
	Email string
	// CacheDir keeps account keys and certificates across restarts.
	CacheDir string
	// DirectoryURL selects the CA. Defaults to Let's Encrypt production.
	DirectoryURL string
	// Domains lists the host names certificates are issued for.
	Domains []string
	// RenewBefore renews certificates this long before they expire.
	// Zero uses the autocert default of 30 days.
	RenewBefore time.Duration
}

// CertEvent reports the outcome of a certificate lookup on an ACME listener.
type CertEvent struct {
	Time    time.Time
	Expires time.Time
	Err     error
	Domain  string
}

// certSource wraps an autocert manager and emits a CertEvent per lookup.
type certSource struct {
	manager *autocert.Manager
	events  chan CertEvent
}

func newCertSource(cfg ACMEConfig) *certSource {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultACMECacheDir
	}

	m := &autocert.Manager{
		Prompt:      autocert.AcceptTOS,
		Cache:       autocert.DirCache(cacheDir),
		HostPolicy:  autocert.HostWhitelist(cfg.Domains...),
		Email:       cfg.Email,
		RenewBefore: cfg.RenewBefore,
	}
	if cfg.DirectoryURL != "" {
		m.Client = &acme.Client{DirectoryURL: cfg.DirectoryURL}
	}

	return &certSource{
		manager: m,
		events:  make(chan CertEvent, 16),
	}
}

// TLSConfig returns a TLS config that obtains certificates on demand,
// including tls-alpn-01 challenge support.
func (c *certSource) TLSConfig() *tls.Config {
	cfg := c.manager.TLSConfig()
	cfg.GetCertificate = c.getCertificate
	return cfg
}

func (c *certSource) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, err := c.manager.GetCertificate(hello)

	ev := CertEvent{Time: time.Now(), Domain: hello.ServerName, Err: err}
	if cert != nil && cert.Leaf != nil {
		ev.Expires = cert.Leaf.NotAfter
	}

	// Lookups must never block handshakes on a slow consumer.
	select {
	case c.events <- ev:
	default:
	}

	return cert, err
}

// watch logs certificate events until ctx is done.
// Failures are logged and never stop the listener; the next handshake
// retries issuance.
func (c *certSource) watch(ctx context.Context, log *slog.Logger) {
	known := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if ev.Err != nil {
				log.Error("acme certificate error",
					slog.String("domain", ev.Domain),
					slog.Any("error", ev.Err),
				)
				continue
			}
			if known[ev.Domain].Equal(ev.Expires) {
				continue
			}
			known[ev.Domain] = ev.Expires
			log.Info("acme certificate ready",
				slog.String("domain", ev.Domain),
				slog.Time("expires", ev.Expires),
			)
		}
	}
}
