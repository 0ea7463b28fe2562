package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

type started struct {
	err  chan error
	addr chan net.Addr
}

func runServer(t *testing.T, ctx context.Context, h http.Handler, coord *shutdown.Coordinator, ls ...Listener) started {
	t.Helper()

	st := started{err: make(chan error, 1), addr: make(chan net.Addr, len(ls))}
	srv := New(h, coord,
		WithListeners(ls...),
		WithOnBound(func(_ Listener, addr net.Addr) { st.addr <- addr }),
	)
	go func() { st.err <- srv.Run(ctx) }()
	return st
}

func waitBound(t *testing.T, st started) net.Addr {
	t.Helper()
	select {
	case addr := <-st.addr:
		return addr
	case err := <-st.err:
		t.Fatalf("server stopped before binding: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not bind")
	}
	return nil
}

func waitStopped(t *testing.T, st started) error {
	t.Helper()
	select {
	case err := <-st.err:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	return nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRun_PlainServesUntilDrained(t *testing.T) {
	t.Parallel()

	coord := shutdown.New()
	st := runServer(t, context.Background(), okHandler(), coord, Plain("127.0.0.1:0"))
	addr := waitBound(t, st)

	client := &http.Client{Timeout: time.Second}
	defer client.CloseIdleConnections()

	resp, err := client.Get("http://" + addr.String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 1, coord.Handles())

	coord.Initiate()
	require.NoError(t, waitStopped(t, st))

	_, err = client.Get("http://" + addr.String() + "/")
	assert.Error(t, err)
}

func TestRun_InFlightRequestFinishesWithinGrace(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte("done"))
	})

	coord := shutdown.New()
	st := runServer(t, context.Background(), h, coord, Plain("127.0.0.1:0"))
	addr := waitBound(t, st)

	type result struct {
		body string
		err  error
	}
	res := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + addr.String() + "/slow")
		if err != nil {
			res <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		res <- result{body: string(b), err: err}
	}()

	<-entered
	go coord.Initiate()
	<-coord.Initiated()
	time.Sleep(100 * time.Millisecond)
	close(release)

	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, "done", r.body)
	require.NoError(t, waitStopped(t, st))
}

func TestRun_GraceExpiredClosesConnections(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	coord := shutdown.New()
	st := runServer(t, context.Background(), h, coord, Plain("127.0.0.1:0"))
	addr := waitBound(t, st)

	go func() {
		resp, err := http.Get("http://" + addr.String() + "/stuck")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	<-entered

	start := time.Now()
	coord.Initiate()
	require.NoError(t, waitStopped(t, st))
	assert.GreaterOrEqual(t, time.Since(start), shutdown.DrainGracePeriod-50*time.Millisecond)
}

func TestRun_AfterShutdownDoesNotServe(t *testing.T) {
	t.Parallel()

	coord := shutdown.New()
	coord.Initiate()

	st := runServer(t, context.Background(), okHandler(), coord, Plain("127.0.0.1:0"))
	require.NoError(t, waitStopped(t, st))

	select {
	case <-st.addr:
		t.Fatal("listener bound after shutdown")
	default:
	}
	assert.Equal(t, 1, coord.Handles())
}

func TestRun_ContextCancelDrains(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	coord := shutdown.New()
	st := runServer(t, ctx, okHandler(), coord, Plain("127.0.0.1:0"), Redirect("127.0.0.1:0", 443))
	waitBound(t, st)
	waitBound(t, st)

	cancel()
	require.NoError(t, waitStopped(t, st))
	assert.False(t, coord.InProgress())
}

func TestRun_BindError(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	coord := shutdown.New()
	st := runServer(t, context.Background(), okHandler(), coord,
		Plain("127.0.0.1:0"),
		Plain(taken.Addr().String()),
	)

	err = waitStopped(t, st)
	require.ErrorIs(t, err, ErrBind)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		listeners []Listener
		want      error
	}{
		{"no listeners", nil, ErrNoListeners},
		{"missing port", []Listener{Plain("localhost")}, ErrInvalidAddress},
		{"bad port", []Listener{Plain(":http-alt")}, ErrInvalidAddress},
		{"port out of range", []Listener{Plain(":70000")}, ErrInvalidAddress},
		{"tls without files", []Listener{TLS(":0", "", "")}, ErrInvalidTLS},
		{"tls files missing", []Listener{TLS("127.0.0.1:0", "/nonexistent/cert.pem", "/nonexistent/key.pem")}, ErrInvalidTLS},
		{"acme without domains", []Listener{ACME(":0", ACMEConfig{})}, ErrInvalidACME},
		{"redirect port", []Listener{Redirect(":0", 70000)}, ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := New(okHandler(), shutdown.New(), WithListeners(tt.listeners...))
			err := srv.Run(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRun_TLS(t *testing.T) {
	t.Parallel()

	certFile, keyFile := writeSelfSigned(t)

	coord := shutdown.New()
	st := runServer(t, context.Background(), okHandler(), coord, TLS("127.0.0.1:0", certFile, keyFile))
	addr := waitBound(t, st)

	client := &http.Client{
		Timeout: time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
		},
	}
	defer client.CloseIdleConnections()

	resp, err := client.Get("https://" + addr.String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))
	assert.NotNil(t, resp.TLS)

	coord.Initiate()
	require.NoError(t, waitStopped(t, st))
}

func TestListener_Kinds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", Plain(":80").Kind.String())
	assert.Equal(t, "tls", TLS(":443", "c", "k").Kind.String())
	assert.Equal(t, "acme", ACME(":443", ACMEConfig{Domains: []string{"a.test"}}).Kind.String())
	assert.Equal(t, "redirect", Redirect(":80", 443).Kind.String())
	assert.Equal(t, "kind(9)", Kind(9).String())

	require.NoError(t, ACME(":443", ACMEConfig{Domains: []string{"a.test"}}).Validate())
	require.NoError(t, ValidateAddr("[::1]:8080"))
}

func TestCertSource_ErrorsAreReportedNotFatal(t *testing.T) {
	t.Parallel()

	src := newCertSource(ACMEConfig{Domains: []string{"example.test"}, CacheDir: t.TempDir()})

	_, err := src.getCertificate(&tls.ClientHelloInfo{ServerName: "other.test"})
	require.Error(t, err)

	var buf syncBuffer
	log := logger.New(logger.Config{Output: &buf})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.watch(ctx, log)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("acme certificate error"))
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, string(buf.Bytes()), "other.test")

	cancel()
	<-done

	cfg := src.TLSConfig()
	assert.Contains(t, cfg.NextProtos, "acme-tls/1")
	assert.NotNil(t, cfg.GetCertificate)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}
