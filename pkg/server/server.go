package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

// Opinionated HTTP server defaults.
const (
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultMaxHeaderBytes    = 1 << 20 // 1MB
)

// Server serves one handler on a set of listeners.
type Server struct {
	handler   http.Handler
	coord     *shutdown.Coordinator
	logger    *slog.Logger
	onBound   func(Listener, net.Addr)
	listeners []Listener
}

// New creates a server for handler whose listeners drain under coord.
func New(handler http.Handler, coord *shutdown.Coordinator, opts ...Option) *Server {
	s := &Server{
		handler: handler,
		coord:   coord,
		logger:  logger.NewNope(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listeners returns the configured bind targets.
func (s *Server) Listeners() []Listener {
	return append([]Listener(nil), s.listeners...)
}

// Run binds every listener and serves until all of them are drained.
// Configuration errors are reported before any socket is bound.
// The first bind or serve error stops the remaining listeners and is
// returned. Cancelling ctx drains every listener as well.
func (s *Server) Run(ctx context.Context) error {
	if len(s.listeners) == 0 {
		return ErrNoListeners
	}

	for _, l := range s.listeners {
		if err := l.Validate(); err != nil {
			return err
		}
	}

	// A redirect listener next to an ACME one also answers http-01 challenges.
	var challenge *certSource
	sources := make([]*certSource, len(s.listeners))
	for i, l := range s.listeners {
		if l.Kind == KindACME {
			sources[i] = newCertSource(*l.ACME)
			if challenge == nil {
				challenge = sources[i]
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range s.listeners {
		b := &binding{
			server:   s,
			listener: l,
			certs:    sources[i],
			logger:   s.logger.With(slog.String("listener", l.Kind.String()), slog.String("addr", l.Addr)),
		}
		if l.Kind == KindRedirect && challenge != nil {
			b.challenge = challenge
		}
		g.Go(func() error { return b.run(gctx) })
	}

	return g.Wait()
}

// binding is the serving state of one listener.
type binding struct {
	server    *Server
	certs     *certSource
	challenge *certSource
	logger    *slog.Logger
	listener  Listener
}

func (b *binding) run(ctx context.Context) error {
	handle := b.server.coord.RegisterHandle()
	if handle.Drained() {
		b.logger.Warn("shutdown in progress, listener not started")
		return nil
	}

	tlsConfig, err := b.tlsConfig()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", b.listener.Addr)
	if err != nil {
		return errors.Join(ErrBind, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	srv := &http.Server{
		Handler:           b.handlerFor(),
		TLSConfig:         tlsConfig,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(b.logger.Handler(), slog.LevelWarn),
	}

	var wg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer func() {
		stopWatch()
		wg.Wait()
	}()
	if b.certs != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.certs.watch(watchCtx, b.logger)
		}()
	}

	if fn := b.server.onBound; fn != nil {
		fn(b.listener, ln.Addr())
	}
	b.logger.Info("server listening", slog.String("bound", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Join(ErrServe, err)
	case <-handle.Draining():
	case <-ctx.Done():
	}

	grace := handle.Grace()
	if grace <= 0 {
		grace = shutdown.DrainGracePeriod
	}
	b.logger.Info("draining server", slog.Duration("grace", grace))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		b.logger.Warn("grace period expired, closing remaining connections", slog.Any("error", err))
		_ = srv.Close()
	}
	<-errCh

	b.logger.Info("server stopped")
	return nil
}

func (b *binding) tlsConfig() (*tls.Config, error) {
	switch b.listener.Kind {
	case KindTLS:
		cert, err := tls.LoadX509KeyPair(b.listener.CertFile, b.listener.KeyFile)
		if err != nil {
			return nil, errors.Join(ErrInvalidTLS, err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
			NextProtos:   []string{"h2", "http/1.1"},
		}, nil
	case KindACME:
		return b.certs.TLSConfig(), nil
	default:
		return nil, nil
	}
}

func (b *binding) handlerFor() http.Handler {
	if b.listener.Kind != KindRedirect {
		return b.server.handler
	}
	h := RedirectHandler(b.listener.HTTPSPort)
	if b.challenge != nil {
		return b.challenge.manager.HTTPHandler(h)
	}
	return h
}
