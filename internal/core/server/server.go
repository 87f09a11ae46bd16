package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kproj6/featureserver/internal/core/health"
	middleware "github.com/kproj6/featureserver/internal/core/middleware"
	"github.com/kproj6/featureserver/internal/core/router"
)

type Options struct {
	Addr string
	// Ready backs /readyz. Metrics backs /metrics when non-nil.
	Ready   http.Handler
	Metrics http.Handler
	// WriteTimeout must exceed the extraction deadline.
	WriteTimeout time.Duration
}

// Handler builds the full route tree.
func Handler(logger *slog.Logger, api *router.Handlers, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if opts.Ready != nil {
		r.Method(http.MethodGet, "/readyz", opts.Ready)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	api.Mount(r)
	return r
}

// Run serves h on opts.Addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, logger *slog.Logger, h http.Handler, opts Options) error {
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, logger, ln, h, opts)
}

func Serve(ctx context.Context, logger *slog.Logger, ln net.Listener, h http.Handler, opts Options) error {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
