// Package server provides the HTTP request pipeline: correlation ids, audit
// logging, security headers, timeouts, body limits, sanitization,
// compression, CORS, rate limiting and the error boundary.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 30 * time.Second

// Options configures the global pipeline.
type Options struct {
	Port       int
	Logger     *slog.Logger
	Production bool
	CORSOrigin string
	Timeout    time.Duration
	BodyLimit  int64
	Tracing    bool
}

type Server struct {
	Router *chi.Mux
	Errors *ErrorHandler
	Port   int

	logger  *slog.Logger
	tracing bool
	httpSrv *http.Server
}

// New builds the router with the global middleware applied in order.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}

	errs := NewErrorHandler(opts.Logger, opts.Production)
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(opts.Logger))
	r.Use(errs.Recoverer)
	r.Use(SecureHeadersMiddleware(opts.Production))
	r.Use(ETagMiddleware)
	r.Use(TimingMiddleware)
	r.Use(TimeoutMiddleware(opts.Timeout, errs))
	r.Use(BodyLimitMiddleware(opts.BodyLimit, errs))
	r.Use(SanitizeMiddleware())
	r.Use(CacheControlMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(CORSMiddleware(opts.CORSOrigin))

	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.MethodNotAllowed)

	s := &Server{
		Router:  r,
		Errors:  errs,
		Port:    opts.Port,
		logger:  opts.Logger,
		tracing: opts.Tracing,
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, wrapped with OpenTelemetry HTTP
// instrumentation when tracing is enabled.
func (s *Server) Handler() http.Handler {
	if !s.tracing {
		return s.Router
	}
	return otelhttp.NewHandler(s.Router, "lambda-api")
}

// Start listens on the configured port until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
