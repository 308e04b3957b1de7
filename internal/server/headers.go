package server

import (
	"net/http"
	"sync"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/unrolled/secure"
)

// DefaultCacheControl is applied when a handler does not set Cache-Control.
const DefaultCacheControl = "no-store, no-cache, must-revalidate"

// SecureHeadersMiddleware sets the standard security headers. In production a
// Permissions-Policy denying geolocation, microphone and camera is added.
func SecureHeadersMiddleware(production bool) func(http.Handler) http.Handler {
	opts := secure.Options{
		ContentTypeNosniff:   true,
		FrameDeny:            true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "no-referrer",
		STSSeconds:           15552000,
		STSIncludeSubdomains: true,
		IsDevelopment:        !production,
	}
	if production {
		opts.PermissionsPolicy = "geolocation=(), microphone=(), camera=()"
	}
	return secure.New(opts).Handler
}

// TimingMiddleware emits a Server-Timing header with the handler duration.
// Handlers may add metrics via servertiming.FromContext.
func TimingMiddleware(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := servertiming.FromContext(r.Context()).NewMetric("app").WithDesc("handler").Start()
		tw := &timingWriter{ResponseWriter: w, metric: m}
		next.ServeHTTP(tw, r)
		tw.stop()
	})
	return servertiming.Middleware(inner, nil)
}

// timingWriter stops the metric just before the header is committed, since
// the Server-Timing header cannot change afterwards.
type timingWriter struct {
	http.ResponseWriter
	metric *servertiming.Metric
	once   sync.Once
}

func (tw *timingWriter) stop() {
	tw.once.Do(func() { tw.metric.Stop() })
}

func (tw *timingWriter) WriteHeader(code int) {
	tw.stop()
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	tw.stop()
	return tw.ResponseWriter.Write(b)
}

func (tw *timingWriter) Flush() {
	tw.stop()
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// CacheControlMiddleware applies DefaultCacheControl to responses whose
// handler did not choose a policy.
func CacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheControlWriter{ResponseWriter: w}, r)
	})
}

type cacheControlWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (cw *cacheControlWriter) WriteHeader(code int) {
	if !cw.wroteHeader {
		cw.wroteHeader = true
		if cw.Header().Get("Cache-Control") == "" {
			cw.Header().Set("Cache-Control", DefaultCacheControl)
		}
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cacheControlWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (cw *cacheControlWriter) Flush() {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
