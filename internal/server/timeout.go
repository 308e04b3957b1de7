package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// TimeoutMiddleware bounds how long a handler may take to start responding.
// The handler runs on its own goroutine with a deadline on its context. If the
// deadline passes before the handler has written anything, the request is
// aborted and the error boundary renders a 504; later handler writes are
// discarded. A handler that has already started responding (for example an
// event stream) keeps the connection, and is expected to observe the
// cancelled context.
func TimeoutMiddleware(timeout time.Duration, errs *ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)

			tw := &timeoutWriter{w: w, h: w.Header().Clone(), ctx: ctx}
			done := make(chan struct{})
			panicChan := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case p := <-panicChan:
				panic(p)
			case <-done:
				tw.mu.Lock()
				if tw.committed {
					tw.mu.Unlock()
					return
				}
				if ctx.Err() == nil {
					tw.commit(http.StatusOK)
					tw.mu.Unlock()
					return
				}
				tw.timedOut = true
				tw.mu.Unlock()

				errs.WriteError(w, r, domain.ErrTimeout("Gateway Timeout"))
			case <-ctx.Done():
				tw.mu.Lock()
				if tw.committed {
					// Already streaming; wait for the handler to notice.
					tw.mu.Unlock()
					select {
					case p := <-panicChan:
						panic(p)
					case <-done:
					}
					return
				}
				tw.timedOut = true
				tw.mu.Unlock()

				errs.WriteError(w, r, domain.ErrTimeout("Gateway Timeout"))
			}
		})
	}
}

// timeoutWriter buffers headers until the handler commits a status, then
// writes through. Once the deadline has passed, an uncommitted response can no
// longer be started by the handler.
type timeoutWriter struct {
	w   http.ResponseWriter
	h   http.Header
	ctx context.Context

	mu        sync.Mutex
	committed bool
	timedOut  bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.h
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.committed || tw.expired() {
		return
	}
	tw.commit(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.committed {
		if tw.expired() {
			return 0, http.ErrHandlerTimeout
		}
		tw.commit(http.StatusOK)
	}
	return tw.w.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (tw *timeoutWriter) Flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.committed {
		if tw.expired() {
			return
		}
		tw.commit(http.StatusOK)
	}
	if f, ok := tw.w.(http.Flusher); ok {
		f.Flush()
	}
}

// expired reports whether the handler lost the chance to respond. Callers hold mu.
func (tw *timeoutWriter) expired() bool {
	return tw.timedOut || tw.ctx.Err() != nil
}

// commit copies buffered headers and writes the status. Callers hold mu.
func (tw *timeoutWriter) commit(code int) {
	dst := tw.w.Header()
	for k, vv := range tw.h {
		dst[k] = vv
	}
	tw.w.WriteHeader(code)
	tw.committed = true
}
