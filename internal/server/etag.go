package server

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strings"
)

// ETagMiddleware adds a weak ETag to successful GET and HEAD responses and
// answers a matching If-None-Match with 304 Not Modified. Bodies of those
// responses are buffered; other methods and event streams pass straight
// through.
func ETagMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		ew := &etagWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ew, r)

		if ew.streaming {
			return
		}
		if ew.status != http.StatusOK || w.Header().Get("ETag") != "" {
			ew.flushTo(w)
			return
		}

		sum := sha1.Sum(ew.buf.Bytes())
		tag := `W/"` + hex.EncodeToString(sum[:]) + `"`
		w.Header().Set("ETag", tag)

		if etagMatches(r.Header.Get("If-None-Match"), tag) {
			h := w.Header()
			h.Del("Content-Type")
			h.Del("Content-Length")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		ew.flushTo(w)
	})
}

func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(tag, "W/") {
			return true
		}
	}
	return false
}

// etagWriter buffers the response so its hash can be computed. A response
// declared as text/event-stream is written through unbuffered instead.
type etagWriter struct {
	http.ResponseWriter
	buf       bytes.Buffer
	status    int
	streaming bool
}

func (ew *etagWriter) WriteHeader(code int) {
	ew.status = code
	if strings.HasPrefix(ew.Header().Get("Content-Type"), "text/event-stream") {
		ew.streaming = true
		ew.ResponseWriter.WriteHeader(code)
	}
}

func (ew *etagWriter) Write(b []byte) (int, error) {
	if ew.streaming {
		return ew.ResponseWriter.Write(b)
	}
	return ew.buf.Write(b)
}

// Flush forwards only for event streams; buffered bodies are released when
// the handler returns.
func (ew *etagWriter) Flush() {
	if !ew.streaming {
		return
	}
	if f, ok := ew.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (ew *etagWriter) flushTo(w http.ResponseWriter) {
	w.WriteHeader(ew.status)
	if ew.buf.Len() > 0 {
		_, _ = w.Write(ew.buf.Bytes())
	}
}
