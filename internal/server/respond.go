package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// Now is the clock used for envelope timestamps. Tests may replace it.
var Now = time.Now

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteEnvelope stamps env with the request's correlation id and the current
// time, then writes it.
func WriteEnvelope(w http.ResponseWriter, r *http.Request, status int, env domain.Envelope) {
	WriteJSON(w, status, env.WithMeta(GetRequestID(r.Context()), Now()))
}

// WriteSuccess writes a 200 success envelope around data.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteEnvelope(w, r, http.StatusOK, domain.Success(data))
}

// SSEWriter emits Server-Sent Events frames of the form "data: <payload>\n\n".
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

// NewSSEWriter sets the event-stream headers and commits the response.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	s := &SSEWriter{w: w, flusher: flusher}
	s.flush()
	return s
}

// Send writes one frame with v encoded as JSON.
func (s *SSEWriter) Send(v any) error {
	if s.failed {
		return fmt.Errorf("stream already terminated")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flush()
	return nil
}

// Fail writes the single terminal error frame. Later calls are no-ops, so a
// stream never carries more than one error frame.
func (s *SSEWriter) Fail(message string) {
	if s.failed {
		return
	}
	_ = s.Send(map[string]string{"error": message})
	s.failed = true
}

func (s *SSEWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
