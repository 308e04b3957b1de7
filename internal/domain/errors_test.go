package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "kind and message",
			err:      New(KindInternal, "boom"),
			expected: "internal: boom",
		},
		{
			name:     "kind, code, and message",
			err:      ErrValidation("name is required"),
			expected: "validation (VALIDATION_ERROR): name is required",
		},
		{
			name:     "wrapped cause",
			err:      ErrUpstream(CodeChat, "chat failed", errors.New("connection reset")),
			expected: "upstream (CHAT_ERROR): chat failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected int
	}{
		{"validation", ErrValidation("x"), http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized("x"), http.StatusUnauthorized},
		{"forbidden", New(KindForbidden, "x"), http.StatusForbidden},
		{"not found", ErrNotFound("x"), http.StatusNotFound},
		{"method not allowed", New(KindMethodNotAllowed, "x"), http.StatusMethodNotAllowed},
		{"rate limit", New(KindRateLimit, "x"), http.StatusTooManyRequests},
		{"payload too large", ErrPayloadTooLarge("x"), http.StatusRequestEntityTooLarge},
		{"timeout", ErrTimeout("x"), http.StatusGatewayTimeout},
		{"upstream", ErrUpstream(CodeAgent, "x", nil), http.StatusInternalServerError},
		{"internal", ErrInternal("x"), http.StatusInternalServerError},
		{"unknown kind", New(Kind("mystery"), "x"), http.StatusInternalServerError},
		{"explicit status wins", ErrInternal("x").WithStatusCode(http.StatusBadGateway), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAsError(t *testing.T) {
	cause := ErrNotFound("conversation not found")
	wrapped := fmt.Errorf("load memory: %w", cause)

	got, ok := AsError(wrapped)
	if !ok {
		t.Fatal("AsError() ok = false, want true")
	}
	if got != cause {
		t.Errorf("AsError() = %v, want %v", got, cause)
	}

	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("AsError() on plain error should be false")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ErrUpstream(CodeGraph, "graph failed", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the wrapped cause")
	}
}

// =============================================================================
// Envelope Tests
// =============================================================================

func TestEnvelope_SuccessShape(t *testing.T) {
	body, err := json.Marshal(Success(map[string]string{"id": "1"}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["success"] != true {
		t.Errorf("success = %v, want true", decoded["success"])
	}
	if _, ok := decoded["error"]; ok {
		t.Error("successful envelope must not carry an error member")
	}
	if _, ok := decoded["data"]; !ok {
		t.Error("successful envelope must carry data")
	}
}

func TestEnvelope_FailureShape(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.FixedZone("X", 3600))
	env := Failure(CodeNotFound, "Not found").WithMeta("req-1", now)

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	expected := `{"success":false,"error":{"message":"Not found","code":"NOT_FOUND"},"meta":{"requestId":"req-1","timestamp":"2024-05-06T06:08:09.123Z"}}`
	if string(body) != expected {
		t.Errorf("body = %s, want %s", body, expected)
	}
}

func TestEnvelope_WithMetaOmitsEmptyRequestID(t *testing.T) {
	env := Failure(CodeInternal, "boom").WithMeta("", time.Unix(0, 0))
	body, _ := json.Marshal(env)

	var decoded struct {
		Meta map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := decoded.Meta["requestId"]; ok {
		t.Error("requestId should be omitted when unknown")
	}
	if decoded.Meta["timestamp"] != "1970-01-01T00:00:00.000Z" {
		t.Errorf("timestamp = %v", decoded.Meta["timestamp"])
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	if s.Expired(now) {
		t.Error("session should not be expired before ExpiresAt")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Error("session should be expired at ExpiresAt")
	}
}
