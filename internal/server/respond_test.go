package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// =============================================================================
// SSEWriter Tests
// =============================================================================

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSEWriter(rec)

	if err := sse.Send(map[string]string{"content": "Hel"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := sse.Send(map[string]string{"content": "lo"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	checkHeader(t, rec, "Content-Type", "text/event-stream")
	want := "data: {\"content\":\"Hel\"}\n\ndata: {\"content\":\"lo\"}\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if !rec.Flushed {
		t.Error("frames should be flushed")
	}
}

func TestSSEWriter_SingleErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSEWriter(rec)

	_ = sse.Send(map[string]string{"content": "partial"})
	sse.Fail("upstream closed")
	sse.Fail("second failure")

	if err := sse.Send(map[string]string{"content": "after"}); err == nil {
		t.Error("Send() after Fail should error")
	}

	body := rec.Body.String()
	if n := strings.Count(body, `"error"`); n != 1 {
		t.Errorf("error frames = %d, want 1 (body %q)", n, body)
	}
	if !strings.HasSuffix(body, "data: {\"error\":\"upstream closed\"}\n\n") {
		t.Errorf("last frame should be the error, body %q", body)
	}
}

// =============================================================================
// DecodeJSON Tests
// =============================================================================

type createRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantErr     bool
		wantMessage string
	}{
		{"valid", `{"name":"widget"}`, false, ""},
		{"missing name", `{"description":"x"}`, true, "name is required"},
		{"name too long", `{"name":"` + strings.Repeat("a", 101) + `"}`, true, "name must be at most 100 characters"},
		{"malformed", `{"name":`, true, "Invalid JSON body"},
		{"empty body", ``, true, "Request body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var dst createRequest
			err := DecodeJSON(req, &dst)

			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			apiErr, ok := domain.AsError(err)
			if !ok {
				t.Fatalf("error %T is not a domain error", err)
			}
			if apiErr.Code != domain.CodeValidation || apiErr.HTTPStatusCode() != http.StatusBadRequest {
				t.Errorf("error = %+v", apiErr)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestDecodeJSON_PayloadTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"0123456789"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 4)

	err := DecodeJSON(req, &createRequest{})
	var apiErr *domain.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.KindPayloadTooLarge {
		t.Fatalf("DecodeJSON() error = %v, want payload too large", err)
	}
	if apiErr.Code != "" {
		t.Errorf("code = %q, want none so the boundary renders it", apiErr.Code)
	}
	if apiErr.HTTPStatusCode() != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", apiErr.HTTPStatusCode())
	}
}
