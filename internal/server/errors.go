package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// HandlerFunc is an HTTP handler that reports failure by returning an error.
// Errors are rendered once by the ErrorHandler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorHandler is the single error boundary for the API. Route-classified
// errors (a domain.Error carrying a Code) are rendered with their code;
// everything else is logged and rendered as INTERNAL_ERROR.
type ErrorHandler struct {
	logger     *slog.Logger
	production bool
}

// NewErrorHandler creates an error boundary. In production the message of
// unclassified errors is replaced with a generic one.
func NewErrorHandler(logger *slog.Logger, production bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{logger: logger, production: production}
}

// Handle adapts fn to an http.HandlerFunc, rendering any returned error.
func (h *ErrorHandler) Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.WriteError(w, r, err)
		}
	}
}

// WriteError renders err as a failure envelope.
func (h *ErrorHandler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if apiErr, ok := domain.AsError(err); ok && apiErr.Code != "" {
		AddLogField(ctx, "error_code", string(apiErr.Code))
		if apiErr.Err != nil {
			AddLogField(ctx, "error_cause", apiErr.Err.Error())
		}
		WriteEnvelope(w, r, apiErr.HTTPStatusCode(), domain.Failure(apiErr.Code, apiErr.Message))
		return
	}

	AddError(ctx, err)
	h.logger.Error("unhandled error",
		slog.String("error", err.Error()),
		slog.String("request_id", GetRequestID(ctx)),
		slog.String("path", r.URL.Path),
	)

	status := http.StatusInternalServerError
	message := err.Error()
	if apiErr, ok := domain.AsError(err); ok {
		status = apiErr.HTTPStatusCode()
		message = apiErr.Message
	}
	if h.production {
		message = "Internal server error"
	}

	WriteEnvelope(w, r, status, domain.Failure(domain.CodeInternal, message))
}

// Recoverer converts a panic into an INTERNAL_ERROR envelope. It is the
// chi middleware.Recoverer pattern routed through the error boundary.
func (h *ErrorHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			err, ok := rvr.(error)
			if !ok {
				err = fmt.Errorf("%v", rvr)
			}
			h.logger.Error("panic recovered",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("panic", err.Error()),
				slog.String("stack", string(debug.Stack())),
			)
			h.WriteError(w, r, fmt.Errorf("panic: %w", err))
		}()

		next.ServeHTTP(w, r)
	})
}

// NotFound renders the 404 envelope for unknown routes.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteEnvelope(w, r, http.StatusNotFound, domain.Failure(domain.CodeNotFound, "Not found"))
}

// MethodNotAllowed renders the 405 envelope for known routes.
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteEnvelope(w, r, http.StatusMethodNotAllowed, domain.Failure(domain.CodeMethodNotAllowed, "Method not allowed"))
}
