package domain

import "time"

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Envelope is the uniform JSON body returned by every API route.
// Exactly one of Data or Error is meaningful.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody is the error member of a failed envelope.
type ErrorBody struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

// Meta carries correlation data for the response.
type Meta struct {
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Success wraps data in a successful envelope.
func Success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failure builds a failed envelope.
func Failure(code Code, message string) Envelope {
	return Envelope{Error: &ErrorBody{Message: message, Code: code}}
}

// WithMeta returns a copy of the envelope stamped with the request id and time.
func (e Envelope) WithMeta(requestID string, now time.Time) Envelope {
	e.Meta = &Meta{RequestID: requestID, Timestamp: FormatTimestamp(now)}
	return e
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
