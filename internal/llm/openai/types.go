// Package openai provides an HTTP client for OpenAI-compatible chat completion
// APIs and an eino chat model built on it.
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// Request is the chat completions request body. Only the fields the chat
// model sets are modelled.
type Request struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float32       `json:"temperature,omitempty"`
	TopP          *float32       `json:"top_p,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Tools         []Tool         `json:"tools,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions asks for a trailing usage chunk on streamed responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message is one conversation turn, in either direction.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool offers a function to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ToolCall is a complete tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Response is a non-streamed completion.
type Response struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chunk is one server-sent event of a streamed completion. The final chunk
// may carry only Usage.
type Chunk struct {
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a fragment of a tool call; fragments sharing an Index
// belong to the same call.
type ToolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function *FunctionCall `json:"function,omitempty"`
}

// APIError is the error object returned by the upstream API.
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Kind classifies the failure for the error boundary.
func (e *APIError) Kind() domain.Kind {
	switch {
	case e.Code == "rate_limit_exceeded" || e.Type == "rate_limit_error" || e.StatusCode == http.StatusTooManyRequests:
		return domain.KindRateLimit
	case e.Code == "invalid_api_key" || e.Type == "authentication_error" || e.StatusCode == http.StatusUnauthorized:
		return domain.KindUnauthorized
	case e.Code == "model_not_found" || e.StatusCode == http.StatusNotFound:
		return domain.KindNotFound
	default:
		return domain.KindUpstream
	}
}

// DomainError wraps e in a domain error of its Kind. It carries no route
// code; the handler that called the model attaches one.
func (e *APIError) DomainError() *domain.Error {
	return domain.New(e.Kind(), e.Message).Wrap(e)
}

// decodeError turns a non-200 response body into a domain error, falling
// back to the raw body when it is not an API error object.
func decodeError(status int, body []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = status
		return envelope.Error.DomainError()
	}
	return domain.New(domain.KindUpstream, fmt.Sprintf("model API returned status %d: %s", status, body))
}
