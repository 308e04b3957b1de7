// Package ai wires chat chains, tool-using agents and checkpointed graphs over
// an eino chat model.
package ai

import (
	"errors"
	"log/slog"

	"github.com/cloudwego/eino/components/model"

	"github.com/tjfontaine/lambda-api/internal/storage"
	"github.com/tjfontaine/lambda-api/internal/telemetry"
	"github.com/tjfontaine/lambda-api/internal/tokens"
)

// DefaultSystemPrompt is used by chat requests that do not supply one.
const DefaultSystemPrompt = "You are a helpful AI assistant. Be concise and accurate."

// DefaultTemperature applies when a request does not set one.
const DefaultTemperature float32 = 0.7

// Service runs the conversational workloads. Orchestration objects are built
// per call; the Service only holds long-lived collaborators.
type Service struct {
	model       model.ToolCallingChatModel
	modelName   string
	memory      *Memory
	checkpoints storage.CheckpointStore
	examples    storage.ExampleStore
	counter     *tokens.Counter
	budget      int
	tracer      *telemetry.Tracer
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMemory sets the conversation memory. Defaults to an unmirrored Memory.
func WithMemory(m *Memory) Option {
	return func(s *Service) { s.memory = m }
}

// WithCheckpoints sets the graph checkpoint store.
func WithCheckpoints(cs storage.CheckpointStore) Option {
	return func(s *Service) { s.checkpoints = cs }
}

// WithExamples gives the db_query tool read access to example records.
func WithExamples(es storage.ExampleStore) Option {
	return func(s *Service) { s.examples = es }
}

// WithTracer wraps every call in a span when the tracer is enabled.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithHistoryBudget bounds the history tokens sent with each chat call.
func WithHistoryBudget(budget int) Option {
	return func(s *Service) { s.budget = budget }
}

// WithModelName names the configured model for token accounting.
func WithModelName(name string) Option {
	return func(s *Service) { s.modelName = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service around cm.
func NewService(cm model.ToolCallingChatModel, opts ...Option) (*Service, error) {
	if cm == nil {
		return nil, errors.New("chat model is required")
	}
	s := &Service{
		model:     cm,
		modelName: "gpt-4o-mini",
		counter:   tokens.NewCounter(),
		budget:    tokens.DefaultHistoryBudget,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.memory == nil {
		s.memory = NewMemory(nil, s.logger)
	}
	if s.tracer == nil {
		s.tracer = telemetry.NewTracer("", false)
	}
	return s, nil
}

// Memory returns the conversation memory.
func (s *Service) Memory() *Memory {
	return s.memory
}
