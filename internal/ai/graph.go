package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/storage"
)

// Graph node names.
const (
	NodeProcess  = "process"
	NodeValidate = "validate"
)

const graphSystemPrompt = "You are a helpful AI assistant."

// ErrNoCheckpoints is returned when the service has no checkpoint store.
var ErrNoCheckpoints = errors.New("graph checkpoints are not configured")

// GraphResult is the outcome of a graph run.
type GraphResult struct {
	GraphID string
	State   *domain.GraphState
}

// GraphUpdate is the state after one node completed.
type GraphUpdate struct {
	Node  string            `json:"node"`
	State domain.GraphState `json:"state"`
}

type emitterKey struct{}

// emitUpdate reports a node completion to the stream consumer, if any.
func emitUpdate(ctx context.Context, node string, state *domain.GraphState) error {
	emit, ok := ctx.Value(emitterKey{}).(func(GraphUpdate) error)
	if !ok {
		return nil
	}
	return emit(GraphUpdate{Node: node, State: *state})
}

// newGraph compiles START -> process -> validate -> END.
func (s *Service) newGraph(ctx context.Context) (compose.Runnable[*domain.GraphState, *domain.GraphState], error) {
	g := compose.NewGraph[*domain.GraphState, *domain.GraphState]()

	if err := g.AddLambdaNode(NodeProcess, compose.InvokableLambda(s.processNode)); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode(NodeValidate, compose.InvokableLambda(validateNode)); err != nil {
		return nil, err
	}
	if err := g.AddEdge(compose.START, NodeProcess); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeProcess, NodeValidate); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeValidate, compose.END); err != nil {
		return nil, err
	}

	return g.Compile(ctx, compose.WithGraphName("conversation_graph"))
}

// processNode answers the input with the prior messages as context.
func (s *Service) processNode(ctx context.Context, state *domain.GraphState) (*domain.GraphState, error) {
	input := []*schema.Message{schema.SystemMessage(graphSystemPrompt)}
	input = append(input, toSchemaMessages(state.Messages)...)
	input = append(input, schema.UserMessage(state.Input))

	msg, err := s.model.Generate(ctx, input)
	if err != nil {
		return nil, err
	}

	next := &domain.GraphState{
		Input:  state.Input,
		Output: msg.Content,
		Step:   state.Step + 1,
		Messages: append(append([]domain.Message(nil), state.Messages...),
			domain.Message{Role: domain.RoleUser, Content: state.Input},
			domain.Message{Role: domain.RoleAssistant, Content: msg.Content},
		),
	}
	return next, emitUpdate(ctx, NodeProcess, next)
}

// validateNode counts an extra step when process produced no output.
func validateNode(ctx context.Context, state *domain.GraphState) (*domain.GraphState, error) {
	next := *state
	if next.Output == "" {
		next.Step++
	}
	return &next, emitUpdate(ctx, NodeValidate, &next)
}

// RunGraph executes the graph for input. The run continues from the last
// checkpoint of graphID when one exists; an empty graphID starts a new graph.
// The final state is checkpointed.
func (s *Service) RunGraph(ctx context.Context, graphID, input string) (*GraphResult, error) {
	return s.runGraph(ctx, "graph.invoke", graphID, input)
}

// StreamGraph is RunGraph reporting each node's state to emit as it completes.
func (s *Service) StreamGraph(ctx context.Context, graphID, input string, emit func(GraphUpdate) error) (*GraphResult, error) {
	return s.runGraph(context.WithValue(ctx, emitterKey{}, emit), "graph.stream", graphID, input)
}

func (s *Service) runGraph(ctx context.Context, span, graphID, input string) (*GraphResult, error) {
	if graphID == "" {
		graphID = uuid.NewString()
	}

	var result *GraphResult
	err := s.tracer.Run(ctx, span, func(ctx context.Context) error {
		initial, err := s.initialState(ctx, graphID, input)
		if err != nil {
			return err
		}

		runnable, err := s.newGraph(ctx)
		if err != nil {
			return fmt.Errorf("failed to compile graph: %w", err)
		}

		final, err := runnable.Invoke(ctx, initial)
		if err != nil {
			return err
		}

		if s.checkpoints != nil {
			if err := s.checkpoints.SaveCheckpoint(ctx, graphID, final); err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
		result = &GraphResult{GraphID: graphID, State: final}
		return nil
	}, attribute.String("operation", "graph"), attribute.String("graph_id", graphID))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) initialState(ctx context.Context, graphID, input string) (*domain.GraphState, error) {
	state := &domain.GraphState{Input: input, Messages: []domain.Message{}}
	if s.checkpoints == nil {
		return state, nil
	}

	prev, err := s.checkpoints.LoadCheckpoint(ctx, graphID)
	if errors.Is(err, storage.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	state.Messages = prev.Messages
	state.Step = prev.Step
	return state, nil
}

// GraphState returns the last checkpoint of graphID. An unknown id yields
// storage.ErrNotFound.
func (s *Service) GraphState(ctx context.Context, graphID string) (*domain.GraphState, error) {
	if s.checkpoints == nil {
		return nil, ErrNoCheckpoints
	}
	return s.checkpoints.LoadCheckpoint(ctx, graphID)
}
