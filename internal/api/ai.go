package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/lambda-api/internal/ai"
	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/server"
	"github.com/tjfontaine/lambda-api/internal/storage"
)

// ChatRequest is the body of the chat routes.
type ChatRequest struct {
	Message        string   `json:"message" validate:"required,min=1,max=10000"`
	ConversationID string   `json:"conversationId,omitempty" validate:"omitempty,max=128"`
	SystemPrompt   string   `json:"systemPrompt,omitempty" validate:"omitempty,max=4000"`
	Model          string   `json:"model,omitempty" validate:"omitempty,max=100"`
	Temperature    *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// ChatResponse is the data of a chat reply.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

// ChatChunk is one streamed chat frame.
type ChatChunk struct {
	Content string `json:"content"`
}

// AgentRequest is the body of POST /api/ai/agents.
type AgentRequest struct {
	Task      string `json:"task" validate:"required,min=1,max=10000"`
	AgentType string `json:"agentType,omitempty" validate:"omitempty,max=50"`
}

// AgentResponse is the data of an agent run.
type AgentResponse struct {
	Result    string `json:"result"`
	AgentType string `json:"agentType"`
	TaskID    string `json:"taskId"`
}

// GraphRequest is the body of the graph routes. Input is a string or an
// object; objects are passed to the graph as compact JSON.
type GraphRequest struct {
	Input   json.RawMessage `json:"input" validate:"required"`
	GraphID string          `json:"graphId,omitempty" validate:"omitempty,max=128"`
}

// GraphStreamRequest is the body of POST /api/ai/graphs/{id}/stream.
type GraphStreamRequest struct {
	Input json.RawMessage `json:"input" validate:"required"`
}

// GraphStateSummary is the state returned by a graph run.
type GraphStateSummary struct {
	Messages []domain.Message `json:"messages"`
	Step     int              `json:"step"`
}

// GraphResponse is the data of a graph run.
type GraphResponse struct {
	Result  string            `json:"result"`
	GraphID string            `json:"graphId"`
	State   GraphStateSummary `json:"state"`
}

// GraphStateResponse is the data of GET /api/ai/graphs/{id}/state.
type GraphStateResponse struct {
	GraphID string            `json:"graphId"`
	State   domain.GraphState `json:"state"`
}

const graphCompleted = "Graph execution completed"

// AIHandler serves the conversational routes.
type AIHandler struct {
	svc    *ai.Service
	logger *slog.Logger
}

// NewAIHandler creates an AIHandler.
func NewAIHandler(svc *ai.Service, logger *slog.Logger) *AIHandler {
	return &AIHandler{svc: svc, logger: logger}
}

// Routes mounts /chat, /agents and /graphs on g.
func (h *AIHandler) Routes(g *Group) {
	g.Route("/chat", func(g *Group) {
		g.Handle(Operation{
			Method:      http.MethodPost,
			Summary:     "Chat completion",
			Description: "Send a chat message and get a response",
			Tags:        []string{"AI"},
			Request:     ChatRequest{},
			Response:    envelope[ChatResponse]{},
		}, h.chat)
		g.Handle(Operation{
			Method:      http.MethodPost,
			Path:        "/stream",
			Summary:     "Streaming chat",
			Description: "Send a chat message and get a streaming response",
			Tags:        []string{"AI"},
			Request:     ChatRequest{},
			Streaming:   true,
		}, h.chatStream)
	})

	g.Route("/agents", func(g *Group) {
		g.Handle(Operation{
			Method:      http.MethodPost,
			Summary:     "Execute agent",
			Description: "Execute a task using a tool-calling agent",
			Tags:        []string{"AI"},
			Request:     AgentRequest{},
			Response:    envelope[AgentResponse]{},
		}, h.agent)
	})

	g.Route("/graphs", func(g *Group) {
		g.Handle(Operation{
			Method:      http.MethodPost,
			Summary:     "Execute graph workflow",
			Description: "Execute a stateful graph workflow",
			Tags:        []string{"AI"},
			Request:     GraphRequest{},
			Response:    envelope[GraphResponse]{},
		}, h.graph)
		g.Handle(Operation{
			Method:      http.MethodGet,
			Path:        "/{graphId}/state",
			Summary:     "Get graph state",
			Description: "Retrieve the last checkpointed state of a graph workflow",
			Tags:        []string{"AI"},
			Response:    envelope[GraphStateResponse]{},
		}, h.graphState)
		g.Handle(Operation{
			Method:      http.MethodPost,
			Path:        "/{graphId}/stream",
			Summary:     "Stream graph execution",
			Description: "Execute a graph workflow with streaming output",
			Tags:        []string{"AI"},
			Request:     GraphStreamRequest{},
			Streaming:   true,
		}, h.graphStream)
	})
}

// upstream tags err with a route code. The upstream message is kept so
// clients can tell model failures apart.
func upstream(code domain.Code, fallback string, err error) error {
	msg := fallback
	if apiErr, ok := domain.AsError(err); ok && apiErr.Message != "" {
		msg = apiErr.Message
	} else if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return domain.ErrUpstream(code, msg, err)
}

func (h *AIHandler) chat(w http.ResponseWriter, r *http.Request) error {
	var req ChatRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	res, err := h.svc.Chat(r.Context(), ai.ChatRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		SystemPrompt:   req.SystemPrompt,
		Model:          req.Model,
		Temperature:    req.Temperature,
	})
	if err != nil {
		return upstream(domain.CodeChat, "Failed to process chat", err)
	}

	server.AddLogField(r.Context(), "conversation_id", res.ConversationID)
	server.WriteSuccess(w, r, ChatResponse{Response: res.Response, ConversationID: res.ConversationID})
	return nil
}

// lazySSE opens the event stream on the first frame so that failures before
// any output are still reported as an enveloped error.
type lazySSE struct {
	w   http.ResponseWriter
	sse *server.SSEWriter
}

// open commits the 200 event stream headers now.
func (l *lazySSE) open() {
	if l.sse == nil {
		l.sse = server.NewSSEWriter(l.w)
	}
}

func (l *lazySSE) Send(v any) error {
	l.open()
	return l.sse.Send(v)
}

// finish reports err. Before the stream opened it returns a STREAM_ERROR for
// the error boundary; afterwards it writes the single error frame.
func (l *lazySSE) finish(err error) error {
	if err == nil {
		l.open()
		return nil
	}
	if l.sse == nil {
		return upstream(domain.CodeStream, "Stream error", err)
	}
	msg := err.Error()
	if apiErr, ok := domain.AsError(err); ok && apiErr.Message != "" {
		msg = apiErr.Message
	}
	l.sse.Fail(msg)
	return nil
}

func (h *AIHandler) chatStream(w http.ResponseWriter, r *http.Request) error {
	var req ChatRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	w.Header().Set("X-Conversation-ID", req.ConversationID)
	server.AddLogField(r.Context(), "conversation_id", req.ConversationID)

	stream := &lazySSE{w: w}
	_, err := h.svc.StreamChat(r.Context(), ai.ChatRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		SystemPrompt:   req.SystemPrompt,
		Model:          req.Model,
		Temperature:    req.Temperature,
	}, func(delta string) error {
		return stream.Send(ChatChunk{Content: delta})
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "chat stream failed", slog.String("error", err.Error()))
	}
	return stream.finish(err)
}

func (h *AIHandler) agent(w http.ResponseWriter, r *http.Request) error {
	var req AgentRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	res, err := h.svc.RunAgent(r.Context(), ai.AgentRequest{Task: req.Task, AgentType: req.AgentType})
	if err != nil {
		return upstream(domain.CodeAgent, "Failed to execute agent", err)
	}

	server.AddLogField(r.Context(), "task_id", res.TaskID)
	server.WriteSuccess(w, r, AgentResponse{Result: res.Result, AgentType: res.AgentType, TaskID: res.TaskID})
	return nil
}

// graphInput flattens a string or object input into the graph's text input.
func graphInput(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", domain.ErrValidation("input must be a string or an object")
		}
		if strings.TrimSpace(s) == "" {
			return "", domain.ErrValidation("input is required")
		}
		return s, nil
	case len(trimmed) > 0 && trimmed[0] == '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", domain.ErrValidation("input must be a string or an object")
		}
		return buf.String(), nil
	default:
		return "", domain.ErrValidation("input must be a string or an object")
	}
}

func (h *AIHandler) graph(w http.ResponseWriter, r *http.Request) error {
	var req GraphRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}
	input, err := graphInput(req.Input)
	if err != nil {
		return err
	}

	res, err := h.svc.RunGraph(r.Context(), req.GraphID, input)
	if err != nil {
		return upstream(domain.CodeGraph, "Failed to execute graph", err)
	}

	result := res.State.Output
	if result == "" {
		result = graphCompleted
	}
	server.AddLogField(r.Context(), "graph_id", res.GraphID)
	server.WriteSuccess(w, r, GraphResponse{
		Result:  result,
		GraphID: res.GraphID,
		State:   GraphStateSummary{Messages: res.State.Messages, Step: res.State.Step},
	})
	return nil
}

func (h *AIHandler) graphState(w http.ResponseWriter, r *http.Request) error {
	graphID := chi.URLParam(r, "graphId")

	state, err := h.svc.GraphState(r.Context(), graphID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrNotFound("Graph state not found")
		}
		return upstream(domain.CodeState, "Failed to retrieve graph state", err)
	}

	server.WriteSuccess(w, r, GraphStateResponse{GraphID: graphID, State: *state})
	return nil
}

func (h *AIHandler) graphStream(w http.ResponseWriter, r *http.Request) error {
	graphID := chi.URLParam(r, "graphId")

	var req GraphStreamRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}
	input, err := graphInput(req.Input)
	if err != nil {
		return err
	}
	server.AddLogField(r.Context(), "graph_id", graphID)

	// Graph streams always answer 200 and report failures as a frame.
	stream := &lazySSE{w: w}
	stream.open()
	_, err = h.svc.StreamGraph(r.Context(), graphID, input, func(u ai.GraphUpdate) error {
		return stream.Send(u)
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "graph stream failed", slog.String("error", err.Error()))
	}
	return stream.finish(err)
}
