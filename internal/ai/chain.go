package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// ChatRequest is a single chat turn.
type ChatRequest struct {
	Message        string
	ConversationID string
	SystemPrompt   string
	Model          string
	Temperature    *float32
}

// ChatResult is the reply to a chat turn.
type ChatResult struct {
	Response       string
	ConversationID string
}

func newChatTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{input}"),
	)
}

// newChain builds the prompt -> model chain for one request.
func (s *Service) newChain(ctx context.Context) (compose.Runnable[map[string]any, *schema.Message], error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.
		AppendChatTemplate(newChatTemplate()).
		AppendChatModel(s.model)
	return chain.Compile(ctx)
}

func (s *Service) chatOptions(req ChatRequest) []compose.Option {
	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	opts := []model.Option{model.WithTemperature(temperature)}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	return []compose.Option{compose.WithChatModelOption(opts...)}
}

// prepare resolves the conversation id and assembles the template variables
// with history trimmed to the token budget.
func (s *Service) prepare(ctx context.Context, req *ChatRequest) (map[string]any, error) {
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	history := toSchemaMessages(s.memory.Load(ctx, req.ConversationID))
	modelName := req.Model
	if modelName == "" {
		modelName = s.modelName
	}
	history, err := s.counter.TrimToBudget(modelName, history, s.budget)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"system":  system,
		"history": history,
		"input":   req.Message,
	}, nil
}

// Chat runs one turn and records it in the conversation memory.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	var result *ChatResult
	err := s.tracer.Run(ctx, "chain.invoke", func(ctx context.Context) error {
		vars, err := s.prepare(ctx, &req)
		if err != nil {
			return err
		}
		runnable, err := s.newChain(ctx)
		if err != nil {
			return fmt.Errorf("failed to compile chain: %w", err)
		}

		msg, err := runnable.Invoke(ctx, vars, s.chatOptions(req)...)
		if err != nil {
			return err
		}

		s.memory.Append(ctx, req.ConversationID,
			domain.Message{Role: domain.RoleUser, Content: req.Message},
			domain.Message{Role: domain.RoleAssistant, Content: msg.Content},
		)
		result = &ChatResult{Response: msg.Content, ConversationID: req.ConversationID}
		return nil
	}, attribute.String("operation", "chat"))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StreamChat runs one turn, calling emit with each content delta. The turn is
// recorded in memory only when the stream completes. The resolved conversation
// id is returned even on failure.
func (s *Service) StreamChat(ctx context.Context, req ChatRequest, emit func(delta string) error) (string, error) {
	err := s.tracer.Run(ctx, "chain.stream", func(ctx context.Context) error {
		vars, err := s.prepare(ctx, &req)
		if err != nil {
			return err
		}
		runnable, err := s.newChain(ctx)
		if err != nil {
			return fmt.Errorf("failed to compile chain: %w", err)
		}

		stream, err := runnable.Stream(ctx, vars, s.chatOptions(req)...)
		if err != nil {
			return err
		}
		defer stream.Close()

		var full strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			full.WriteString(chunk.Content)
			if err := emit(chunk.Content); err != nil {
				return err
			}
		}

		s.memory.Append(ctx, req.ConversationID,
			domain.Message{Role: domain.RoleUser, Content: req.Message},
			domain.Message{Role: domain.RoleAssistant, Content: full.String()},
		)
		s.logger.DebugContext(ctx, "chat stream completed",
			slog.String("conversation_id", req.ConversationID),
			slog.Int("length", full.Len()))
		return nil
	}, attribute.String("operation", "chat_stream"))
	return req.ConversationID, err
}
