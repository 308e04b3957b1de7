package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DefaultModel is used when neither the config nor the call names a model.
const DefaultModel = "gpt-4o-mini"

// DefaultTemperature is the sampling temperature when none is given.
const DefaultTemperature float32 = 0.7

// ChatModel adapts Client to eino's tool calling chat model interface so it can
// be placed in chains, graphs and agents.
type ChatModel struct {
	client      *Client
	model       string
	temperature float32
	maxTokens   int
	tools       []Tool
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// ChatModelConfig configures a ChatModel.
type ChatModelConfig struct {
	Model       string
	Temperature *float32
	MaxTokens   int
}

// NewChatModel wraps client as an eino chat model.
func NewChatModel(client *Client, cfg ChatModelConfig) (*ChatModel, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	m := &ChatModel{
		client:      client,
		model:       cfg.Model,
		temperature: DefaultTemperature,
		maxTokens:   cfg.MaxTokens,
	}
	if m.model == "" {
		m.model = DefaultModel
	}
	if cfg.Temperature != nil {
		m.temperature = *cfg.Temperature
	}
	return m, nil
}

// Generate runs a single completion.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req, err := m.buildRequest(input, opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model %s returned no choices", resp.Model)
	}

	choice := resp.Choices[0]
	out := &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		},
	}
	for i, tc := range choice.Message.ToolCalls {
		idx := i
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			Index: &idx,
			ID:    tc.ID,
			Type:  tc.Type,
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

// Stream runs a streaming completion. Each received chunk becomes one message
// on the returned reader; tool call fragments keep their index so that
// schema.ConcatMessages can merge them.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.buildRequest(input, opts)
	if err != nil {
		return nil, err
	}

	stream, err := m.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, err)
				return
			}
			msg := chunkToMessage(chunk)
			if msg == nil {
				continue
			}
			// The consumer closed its reader; stop reading upstream.
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

// WithTools returns a copy of the model that offers tools to the upstream API.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	converted, err := toTools(tools)
	if err != nil {
		return nil, err
	}
	clone := *m
	clone.tools = converted
	return &clone, nil
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts []model.Option) (*Request, error) {
	temperature := m.temperature
	modelName := m.model
	maxTokens := m.maxTokens
	options := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		Model:       &modelName,
		MaxTokens:   &maxTokens,
	}, opts...)

	req := &Request{
		Model:       *options.Model,
		Temperature: options.Temperature,
		TopP:        options.TopP,
		Stop:        options.Stop,
		Tools:       m.tools,
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if len(options.Tools) > 0 {
		tools, err := toTools(options.Tools)
		if err != nil {
			return nil, err
		}
		req.Tools = tools
	}

	for _, msg := range input {
		if msg == nil {
			continue
		}
		req.Messages = append(req.Messages, toMessage(msg))
	}
	return req, nil
}

func toMessage(msg *schema.Message) Message {
	out := Message{
		Role:       string(msg.Role),
		Content:    msg.Content,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}
	for _, tc := range msg.ToolCalls {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

func toTools(infos []*schema.ToolInfo) ([]Tool, error) {
	tools := make([]Tool, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		fn := ToolFunction{Name: info.Name, Description: info.Desc}
		if info.ParamsOneOf != nil {
			params, err := info.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("failed to convert parameters of tool %s: %w", info.Name, err)
			}
			fn.Parameters = params
		}
		tools = append(tools, Tool{Type: "function", Function: fn})
	}
	sort.SliceStable(tools, func(i, j int) bool { return tools[i].Function.Name < tools[j].Function.Name })
	return tools, nil
}

func chunkToMessage(chunk *Chunk) *schema.Message {
	if chunk == nil {
		return nil
	}

	msg := &schema.Message{Role: schema.Assistant}
	if chunk.Usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			},
		}
	}
	if len(chunk.Choices) == 0 {
		if msg.ResponseMeta == nil {
			return nil
		}
		return msg
	}

	choice := chunk.Choices[0]
	msg.Content = choice.Delta.Content
	if choice.FinishReason != nil {
		if msg.ResponseMeta == nil {
			msg.ResponseMeta = &schema.ResponseMeta{}
		}
		msg.ResponseMeta.FinishReason = *choice.FinishReason
	}
	for _, tc := range choice.Delta.ToolCalls {
		idx := tc.Index
		call := schema.ToolCall{Index: &idx, ID: tc.ID, Type: tc.Type}
		if tc.Function != nil {
			call.Function = schema.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg
}
