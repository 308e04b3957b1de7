package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FakeChatModel is a scripted eino chat model. Each Generate or Stream call
// consumes the next reply; when the script runs out the last reply repeats.
type FakeChatModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	calls   [][]*schema.Message
	tools   []*schema.ToolInfo

	// Err, when set, is returned from every call.
	Err error

	// StreamErr, when set, is delivered after the streamed chunks.
	StreamErr error
}

var _ model.ToolCallingChatModel = (*FakeChatModel)(nil)

// NewFakeChatModel returns a model that answers with the given texts in order.
func NewFakeChatModel(replies ...string) *FakeChatModel {
	f := &FakeChatModel{}
	for _, r := range replies {
		f.replies = append(f.replies, schema.AssistantMessage(r, nil))
	}
	return f
}

// Script appends a raw reply, such as one carrying tool calls.
func (f *FakeChatModel) Script(msg *schema.Message) *FakeChatModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, msg)
	return f
}

// Calls returns the inputs received so far.
func (f *FakeChatModel) Calls() [][]*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]*schema.Message, len(f.calls))
	copy(out, f.calls)
	return out
}

// Tools returns the tools bound by the last WithTools call.
func (f *FakeChatModel) Tools() []*schema.ToolInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tools
}

func (f *FakeChatModel) next(input []*schema.Message) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, input)
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("fake chat model has no scripted replies")
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

// Generate implements model.BaseChatModel.
func (f *FakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return f.next(input)
}

// Stream implements model.BaseChatModel. The reply content is split into
// single-rune chunks.
func (f *FakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reply, err := f.next(input)
	if err != nil {
		return nil, err
	}

	var chunks []*schema.Message
	for _, r := range reply.Content {
		chunks = append(chunks, schema.AssistantMessage(string(r), nil))
	}
	if len(reply.ToolCalls) > 0 {
		chunks = append(chunks, &schema.Message{Role: schema.Assistant, ToolCalls: reply.ToolCalls})
	}

	sr, sw := schema.Pipe[*schema.Message](len(chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range chunks {
			sw.Send(c, nil)
		}
		if f.StreamErr != nil {
			sw.Send(nil, f.StreamErr)
		}
	}()
	return sr, nil
}

// WithTools implements model.ToolCallingChatModel. The fake records the tools
// and returns itself so the script is shared.
func (f *FakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
	return f, nil
}
