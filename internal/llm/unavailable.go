package llm

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Unavailable stands in for a model when no provider is configured. Every
// call fails with ErrNoCredentials, so the routes still answer with their
// error codes.
type Unavailable struct{}

var _ model.ToolCallingChatModel = Unavailable{}

func (Unavailable) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, ErrNoCredentials
}

func (Unavailable) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, ErrNoCredentials
}

func (u Unavailable) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return u, nil
}
