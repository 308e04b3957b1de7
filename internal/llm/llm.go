// Package llm builds the chat model used by the conversational routes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/tjfontaine/lambda-api/internal/llm/openai"
)

// ErrNoCredentials is returned when no model provider is configured.
var ErrNoCredentials = errors.New("no model credentials configured")

// Config selects and tunes a model provider.
type Config struct {
	// OpenAI-compatible endpoint.
	APIKey  string
	BaseURL string

	// Volcengine Ark. Used instead of OpenAI when both are set.
	ArkAPIKey  string
	ArkModel   string
	ArkBaseURL string
	ArkRegion  string

	Model       string
	Temperature float32
	MaxTokens   int

	HTTPClient *http.Client
}

// Provider reports which backend Config selects.
func (c Config) Provider() string {
	switch {
	case c.ArkAPIKey != "" && c.ArkModel != "":
		return "ark"
	case c.APIKey != "":
		return "openai"
	default:
		return ""
	}
}

// New returns a tool calling chat model for cfg.
func New(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	switch cfg.Provider() {
	case "ark":
		return newArk(ctx, cfg)
	case "openai":
		opts := []openai.ClientOption{openai.WithBaseURL(cfg.BaseURL)}
		if cfg.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
		}
		temperature := cfg.Temperature
		return openai.NewChatModel(openai.NewClient(cfg.APIKey, opts...), openai.ChatModelConfig{
			Model:       cfg.Model,
			Temperature: &temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		return nil, ErrNoCredentials
	}
}

func newArk(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	temperature := cfg.Temperature
	arkCfg := &ark.ChatModelConfig{
		BaseURL:     cfg.ArkBaseURL,
		Region:      cfg.ArkRegion,
		APIKey:      cfg.ArkAPIKey,
		Model:       cfg.ArkModel,
		Temperature: &temperature,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		arkCfg.MaxTokens = &maxTokens
	}

	cm, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}

	tc, ok := any(cm).(model.ToolCallingChatModel)
	if !ok {
		return nil, errors.New("ark chat model does not support tool calling")
	}
	return tc, nil
}
