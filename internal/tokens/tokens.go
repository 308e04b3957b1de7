// Package tokens counts prompt tokens with tiktoken and trims conversation
// history to a token budget.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/tiktoken-go/tokenizer"
)

// Chat format overhead, per OpenAI's accounting for gpt-4 family models.
const (
	tokensPerMessage  = 3
	tokensPerRole     = 1
	tokensPerToolCall = 3
	replyPriming      = 3
)

// Counter counts tokens for chat messages. Codecs are cached by encoding.
type Counter struct {
	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewCounter creates a Counter.
func NewCounter() *Counter {
	return &Counter{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

func (c *Counter) codec(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)

	c.mu.RLock()
	if cached, ok := c.codecs[encoding]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.mu.Lock()
	c.codecs[encoding] = codec
	c.mu.Unlock()
	return codec, nil
}

// modelToEncoding maps model names to tiktoken encodings.
//
// Encoding reference:
// - O200kBase: GPT-4.1, GPT-4o, O-series and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo
//
// Unknown models (Ark endpoints among them) use O200kBase as an estimate.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// CountText counts tokens for a plain text string.
func (c *Counter) CountText(model, text string) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountMessage counts one message including its chat format overhead.
func (c *Counter) CountMessage(model string, msg *schema.Message) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	return countMessage(codec, msg), nil
}

// CountMessages counts a full prompt, including the reply priming tokens.
func (c *Counter) CountMessages(model string, msgs []*schema.Message) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	total := replyPriming
	for _, msg := range msgs {
		total += countMessage(codec, msg)
	}
	return total, nil
}

func countMessage(codec tokenizer.Codec, msg *schema.Message) int {
	if msg == nil {
		return 0
	}
	n := tokensPerMessage + tokensPerRole
	n += encodedLen(codec, msg.Content)
	for _, tc := range msg.ToolCalls {
		n += encodedLen(codec, tc.Function.Name)
		n += encodedLen(codec, tc.Function.Arguments)
		n += tokensPerToolCall
	}
	return n
}

func encodedLen(codec tokenizer.Codec, s string) int {
	if s == "" {
		return 0
	}
	ids, _, err := codec.Encode(s)
	if err != nil {
		// Roughly four characters per token.
		return (len(s) + 3) / 4
	}
	return len(ids)
}
