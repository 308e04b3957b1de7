package tokens

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/tiktoken-go/tokenizer"
)

func TestModelToEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  tokenizer.Encoding
	}{
		{"gpt-4o-mini", tokenizer.O200kBase},
		{"GPT-4o", tokenizer.O200kBase},
		{"gpt-4.1-nano", tokenizer.O200kBase},
		{"o3-mini", tokenizer.O200kBase},
		{"gpt-4-turbo", tokenizer.Cl100kBase},
		{"gpt-3.5-turbo", tokenizer.Cl100kBase},
		{"ep-20240601-abcde", tokenizer.O200kBase},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := modelToEncoding(tt.model); got != tt.want {
				t.Errorf("modelToEncoding(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestCounter_CountText(t *testing.T) {
	c := NewCounter()

	n, err := c.CountText("gpt-4o-mini", "hello world")
	if err != nil {
		t.Fatalf("CountText() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountText() = %d, want 2", n)
	}

	n, err = c.CountText("gpt-4o-mini", "")
	if err != nil || n != 0 {
		t.Errorf("CountText(\"\") = %d, %v", n, err)
	}
}

func TestCounter_CountMessages(t *testing.T) {
	c := NewCounter()

	one, err := c.CountMessage("gpt-4o-mini", schema.UserMessage("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if one != tokensPerMessage+tokensPerRole+2 {
		t.Errorf("CountMessage() = %d", one)
	}

	total, err := c.CountMessages("gpt-4o-mini", []*schema.Message{
		schema.UserMessage("hello world"),
		schema.AssistantMessage("hello world", nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2*one+replyPriming {
		t.Errorf("CountMessages() = %d, want %d", total, 2*one+replyPriming)
	}

	withCall, _ := c.CountMessage("gpt-4o-mini", schema.AssistantMessage("", []schema.ToolCall{{
		Function: schema.FunctionCall{Name: "calculator", Arguments: `{"expression":"1+1"}`},
	}}))
	if withCall <= tokensPerMessage+tokensPerRole+tokensPerToolCall {
		t.Errorf("tool calls should be counted, got %d", withCall)
	}
}

// =============================================================================
// TrimToBudget Tests
// =============================================================================

func history(turns int) []*schema.Message {
	msgs := []*schema.Message{schema.SystemMessage("You are helpful.")}
	for i := 0; i < turns; i++ {
		msgs = append(msgs,
			schema.UserMessage(strings.Repeat("question ", 20)),
			schema.AssistantMessage(strings.Repeat("answer ", 20), nil),
		)
	}
	return msgs
}

func TestTrimToBudget_KeepsNewest(t *testing.T) {
	c := NewCounter()
	msgs := history(10)

	full, _ := c.CountMessages("gpt-4o-mini", msgs)
	trimmed, err := c.TrimToBudget("gpt-4o-mini", msgs, full/2)
	if err != nil {
		t.Fatalf("TrimToBudget() error = %v", err)
	}

	if len(trimmed) >= len(msgs) {
		t.Fatalf("expected trimming, got %d of %d messages", len(trimmed), len(msgs))
	}
	if trimmed[0].Role != schema.System {
		t.Error("system message must be kept")
	}
	if trimmed[len(trimmed)-1] != msgs[len(msgs)-1] {
		t.Error("newest message must be kept")
	}

	used := 0
	for _, m := range trimmed {
		n, _ := c.CountMessage("gpt-4o-mini", m)
		used += n
	}
	if used > full/2 {
		t.Errorf("trimmed history uses %d tokens, budget %d", used, full/2)
	}
}

func TestTrimToBudget_NoTrim(t *testing.T) {
	c := NewCounter()
	msgs := history(2)

	for _, budget := range []int{0, -1, 1 << 20} {
		got, err := c.TrimToBudget("gpt-4o-mini", msgs, budget)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(msgs) {
			t.Errorf("budget %d: got %d messages, want %d", budget, len(got), len(msgs))
		}
	}
}

func TestTrimToBudget_DropsOrphanToolResult(t *testing.T) {
	c := NewCounter()
	msgs := []*schema.Message{
		schema.UserMessage(strings.Repeat("long ", 200)),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "1", Function: schema.FunctionCall{Name: "search", Arguments: strings.Repeat("x", 400)}}}),
		schema.ToolMessage("result", "1"),
		schema.AssistantMessage("done", nil),
	}

	got, err := c.TrimToBudget("gpt-4o-mini", msgs, 20)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range got {
		if m.Role == schema.Tool {
			t.Error("orphaned tool result should be dropped")
		}
	}
	if len(got) == 0 || got[len(got)-1].Content != "done" {
		t.Errorf("got %+v", got)
	}
}
