package tokens

import "github.com/cloudwego/eino/schema"

// DefaultHistoryBudget bounds the history sent with each chat request.
const DefaultHistoryBudget = 4000

// TrimToBudget returns the longest suffix of history whose token count fits
// within budget. Leading system messages are always kept and count toward the
// budget. A budget of zero or less disables trimming.
func (c *Counter) TrimToBudget(model string, history []*schema.Message, budget int) ([]*schema.Message, error) {
	if budget <= 0 || len(history) == 0 {
		return history, nil
	}

	codec, err := c.codec(model)
	if err != nil {
		return nil, err
	}

	var system []*schema.Message
	rest := history
	for len(rest) > 0 && rest[0] != nil && rest[0].Role == schema.System {
		system = append(system, rest[0])
		rest = rest[1:]
	}

	used := 0
	for _, msg := range system {
		used += countMessage(codec, msg)
	}

	start := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		n := countMessage(codec, rest[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}

	// A tool result without its assistant call is rejected upstream.
	for start < len(rest) && rest[start] != nil && rest[start].Role == schema.Tool {
		start++
	}

	out := make([]*schema.Message, 0, len(system)+len(rest)-start)
	out = append(out, system...)
	out = append(out, rest[start:]...)
	return out, nil
}
