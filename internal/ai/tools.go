package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/expr-lang/expr"

	"github.com/tjfontaine/lambda-api/internal/storage"
)

// Tool names offered to agents.
const (
	ToolSearch     = "search"
	ToolCalculator = "calculator"
	ToolDBQuery    = "db_query"
)

// AvailableTools lists every tool name in registration order.
var AvailableTools = []string{ToolSearch, ToolCalculator, ToolDBQuery}

type searchInput struct {
	Query string `json:"query" jsonschema:"description=The search query"`
}

type calculatorInput struct {
	Expression string `json:"expression" jsonschema:"description=Mathematical expression to evaluate"`
}

type dbQueryInput struct {
	Query string `json:"query" jsonschema:"description=Description of the records to look up"`
}

// dbQueryLimit caps how many example records the db_query tool returns.
const dbQueryLimit = 10

// buildTools returns the named tools, or all of them when names is empty.
// Unknown names are skipped.
func (s *Service) buildTools(names []string) ([]tool.BaseTool, error) {
	if len(names) == 0 {
		names = AvailableTools
	}

	var out []tool.BaseTool
	for _, name := range names {
		var (
			t   tool.InvokableTool
			err error
		)
		switch name {
		case ToolSearch:
			t, err = utils.InferTool(ToolSearch, "Search for information on the web", s.search)
		case ToolCalculator:
			t, err = utils.InferTool(ToolCalculator, "Perform mathematical calculations", s.calculate)
		case ToolDBQuery:
			t, err = utils.InferTool(ToolDBQuery, "Look up recent example records in the database", s.dbQuery)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to build tool %s: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) search(ctx context.Context, in *searchInput) (string, error) {
	s.logger.InfoContext(ctx, "search tool called", slog.String("query", in.Query))
	return "Search results for: " + in.Query, nil
}

// calculate evaluates arithmetic with expr. Only the builtin operators and
// functions are available; there is no environment to reach into.
func (s *Service) calculate(ctx context.Context, in *calculatorInput) (string, error) {
	result, err := evaluate(in.Expression)
	if err != nil {
		s.logger.WarnContext(ctx, "calculator error",
			slog.String("expression", in.Expression),
			slog.String("error", err.Error()))
		return "Error: Invalid expression", nil
	}
	s.logger.InfoContext(ctx, "calculator tool called",
		slog.String("expression", in.Expression),
		slog.String("result", result))
	return result, nil
}

func evaluate(expression string) (string, error) {
	program, err := expr.Compile(strings.TrimSpace(expression), expr.Env(map[string]any{}))
	if err != nil {
		return "", err
	}
	out, err := expr.Run(program, map[string]any{})
	if err != nil {
		return "", err
	}
	switch v := out.(type) {
	case int, int64, float64, float32:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("expression evaluated to %T, want a number", out)
	}
}

// dbQuery never executes the supplied query. It logs it and returns the most
// recent example records.
func (s *Service) dbQuery(ctx context.Context, in *dbQueryInput) (string, error) {
	s.logger.InfoContext(ctx, "database query tool called", slog.String("query", in.Query))

	if s.examples == nil {
		return "No database is configured.", nil
	}
	examples, err := s.examples.ListExamples(ctx, storage.ListOptions{Limit: dbQueryLimit})
	if err != nil {
		return "", fmt.Errorf("failed to list examples: %w", err)
	}
	if len(examples) == 0 {
		return "No records found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d records:\n", len(examples))
	for _, ex := range examples {
		fmt.Fprintf(&b, "- %s (id=%s, active=%t)", ex.Name, ex.ID, ex.IsActive)
		if ex.Description != "" {
			fmt.Fprintf(&b, ": %s", ex.Description)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
