package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// AgentTypeDefault uses every tool.
	AgentTypeDefault = "default"

	// AgentTypeResearch uses search and db_query with a research persona.
	AgentTypeResearch = "research"
)

const defaultAgentPrompt = `You are a helpful AI assistant with access to tools.
Use the tools available to you to help answer questions and complete tasks.
Always be helpful, accurate, and concise.`

const researchAgentPrompt = "You are a research assistant. Use tools to gather and analyze information."

// agentMaxStep bounds the reason/act loop.
const agentMaxStep = 12

// AgentRequest is a task for a tool-using agent.
type AgentRequest struct {
	Task      string
	AgentType string
}

// AgentResult is the agent's final answer.
type AgentResult struct {
	Result    string
	AgentType string
	TaskID    string
}

type agentProfile struct {
	tools  []string
	prompt string
}

func profileFor(agentType string) agentProfile {
	if agentType == AgentTypeResearch {
		return agentProfile{tools: []string{ToolSearch, ToolDBQuery}, prompt: researchAgentPrompt}
	}
	return agentProfile{prompt: defaultAgentPrompt}
}

// RunAgent executes a ReAct agent built for the request's agent type.
func (s *Service) RunAgent(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	if req.AgentType == "" {
		req.AgentType = AgentTypeDefault
	}
	profile := profileFor(req.AgentType)

	var result *AgentResult
	err := s.tracer.Run(ctx, "agent.invoke", func(ctx context.Context) error {
		tools, err := s.buildTools(profile.tools)
		if err != nil {
			return err
		}

		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: s.model,
			ToolsConfig:      compose.ToolsNodeConfig{Tools: tools},
			MessageModifier: func(_ context.Context, input []*schema.Message) []*schema.Message {
				return append([]*schema.Message{schema.SystemMessage(profile.prompt)}, input...)
			},
			MaxStep: agentMaxStep,
		})
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		msg, err := agent.Generate(ctx, []*schema.Message{schema.UserMessage(req.Task)})
		if err != nil {
			return err
		}

		result = &AgentResult{
			Result:    msg.Content,
			AgentType: req.AgentType,
			TaskID:    uuid.NewString(),
		}
		return nil
	}, attribute.String("operation", "agent"), attribute.String("agent_type", req.AgentType))
	if err != nil {
		return nil, err
	}
	return result, nil
}
