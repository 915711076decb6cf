package groupchat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/tools"
	"github.com/ccc1994/Chaos/types"
)

// Engine generates turns and summaries for role agents. ChatGroup only
// depends on this interface; the production implementation goes through
// the provider registry, tests substitute scripted engines.
type Engine interface {
	// GenerateTurn produces the agent's next utterance given the
	// transcript rendered from its point of view.
	GenerateTurn(ctx context.Context, agent *RoleAgent, transcript []types.Message) (TurnOutput, error)
	// Summarize produces a condensed rendition of transcript text.
	Summarize(ctx context.Context, text string) (string, error)
}

// TurnOutput is the result of one generation call.
type TurnOutput struct {
	Content   string
	ToolCalls []types.ToolCall
}

// LLMEngine 通过 provider 注册表驱动真实模型完成回合生成与摘要。
type LLMEngine struct {
	registry     *llm.ProviderRegistry
	capabilities *tools.Registry
	summaryModel llm.ModelRef
	logger       *zap.Logger
}

// NewLLMEngine creates the production engine. summaryModel is the
// binding used for compression summaries.
func NewLLMEngine(registry *llm.ProviderRegistry, capabilities *tools.Registry, summaryModel llm.ModelRef, logger *zap.Logger) *LLMEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMEngine{
		registry:     registry,
		capabilities: capabilities,
		summaryModel: summaryModel,
		logger:       logger.With(zap.String("component", "engine")),
	}
}

// GenerateTurn implements Engine.
func (e *LLMEngine) GenerateTurn(ctx context.Context, agent *RoleAgent, transcript []types.Message) (TurnOutput, error) {
	provider, err := e.registry.Resolve(agent.Model)
	if err != nil {
		return TurnOutput{}, fmt.Errorf("resolve provider for %s: %w", agent.Role, err)
	}

	req := &llm.ChatRequest{
		Model:    agent.Model.ModelID,
		Messages: renderForModel(agent, transcript),
	}
	if e.capabilities != nil && len(agent.AllowedCapabilities) > 0 {
		req.Tools = e.capabilities.SchemasFor(agent.Role, agent.AllowedCapabilities)
		if len(req.Tools) > 0 {
			req.ToolChoice = "auto"
		}
	}

	resp, err := provider.Completion(ctx, req)
	if err != nil {
		return TurnOutput{}, err
	}
	if len(resp.Choices) == 0 {
		return TurnOutput{}, types.NewError(types.ErrUpstreamError, "completion returned no choices").WithProvider(provider.Name())
	}

	reply := resp.First()
	out := TurnOutput{Content: reply.Content}
	for _, tc := range reply.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	e.logger.Debug("turn generated",
		zap.String("role", string(agent.Role)),
		zap.Int("tool_calls", len(out.ToolCalls)),
		zap.Int("content_len", len(out.Content)))
	return out, nil
}

// Summarize implements Engine.
func (e *LLMEngine) Summarize(ctx context.Context, text string) (string, error) {
	provider, err := e.registry.Resolve(e.summaryModel)
	if err != nil {
		return "", fmt.Errorf("resolve summary provider: %w", err)
	}
	resp, err := provider.Completion(ctx, &llm.ChatRequest{
		Model: e.summaryModel.ModelID,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: text},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", types.NewError(types.ErrSummarizationFailed, "summary completion returned no choices")
	}
	return resp.First().Content, nil
}

// renderForModel projects the shared transcript onto one agent's chat
// view: its own messages become assistant turns, everyone else's become
// named user turns, with the instruction profile pinned at the front.
func renderForModel(agent *RoleAgent, transcript []types.Message) []llm.Message {
	out := make([]llm.Message, 0, len(transcript)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: agent.SystemPrompt})
	for _, m := range transcript {
		role := llm.RoleUser
		if m.Sender == agent.Role {
			role = llm.RoleAssistant
		}
		lm := llm.Message{Role: role, Content: m.Content, Name: m.Name}
		if lm.Name == "" {
			lm.Name = string(m.Sender)
		}
		for _, inv := range m.Invocations {
			if inv.Result != nil {
				lm.Content += "\n[" + inv.Call.Name + " output]\n" + inv.Result.Content
			}
		}
		out = append(out, lm)
	}
	return out
}
