package groupchat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/tools"
	"github.com/ccc1994/Chaos/types"
)

// ---------------------------------------------------------------------------
// Mock Provider
// ---------------------------------------------------------------------------

type recordingProvider struct {
	lastReq *llm.ChatRequest
	resp    *llm.ChatResponse
	err     error
}

func (p *recordingProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.lastReq = req
	return p.resp, p.err
}

func (p *recordingProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *recordingProvider) Name() string { return "recording" }

func TestRenderForModel(t *testing.T) {
	t.Parallel()

	agent := &RoleAgent{Role: types.RoleImplementer, SystemPrompt: "you implement things"}
	res := &types.ToolResult{ToolCallID: "c1", Name: "read_file", Content: "package main"}
	transcript := []types.Message{
		msg(types.RoleHumanProxy, "the task"),
		msg(types.RoleDesigner, "the plan"),
		types.NewMessage(types.RoleImplementer, "reading").WithInvocations([]types.Invocation{
			{Call: types.ToolCall{ID: "c1", Name: "read_file"}, Result: res},
		}),
	}

	rendered := renderForModel(agent, transcript)
	require.Len(t, rendered, 4)

	assert.Equal(t, llm.RoleSystem, rendered[0].Role)
	assert.Equal(t, "you implement things", rendered[0].Content)

	assert.Equal(t, llm.RoleUser, rendered[1].Role)
	assert.Equal(t, string(types.RoleHumanProxy), rendered[1].Name)

	assert.Equal(t, llm.RoleUser, rendered[2].Role, "other roles appear as named users")

	assert.Equal(t, llm.RoleAssistant, rendered[3].Role, "own turns appear as assistant")
	assert.Contains(t, rendered[3].Content, "package main", "resolved tool output travels with the turn")
}

func TestLLMEngine_GenerateTurn(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{
		resp: &llm.ChatResponse{Choices: []llm.ChatChoice{{
			Message: llm.Message{
				Role:    llm.RoleAssistant,
				Content: "let me look first",
				ToolCalls: []llm.ToolCall{
					{ID: "c1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)},
				},
			},
		}}},
	}
	registry := llm.NewProviderRegistry()
	registry.Register("openai_compat", provider)

	caps := tools.NewRegistry(nil)
	require.NoError(t, caps.Register("read_file", func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		return args, nil
	}, tools.Metadata{Roles: []types.Role{types.RoleImplementer}}))

	engine := NewLLMEngine(registry, caps, llm.ModelRef{ModelID: "sum-model", ProviderType: "openai_compat"}, nil)
	agent := &RoleAgent{
		Role:                types.RoleImplementer,
		SystemPrompt:        "implement",
		Model:               llm.ModelRef{ModelID: "qwen-max", ProviderType: "openai_compat"},
		AllowedCapabilities: []string{"read_file"},
	}

	out, err := engine.GenerateTurn(context.Background(), agent, []types.Message{msg(types.RoleDesigner, "plan")})
	require.NoError(t, err)

	assert.Equal(t, "let me look first", out.Content)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "read_file", out.ToolCalls[0].Name)

	require.NotNil(t, provider.lastReq)
	assert.Equal(t, "qwen-max", provider.lastReq.Model)
	require.Len(t, provider.lastReq.Tools, 1)
	assert.Equal(t, "read_file", provider.lastReq.Tools[0].Name)
	assert.Equal(t, "auto", provider.lastReq.ToolChoice)
}

func TestLLMEngine_GenerateTurnNoChoices(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{resp: &llm.ChatResponse{}}
	registry := llm.NewProviderRegistry()
	registry.Register("openai_compat", provider)

	engine := NewLLMEngine(registry, nil, llm.ModelRef{}, nil)
	agent := &RoleAgent{Role: types.RoleDesigner, Model: llm.ModelRef{ModelID: "m", ProviderType: "openai_compat"}}

	_, err := engine.GenerateTurn(context.Background(), agent, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestLLMEngine_Summarize(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{
		resp: &llm.ChatResponse{Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: "condensed"},
		}}},
	}
	registry := llm.NewProviderRegistry()
	registry.Register("openai_compat", provider)

	engine := NewLLMEngine(registry, nil, llm.ModelRef{ModelID: "sum-model", ProviderType: "openai_compat"}, nil)
	got, err := engine.Summarize(context.Background(), "a long conversation")
	require.NoError(t, err)
	assert.Equal(t, "condensed", got)
	assert.Equal(t, "sum-model", provider.lastReq.Model)
}
