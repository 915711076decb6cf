package groupchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/tools"
	"github.com/ccc1994/Chaos/types"
)

// ---------------------------------------------------------------------------
// Mock Engine
// ---------------------------------------------------------------------------

type scriptedEngine struct {
	turnFn  func(agent *RoleAgent, transcript []types.Message) (TurnOutput, error)
	summary string
	calls   map[types.Role]int
}

func newScriptedEngine(turnFn func(agent *RoleAgent, transcript []types.Message) (TurnOutput, error)) *scriptedEngine {
	return &scriptedEngine{turnFn: turnFn, calls: make(map[types.Role]int)}
}

func (e *scriptedEngine) GenerateTurn(_ context.Context, agent *RoleAgent, transcript []types.Message) (TurnOutput, error) {
	e.calls[agent.Role]++
	return e.turnFn(agent, transcript)
}

func (e *scriptedEngine) Summarize(context.Context, string) (string, error) {
	return e.summary, nil
}

func testBindings() map[types.Role]llm.ModelRef {
	bindings := make(map[types.Role]llm.ModelRef)
	for _, r := range types.AllRoles() {
		bindings[r] = llm.ModelRef{ModelID: "test-model"}
	}
	return bindings
}

func testAgents(t *testing.T) []*RoleAgent {
	t.Helper()
	agents, err := NewRoleAgents(testBindings())
	require.NoError(t, err)
	return agents
}

// happyPathEngine walks the pipeline straight through to termination.
func happyPathEngine() *scriptedEngine {
	return newScriptedEngine(func(agent *RoleAgent, _ []types.Message) (TurnOutput, error) {
		switch agent.Role {
		case types.RoleDesigner:
			return TurnOutput{Content: "plan: add the endpoint"}, nil
		case types.RoleImplementer:
			return TurnOutput{Content: "implemented in handler.go"}, nil
		case types.RoleReviewer:
			return TurnOutput{Content: "APPROVE"}, nil
		case types.RoleVerifier:
			return TurnOutput{Content: "all tests pass. TERMINATE"}, nil
		default:
			return TurnOutput{Content: "ack"}, nil
		}
	})
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewRoleAgents_ReportsAllMissingBindingsTogether(t *testing.T) {
	t.Parallel()

	bindings := testBindings()
	bindings[types.RoleDesigner] = llm.ModelRef{}
	bindings[types.RoleVerifier] = llm.ModelRef{}

	_, err := NewRoleAgents(bindings)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), string(types.RoleDesigner))
	assert.Contains(t, err.Error(), string(types.RoleVerifier))
}

func TestNewChatGroup_Validation(t *testing.T) {
	t.Parallel()

	engine := happyPathEngine()
	agents := testAgents(t)

	_, err := NewChatGroup(GroupConfig{}, nil, NewProceduralPolicy(), engine)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	_, err = NewChatGroup(GroupConfig{}, agents, nil, engine)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	_, err = NewChatGroup(GroupConfig{}, agents, NewProceduralPolicy(), nil)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

// ---------------------------------------------------------------------------
// Episode loop
// ---------------------------------------------------------------------------

func TestChatGroup_RunCompletesOnTermination(t *testing.T) {
	t.Parallel()

	engine := happyPathEngine()
	g, err := NewChatGroup(GroupConfig{Name: "main", MaxRounds: 20}, testAgents(t), NewProceduralPolicy(), engine)
	require.NoError(t, err)

	result, err := g.Run(context.Background(), "add a /health endpoint")
	require.NoError(t, err)

	assert.Equal(t, EpisodeCompleted, result.Status)
	assert.Equal(t, "terminated", result.Reason)
	assert.Equal(t, types.RoleVerifier, result.Final.Sender)
	assert.Equal(t, 5, result.Rounds, "seed + one turn per role before termination")

	msgs := g.Transcript().Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, types.RoleHumanProxy, msgs[0].Sender)
	assert.Equal(t, "add a /health endpoint", msgs[0].Content)

	speaker, ok := g.CurrentSpeaker()
	require.True(t, ok)
	assert.Equal(t, types.RoleVerifier, speaker)
}

func TestChatGroup_RoundBudgetStallsEpisode(t *testing.T) {
	t.Parallel()

	// Reviewer never approves: the implement-review loop spins until
	// the budget runs out.
	engine := newScriptedEngine(func(agent *RoleAgent, _ []types.Message) (TurnOutput, error) {
		if agent.Role == types.RoleReviewer {
			return TurnOutput{Content: "still not right"}, nil
		}
		return TurnOutput{Content: "work from " + string(agent.Role)}, nil
	})

	g, err := NewChatGroup(GroupConfig{MaxRounds: 7}, testAgents(t), NewProceduralPolicy(), engine)
	require.NoError(t, err)

	result, err := g.Run(context.Background(), "impossible task")
	require.NoError(t, err, "running out of budget is not episode-fatal")

	assert.Equal(t, EpisodeStalled, result.Status)
	assert.Equal(t, "round_budget_exceeded", result.Reason)
	assert.Equal(t, 7, result.Rounds)
	assert.Equal(t, 7, g.Transcript().Len(), "everything appended so far stays")

	// The stalled group refuses further posts.
	postErr := g.PostMessage(context.Background(), msg(types.RoleDesigner, "one more"))
	assert.Equal(t, types.ErrRoundBudgetExceeded, types.GetErrorCode(postErr))
}

func TestChatGroup_ResolvesCapabilityCallsBeforeAdvancing(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register("read_file", func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"package main"`), nil
	}, tools.Metadata{Roles: []types.Role{types.RoleImplementer}}))
	executor := tools.NewExecutor(registry, nil)

	engine := newScriptedEngine(func(agent *RoleAgent, _ []types.Message) (TurnOutput, error) {
		switch agent.Role {
		case types.RoleDesigner:
			return TurnOutput{Content: "plan"}, nil
		case types.RoleImplementer:
			return TurnOutput{
				Content: "let me check the file",
				ToolCalls: []types.ToolCall{
					{ID: "c1", Name: "read_file", Arguments: json.RawMessage(`{"path":"main.go"}`)},
				},
			}, nil
		case types.RoleReviewer:
			return TurnOutput{Content: "APPROVE"}, nil
		case types.RoleVerifier:
			return TurnOutput{Content: "TERMINATE"}, nil
		default:
			return TurnOutput{Content: "ack"}, nil
		}
	})

	g, err := NewChatGroup(GroupConfig{MaxRounds: 20}, testAgents(t), NewProceduralPolicy(), engine,
		WithExecutor(executor))
	require.NoError(t, err)

	result, err := g.Run(context.Background(), "inspect main.go")
	require.NoError(t, err)
	require.Equal(t, EpisodeCompleted, result.Status)

	msgs := g.Transcript().Messages()
	require.Len(t, msgs, 6, "seed, designer, implementer call, resolution, reviewer, verifier")

	callMsg := msgs[2]
	assert.Equal(t, types.RoleImplementer, callMsg.Sender)
	assert.True(t, callMsg.Unresolved())

	resolution := msgs[3]
	assert.Equal(t, types.RoleImplementer, resolution.Sender, "resolution comes from the issuing role")
	assert.False(t, resolution.Unresolved())
	assert.Contains(t, resolution.Content, "package main")
	assert.Equal(t, 1, engine.calls[types.RoleImplementer],
		"resolution is executed, not generated")
}

func TestChatGroup_CapabilityFailureSurfacesInResult(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register("execute_shell", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("exit status 1: command not found")
	}, tools.Metadata{}))
	executor := tools.NewExecutor(registry, nil)

	first := true
	engine := newScriptedEngine(func(agent *RoleAgent, _ []types.Message) (TurnOutput, error) {
		if agent.Role == types.RoleVerifier && first {
			first = false
			return TurnOutput{
				Content:   "running tests",
				ToolCalls: []types.ToolCall{{ID: "c1", Name: "execute_shell", Arguments: json.RawMessage(`{"cmd":"go test"}`)}},
			}, nil
		}
		return happyPathEngine().turnFn(agent, nil)
	})

	g, err := NewChatGroup(GroupConfig{MaxRounds: 20}, testAgents(t), NewProceduralPolicy(), engine,
		WithExecutor(executor))
	require.NoError(t, err)

	result, err := g.Run(context.Background(), "verify the build")
	require.NoError(t, err, "capability failures never abort the episode")
	assert.Equal(t, EpisodeCompleted, result.Status)

	var resolution *types.Message
	for i, m := range g.Transcript().Messages() {
		if m.Sender == types.RoleVerifier && len(m.Invocations) > 0 && !m.Unresolved() {
			resolution = &g.Transcript().Messages()[i]
			break
		}
	}
	require.NotNil(t, resolution)
	assert.Contains(t, resolution.Content, "exit status 1")
}

func TestChatGroup_GenerationFailureBecomesDegradedMessage(t *testing.T) {
	t.Parallel()

	failedOnce := false
	engine := newScriptedEngine(func(agent *RoleAgent, _ []types.Message) (TurnOutput, error) {
		if agent.Role == types.RoleDesigner && !failedOnce {
			failedOnce = true
			return TurnOutput{}, errors.New("upstream 500")
		}
		return happyPathEngine().turnFn(agent, nil)
	})

	g, err := NewChatGroup(GroupConfig{MaxRounds: 20}, testAgents(t), NewProceduralPolicy(), engine)
	require.NoError(t, err)

	result, err := g.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, EpisodeCompleted, result.Status)

	degraded := g.Transcript().Messages()[1]
	assert.Equal(t, types.RoleDesigner, degraded.Sender)
	assert.Contains(t, degraded.Content, "generation failed")
	assert.Equal(t, true, degraded.Metadata["degraded"])
}

func TestChatGroup_CancellationStopsEpisode(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	engine := newScriptedEngine(func(agent *RoleAgent, _ []types.Message) (TurnOutput, error) {
		cancel() // cancel mid-episode
		return TurnOutput{Content: "work"}, nil
	})

	g, err := NewChatGroup(GroupConfig{MaxRounds: 50}, testAgents(t), NewProceduralPolicy(), engine)
	require.NoError(t, err)

	result, err := g.Run(ctx, "task")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, EpisodeStalled, result.Status)
	assert.Equal(t, "cancelled", result.Reason)
}

// rogue policy used to exercise the agent-set invariant.
type roguePolicy struct{}

func (roguePolicy) NextSpeaker([]types.Message) (types.Role, bool) {
	return types.Role("intruder"), true
}

func TestChatGroup_UnknownRoleFromPolicyIsFatal(t *testing.T) {
	t.Parallel()

	g, err := NewChatGroup(GroupConfig{MaxRounds: 10}, testAgents(t), roguePolicy{}, happyPathEngine())
	require.NoError(t, err)

	result, err := g.Run(context.Background(), "task")
	require.Error(t, err)
	assert.Equal(t, types.ErrPolicyExhausted, types.GetErrorCode(err))
	assert.Equal(t, EpisodeStalled, result.Status)
}

func TestChatGroup_DeclarativeSubEpisodeCompletesOnExhaustedPolicy(t *testing.T) {
	t.Parallel()

	engine := newScriptedEngine(func(agent *RoleAgent, _ []types.Message) (TurnOutput, error) {
		return TurnOutput{Content: fmt.Sprintf("%s done", agent.Role)}, nil
	})
	policy := NewDeclarativePolicy(types.RoleImplementer, map[types.Role][]types.Role{
		types.RoleHumanProxy:  {types.RoleImplementer},
		types.RoleImplementer: {types.RoleReviewer},
	})

	g, err := NewChatGroup(GroupConfig{Name: "sub", MaxRounds: 10}, testAgents(t), policy, engine)
	require.NoError(t, err)

	result, err := g.Run(context.Background(), "small fix")
	require.NoError(t, err)
	assert.Equal(t, EpisodeCompleted, result.Status)
	assert.Equal(t, "policy_exhausted", result.Reason)
	assert.Equal(t, types.RoleReviewer, result.Final.Sender)
}
