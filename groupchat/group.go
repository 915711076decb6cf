package groupchat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/tools"
	"github.com/ccc1994/Chaos/types"
)

// EpisodeStatus 表示一次会话回合的生命周期状态。
type EpisodeStatus string

const (
	EpisodeActive    EpisodeStatus = "active"
	EpisodeCompleted EpisodeStatus = "completed"
	// EpisodeStalled means the episode stopped without a termination
	// marker, typically because the round budget ran out.
	EpisodeStalled EpisodeStatus = "stalled"
)

// DefaultMaxRounds bounds an episode when no budget is configured.
const DefaultMaxRounds = 50

// GroupConfig carries per-group settings.
type GroupConfig struct {
	Name      string
	MaxRounds int
}

// EpisodeResult describes how an episode ended.
type EpisodeResult struct {
	Status EpisodeStatus
	Final  types.Message
	Rounds int
	Reason string
}

// ChatGroup 将固定的角色集合、一份共享转录与一个发言人策略绑定为
// 单个会话单元。所有编排状态只被 Run 所在的单一逻辑线程访问；
// 并发由 llm 与 tools 层内部处理。
type ChatGroup struct {
	name       string
	agents     map[types.Role]*RoleAgent
	transcript *Transcript
	policy     TransitionPolicy
	engine     Engine
	executor   *tools.Executor
	compressor *ContextCompressor
	delegator  *Delegator
	metrics    *Metrics
	logger     *zap.Logger

	maxRounds int
	rounds    int
	status    EpisodeStatus
}

// GroupOption configures optional collaborators.
type GroupOption func(*ChatGroup)

// WithExecutor wires synchronous capability resolution.
func WithExecutor(e *tools.Executor) GroupOption {
	return func(g *ChatGroup) { g.executor = e }
}

// WithCompressor wires transcript compression.
func WithCompressor(c *ContextCompressor) GroupOption {
	return func(g *ChatGroup) { g.compressor = c }
}

// WithDelegator wires nested delegation.
func WithDelegator(d *Delegator) GroupOption {
	return func(g *ChatGroup) { g.delegator = d }
}

// WithMetrics wires the orchestration counters.
func WithMetrics(m *Metrics) GroupOption {
	return func(g *ChatGroup) { g.metrics = m }
}

// WithLogger sets the group logger.
func WithLogger(l *zap.Logger) GroupOption {
	return func(g *ChatGroup) { g.logger = l }
}

// NewChatGroup creates a group over the given agent set and policy.
func NewChatGroup(cfg GroupConfig, agents []*RoleAgent, policy TransitionPolicy, engine Engine, opts ...GroupOption) (*ChatGroup, error) {
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrConfiguration, "chat group requires at least one agent")
	}
	if policy == nil {
		return nil, types.NewError(types.ErrConfiguration, "chat group requires a transition policy")
	}
	if engine == nil {
		return nil, types.NewError(types.ErrConfiguration, "chat group requires a turn engine")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.Name == "" {
		cfg.Name = "main"
	}

	byRole := make(map[types.Role]*RoleAgent, len(agents))
	for _, a := range agents {
		if _, dup := byRole[a.Role]; dup {
			return nil, types.NewError(types.ErrConfiguration, fmt.Sprintf("duplicate agent for role %s", a.Role))
		}
		byRole[a.Role] = a
	}

	g := &ChatGroup{
		name:       cfg.Name,
		agents:     byRole,
		transcript: NewTranscript(),
		policy:     policy,
		engine:     engine,
		maxRounds:  cfg.MaxRounds,
		status:     EpisodeActive,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "groupchat"), zap.String("group", g.name))
	return g, nil
}

// Name returns the group name.
func (g *ChatGroup) Name() string { return g.name }

// Transcript exposes the group's transcript.
func (g *ChatGroup) Transcript() *Transcript { return g.transcript }

// Rounds returns the number of messages appended so far.
func (g *ChatGroup) Rounds() int { return g.rounds }

// Status returns the episode state.
func (g *ChatGroup) Status() EpisodeStatus { return g.status }

// CurrentSpeaker returns the sender of the most recent message.
func (g *ChatGroup) CurrentSpeaker() (types.Role, bool) {
	last, ok := g.transcript.Last()
	if !ok {
		return "", false
	}
	return last.Sender, true
}

// PostMessage appends a message to the transcript, enforcing the round
// budget and running the compressor first so the check sees the state
// the new message will join. Exceeding the budget moves the group to
// the stalled state and returns a ROUND_BUDGET_EXCEEDED error; the
// transcript keeps everything appended so far.
func (g *ChatGroup) PostMessage(ctx context.Context, msg types.Message) error {
	if g.status == EpisodeStalled {
		return types.NewError(types.ErrRoundBudgetExceeded,
			fmt.Sprintf("group %s is stalled after %d rounds", g.name, g.rounds))
	}
	if g.rounds >= g.maxRounds {
		g.status = EpisodeStalled
		return types.NewError(types.ErrRoundBudgetExceeded,
			fmt.Sprintf("round budget %d exhausted for group %s", g.maxRounds, g.name))
	}

	if g.compressor != nil {
		if compressed, degraded := g.compressor.Compress(ctx, g.transcript); compressed {
			g.metrics.observeCompression(degraded)
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	g.transcript.Append(msg)
	g.rounds++
	g.metrics.incRound(g.name)
	g.logger.Debug("message posted",
		zap.String("sender", string(msg.Sender)),
		zap.Int("round", g.rounds),
		zap.Int("content_len", len(msg.Content)))
	return nil
}

// Run drives one episode: seed the transcript with the task, then loop
// speaker selection, turn generation, capability resolution, and
// delegation until a terminal condition. The returned result is always
// usable; the error is non-nil only for episode-fatal conditions
// (cancellation, a policy selecting a role outside the agent set).
func (g *ChatGroup) Run(ctx context.Context, task string) (*EpisodeResult, error) {
	g.status = EpisodeActive
	seed := types.NewMessage(types.RoleHumanProxy, task)
	if err := g.PostMessage(ctx, seed); err != nil {
		return g.finish("round_budget_exceeded"), nil
	}

	for {
		if err := ctx.Err(); err != nil {
			g.status = EpisodeStalled
			return g.finish("cancelled"), err
		}

		msgs := g.transcript.Messages()
		next, ok := g.policy.NextSpeaker(msgs)
		if !ok {
			g.status = EpisodeCompleted
			return g.finish("policy_exhausted"), nil
		}
		agent, known := g.agents[next]
		if !known {
			g.status = EpisodeStalled
			return g.finish("unknown_role"), types.NewError(types.ErrPolicyExhausted,
				fmt.Sprintf("policy selected role %q outside the agent set", next))
		}

		last, _ := g.transcript.Last()
		if next == types.RoleHumanProxy && containsAnyMarker(last.Content, []string{TerminationToken}) {
			g.status = EpisodeCompleted
			return g.finish("terminated"), nil
		}

		var msg types.Message
		if last.Unresolved() && next == last.Sender && g.executor != nil {
			msg = g.resolveInvocations(ctx, last)
		} else {
			out, err := g.engine.GenerateTurn(ctx, agent, msgs)
			if err != nil {
				// Turn-local failure: surface it in the transcript so the
				// conversation can route around it. The budget still bounds
				// a backend that keeps failing.
				g.logger.Warn("turn generation failed",
					zap.String("role", string(next)), zap.Error(err))
				msg = types.NewMessage(next, "generation failed: "+err.Error()).
					WithMetadata(map[string]any{"degraded": true})
			} else {
				msg = types.NewMessage(next, out.Content)
				if len(out.ToolCalls) > 0 {
					invs := make([]types.Invocation, len(out.ToolCalls))
					for i, call := range out.ToolCalls {
						invs[i] = types.Invocation{Call: call}
					}
					msg = msg.WithInvocations(invs)
				}
			}
		}

		if err := g.PostMessage(ctx, msg); err != nil {
			return g.finish("round_budget_exceeded"), nil
		}

		if g.delegator != nil {
			if subTask, fire := g.delegator.MaybeDelegate(msg); fire {
				fold := g.delegator.Delegate(ctx, subTask)
				if err := g.PostMessage(ctx, fold); err != nil {
					return g.finish("round_budget_exceeded"), nil
				}
			}
		}
	}
}

// resolveInvocations executes the unresolved capability calls of msg
// and produces the resolution message from the same speaker. Failures
// become result content; they never abort the turn.
func (g *ChatGroup) resolveInvocations(ctx context.Context, msg types.Message) types.Message {
	var calls []types.ToolCall
	for _, inv := range msg.Invocations {
		if !inv.Resolved() {
			calls = append(calls, inv.Call)
		}
	}
	results := g.executor.Execute(ctx, msg.Sender, calls)

	invs := make([]types.Invocation, len(calls))
	var content string
	for i := range calls {
		res := results[i]
		invs[i] = types.Invocation{Call: calls[i], Result: &res}
		if content != "" {
			content += "\n"
		}
		if res.Error != "" {
			content += fmt.Sprintf("[%s error] %s", res.Name, res.Error)
		} else {
			content += fmt.Sprintf("[%s] %s", res.Name, res.Content)
		}
	}
	return types.NewMessage(msg.Sender, content).WithInvocations(invs)
}

func (g *ChatGroup) finish(reason string) *EpisodeResult {
	final, _ := g.transcript.Last()
	g.metrics.observeEpisode(g.status)
	g.logger.Info("episode finished",
		zap.String("status", string(g.status)),
		zap.String("reason", reason),
		zap.Int("rounds", g.rounds))
	return &EpisodeResult{
		Status: g.status,
		Final:  final,
		Rounds: g.rounds,
		Reason: reason,
	}
}
