package groupchat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/types"
)

// DelegationTrigger inspects message content for a sentinel that hands
// a sub-task to a subordinate group.
type DelegationTrigger struct {
	// Sentinel marks a delegating message (exact substring).
	Sentinel string
	// CutMarker, when present in the content, discards everything up to
	// and including it; the remainder (trimmed) is the forwarded task.
	// Without a cut marker the full content is forwarded unmodified.
	CutMarker string
}

// Extract returns the task to forward and whether the trigger fired.
func (t DelegationTrigger) Extract(content string) (string, bool) {
	if t.Sentinel == "" || !strings.Contains(content, t.Sentinel) {
		return "", false
	}
	if t.CutMarker != "" {
		if i := strings.Index(content, t.CutMarker); i >= 0 {
			return strings.TrimSpace(content[i+len(t.CutMarker):]), true
		}
	}
	return content, true
}

// SubGroupFactory builds a fresh subordinate group per delegation,
// with its own transcript and round namespace.
type SubGroupFactory func() (*ChatGroup, error)

// Delegator runs sentinel-triggered subordinate episodes. The parent
// blocks for the duration; only one message folds back.
type Delegator struct {
	trigger DelegationTrigger
	scope   string
	factory SubGroupFactory
	metrics *Metrics
	logger  *zap.Logger
}

// NewDelegator 创建嵌套委派器。scope 命名从属会话（出现在折返消息
// 的 Name 字段中）。
func NewDelegator(trigger DelegationTrigger, scope string, factory SubGroupFactory, metrics *Metrics, logger *zap.Logger) *Delegator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Delegator{
		trigger: trigger,
		scope:   scope,
		factory: factory,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "delegator"), zap.String("scope", scope)),
	}
}

// MaybeDelegate reports whether msg triggers delegation and the task to
// forward. Fold-back messages never re-trigger.
func (d *Delegator) MaybeDelegate(msg types.Message) (string, bool) {
	if delegated, ok := msg.Metadata["delegated"].(bool); ok && delegated {
		return "", false
	}
	return d.trigger.Extract(msg.Content)
}

// Delegate runs the subordinate episode to completion and returns the
// fold-back message. It never fails: a subordinate that stalls or
// cannot be constructed still yields a usable, tagged message.
// Cancelling ctx terminates the subordinate along with the parent.
func (d *Delegator) Delegate(ctx context.Context, task string) types.Message {
	group, err := d.factory()
	if err != nil {
		d.logger.Error("subordinate group construction failed", zap.Error(err))
		d.metrics.observeDelegation(true)
		m := types.NewMessage(types.RoleHumanProxy, "delegation failed: "+err.Error())
		m.Name = d.scope
		return m.WithMetadata(map[string]any{"delegated": true, "stalled": true})
	}

	d.logger.Info("delegating to subordinate group", zap.Int("task_len", len(task)))
	res, runErr := group.Run(ctx, task)
	stalled := runErr != nil || res.Status != EpisodeCompleted
	if runErr != nil {
		d.logger.Warn("subordinate episode ended with error", zap.Error(runErr))
	}
	d.metrics.observeDelegation(stalled)

	m := types.NewMessage(res.Final.Sender, res.Final.Content)
	m.Name = d.scope
	return m.WithMetadata(map[string]any{
		"delegated": true,
		"stalled":   stalled,
		"rounds":    res.Rounds,
	})
}
