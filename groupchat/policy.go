package groupchat

import (
	"strings"

	"github.com/ccc1994/Chaos/types"
)

// TerminationToken 是会话终止标记。当发言权即将交还给人类代理且
// 最后一条消息包含该标记时，回合结束。
const TerminationToken = "TERMINATE"

// Decision markers scanned as case-insensitive substrings of the most
// recent message. Kept as literal tokens; structured verdicts would
// break prompts tuned against these exact strings.
var (
	approvalMarkers = []string{"APPROVE", "LOOKS GOOD"}
	failureMarkers  = []string{"FAIL", "ERROR"}
)

// TransitionPolicy selects the next speaker from the transcript tail.
// Implementations must be pure: no transcript mutation, no I/O.
// The second return is false when the policy yields no valid successor,
// which terminates the episode.
type TransitionPolicy interface {
	NextSpeaker(tail []types.Message) (types.Role, bool)
}

// ProceduralPolicy is the fixed review pipeline:
//
//	Designer → Implementer → Reviewer → (approved? Verifier : Implementer)
//	→ (failed? Implementer : HumanProxy) → Designer
//
// A speaker with unresolved tool invocations keeps the floor so the
// results can be produced before the pipeline advances.
type ProceduralPolicy struct{}

// NewProceduralPolicy 创建流水线式发言人策略。
func NewProceduralPolicy() *ProceduralPolicy {
	return &ProceduralPolicy{}
}

// NextSpeaker implements TransitionPolicy. It never returns false: the
// pipeline always has a successor.
func (p *ProceduralPolicy) NextSpeaker(tail []types.Message) (types.Role, bool) {
	if len(tail) == 0 {
		return types.RoleDesigner, true
	}
	last := tail[len(tail)-1]
	if last.Unresolved() {
		return last.Sender, true
	}

	switch last.Sender {
	case types.RoleDesigner:
		return types.RoleImplementer, true
	case types.RoleImplementer:
		return types.RoleReviewer, true
	case types.RoleReviewer:
		if containsAnyMarker(last.Content, approvalMarkers) {
			return types.RoleVerifier, true
		}
		return types.RoleImplementer, true
	case types.RoleVerifier:
		if containsAnyMarker(last.Content, failureMarkers) {
			return types.RoleImplementer, true
		}
		return types.RoleHumanProxy, true
	case types.RoleHumanProxy:
		return types.RoleDesigner, true
	default:
		// Unknown sender (e.g. a folded-back subordinate scope): restart
		// the pipeline at the design stage.
		return types.RoleDesigner, true
	}
}

// DeclarativePolicy selects speakers from an allow-map of permitted
// transitions. When several successors are allowed, the one that spoke
// least recently wins; roles that never spoke win over roles that did,
// ties broken by the fixed role order. An empty successor set ends the
// episode instead of guessing.
type DeclarativePolicy struct {
	allowed map[types.Role][]types.Role
	first   types.Role
}

// NewDeclarativePolicy 基于转移许可表创建策略。first 为空转录时的
// 起始发言人。
func NewDeclarativePolicy(first types.Role, allowed map[types.Role][]types.Role) *DeclarativePolicy {
	return &DeclarativePolicy{allowed: allowed, first: first}
}

// NextSpeaker implements TransitionPolicy.
func (p *DeclarativePolicy) NextSpeaker(tail []types.Message) (types.Role, bool) {
	if len(tail) == 0 {
		if p.first.Valid() {
			return p.first, true
		}
		return "", false
	}
	last := tail[len(tail)-1]
	if last.Unresolved() {
		return last.Sender, true
	}

	candidates := make([]types.Role, 0, len(p.allowed[last.Sender]))
	for _, r := range p.allowed[last.Sender] {
		if r.Valid() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return leastRecentlySpoken(candidates, tail), true
}

func leastRecentlySpoken(candidates []types.Role, tail []types.Message) types.Role {
	lastSpoke := make(map[types.Role]int, len(candidates))
	for _, r := range candidates {
		lastSpoke[r] = -1
	}
	for i, m := range tail {
		if _, ok := lastSpoke[m.Sender]; ok {
			lastSpoke[m.Sender] = i
		}
	}
	best := candidates[0]
	for _, r := range candidates[1:] {
		if lastSpoke[r] < lastSpoke[best] {
			best = r
		}
	}
	return best
}

// SubGroupFirstSpeaker returns the default opening speaker for a
// subordinate delegation group.
func SubGroupFirstSpeaker() types.Role { return types.RoleImplementer }

// SubGroupTransitions returns the default allow-map for a subordinate
// delegation group: a tight implement-review-verify loop that hands the
// floor to the human proxy when the verifier is satisfied.
func SubGroupTransitions() map[types.Role][]types.Role {
	return map[types.Role][]types.Role{
		types.RoleHumanProxy:  {types.RoleImplementer},
		types.RoleImplementer: {types.RoleReviewer},
		types.RoleReviewer:    {types.RoleImplementer, types.RoleVerifier},
		types.RoleVerifier:    {types.RoleHumanProxy},
	}
}

func containsAnyMarker(content string, markers []string) bool {
	upper := strings.ToUpper(content)
	for _, m := range markers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}
