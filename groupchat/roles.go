package groupchat

import (
	"sort"
	"strings"

	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/types"
)

// RoleAgent 是单个参与者的静态身份：角色、指令画像、模型绑定
// 与允许的能力集合。在会话初始化时创建，存活整个会话。
type RoleAgent struct {
	Role                types.Role
	Name                string
	SystemPrompt        string
	Model               llm.ModelRef
	AllowedCapabilities []string
}

// defaultPrompts carries the per-role instruction profiles.
var defaultPrompts = map[types.Role]string{
	types.RoleDesigner: `You are the product manager and architect.
Analyze user requirements and convert them into structured technical specifications or task lists.
Focus on file structure, API definitions, and logic flows.
Ensure the plan is clear enough for the implementer to execute.`,

	types.RoleImplementer: `You are the implementer. Write code based on the architect's design.
Load context lazily: use read_file for file contents and search_code for discovery.
Prefer precise insert_code edits over full rewrites to save tokens.
After implementation, ask the reviewer to audit your work.`,

	types.RoleReviewer: `You are the code reviewer. Audit the implementer's work for bugs, style, and edge cases.
Reference the architect's plan to ensure compliance.
If you find issues, provide specific feedback.
If the code is correct, say 'APPROVE' clearly to proceed to verification.`,

	types.RoleVerifier: `You are the QA engineer. Write and run tests for the code changes.
Use execute_shell to run commands and observe outputs.
If tests pass, say 'VERIFIED' and 'TERMINATE' to end the session.
If tests fail, provide the logs to the implementer for debugging.`,

	types.RoleHumanProxy: `You relay the user's intent. Restate open questions for the user,
confirm completed work, and hand the next requirement to the architect.`,
}

// defaultCapabilities maps each role to the capability names it may use.
// The implementer gets file and search capabilities, the verifier gets
// shell execution; other roles reason over the transcript only.
var defaultCapabilities = map[types.Role][]string{
	types.RoleImplementer: {"read_file", "write_file", "insert_code", "search_code"},
	types.RoleVerifier:    {"execute_shell", "read_file"},
}

// NewRoleAgents builds the fixed agent set from per-role model bindings.
// Every role must carry a non-empty binding; all missing roles are
// reported together in a single configuration error.
func NewRoleAgents(bindings map[types.Role]llm.ModelRef) ([]*RoleAgent, error) {
	var missing []string
	for _, role := range types.AllRoles() {
		if !bindings[role].Bound() {
			missing = append(missing, string(role))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, types.NewError(types.ErrConfiguration,
			"missing model bindings for roles: "+strings.Join(missing, ", "))
	}

	agents := make([]*RoleAgent, 0, len(types.AllRoles()))
	for _, role := range types.AllRoles() {
		agents = append(agents, &RoleAgent{
			Role:                role,
			Name:                string(role),
			SystemPrompt:        defaultPrompts[role],
			Model:               bindings[role],
			AllowedCapabilities: defaultCapabilities[role],
		})
	}
	return agents, nil
}
