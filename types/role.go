package types

// Role identifies one of the fixed conversational roles in a chat group.
// The set is immutable for the lifetime of a session.
type Role string

const (
	// RoleDesigner analyzes requirements and produces technical plans.
	RoleDesigner Role = "designer"
	// RoleImplementer writes code against the designer's plan.
	RoleImplementer Role = "implementer"
	// RoleReviewer audits the implementer's work.
	RoleReviewer Role = "reviewer"
	// RoleVerifier writes and runs tests against the change.
	RoleVerifier Role = "verifier"
	// RoleHumanProxy stands in for the requesting user.
	RoleHumanProxy Role = "human_proxy"
)

// AllRoles returns the fixed role set in pipeline order.
func AllRoles() []Role {
	return []Role{RoleDesigner, RoleImplementer, RoleReviewer, RoleVerifier, RoleHumanProxy}
}

// Valid reports whether r is a member of the fixed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleDesigner, RoleImplementer, RoleReviewer, RoleVerifier, RoleHumanProxy:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
