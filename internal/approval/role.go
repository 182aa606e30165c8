package approval

// Role is an actor's authorization role for the approval engine.
// Finance and admin are interchangeable here: both act as first-stage approvers.
type Role string

const (
	RoleRequester  Role = "requester"
	RoleFinance    Role = "finance"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ResolveRole maps a stored role name to its approval role. Unrecognized names
// resolve to RoleRequester, which carries no approval or rejection rights.
func ResolveRole(name string) Role {
	switch Role(name) {
	case RoleRequester, RoleFinance, RoleAdmin, RoleSuperAdmin:
		return Role(name)
	default:
		return RoleRequester
	}
}

// CanReview reports whether the role may act as an approver at all
func (r Role) CanReview() bool {
	return r == RoleFinance || r == RoleAdmin || r == RoleSuperAdmin
}
