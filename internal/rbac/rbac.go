// Package rbac maps account roles to the actions they may perform.
package rbac

type Role string
type Action string

const (
	RoleGuest  Role = "guest"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionReport Action = "report"
	ActionWrite  Action = "write"
	ActionTriage Action = "triage"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionReport || action == ActionWrite || action == ActionTriage
	case RoleGuest:
		return action == ActionRead || action == ActionReport
	default:
		return false
	}
}

// Normalize maps unknown stored roles to member. An empty role is a guest.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleGuest, RoleMember, RoleAdmin:
		return Role(role)
	case "":
		return RoleGuest
	default:
		return RoleMember
	}
}
