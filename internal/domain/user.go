package domain

// Role is the closed set of author roles the trigger analyzer dispatches on.
type Role int

const (
	// RoleUnresolved marks a failed user lookup.
	RoleUnresolved Role = iota
	RoleAgent
	RoleAdmin
	RoleEndUser
	RoleOther
)

// ParseRole maps the helpdesk's role string.
func ParseRole(s string) Role {
	switch s {
	case "agent":
		return RoleAgent
	case "admin":
		return RoleAdmin
	case "end-user", "end_user":
		return RoleEndUser
	default:
		return RoleOther
	}
}

func (r Role) String() string {
	switch r {
	case RoleAgent:
		return "agent"
	case RoleAdmin:
		return "admin"
	case RoleEndUser:
		return "end-user"
	case RoleOther:
		return "other"
	default:
		return "unresolved"
	}
}

// IsStaff is true for agent and admin authors.
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// User is a helpdesk account as returned by the user endpoint.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
