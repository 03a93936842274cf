package models

import "fmt"

// Role is the access level of an account. New signups start inactive and
// must be promoted by an admin.
type Role string

const (
	RoleInactive Role = "inactive"
	RoleMember   Role = "member"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleInactive, RoleMember, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
