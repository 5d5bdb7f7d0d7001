package domain

import (
	"strings"
	"time"
)

// Role is a membership role within an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole normalizes a role name. Unknown values return false.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleMember:
		return RoleMember, true
	default:
		return "", false
	}
}

// CanManage reports whether the role may change org-level settings and credentials.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Organization is the top-level tenant.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership links a user to an organization with a role.
type Membership struct {
	UserID         string
	OrganizationID string
	Role           Role
	Organization   Organization
	CreatedAt      time.Time
}

// Project belongs to exactly one organization.
type Project struct {
	ID             string
	OrganizationID string
	Name           string
	GitRemote      string
	Branch         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Member is a membership joined with the member's profile.
type Member struct {
	User     User
	Role     Role
	JoinedAt time.Time
}
