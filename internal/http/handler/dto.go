package handler

import (
	"time"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

func toUser(u domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, AvatarURL: u.AvatarURL, Provider: u.Provider}
}

type organizationResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toOrganization(o domain.Organization) organizationResponse {
	return organizationResponse{ID: o.ID, Name: o.Name}
}

type membershipResponse struct {
	Organization organizationResponse `json:"organization"`
	Role         domain.Role          `json:"role"`
}

func toMemberships(ms []domain.Membership) []membershipResponse {
	out := make([]membershipResponse, 0, len(ms))
	for _, m := range ms {
		org := m.Organization
		if org.ID == "" {
			org.ID = m.OrganizationID
		}
		out = append(out, membershipResponse{Organization: toOrganization(org), Role: m.Role})
	}
	return out
}

type memberResponse struct {
	User     userResponse `json:"user"`
	Role     domain.Role  `json:"role"`
	JoinedAt time.Time    `json:"joined_at"`
}

func toMember(m domain.Member) memberResponse {
	return memberResponse{User: toUser(m.User), Role: m.Role, JoinedAt: m.JoinedAt}
}

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GitRemote string    `json:"git_remote,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProject(p domain.Project) projectResponse {
	return projectResponse{
		ID:        p.ID,
		Name:      p.Name,
		GitRemote: p.GitRemote,
		Branch:    p.Branch,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toProjects(ps []domain.Project) []projectResponse {
	out := make([]projectResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProject(p))
	}
	return out
}

// tokenResponse never carries the plaintext; ID is its digest.
type tokenResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toToken(t domain.APIToken) tokenResponse {
	return tokenResponse{
		ID:         t.ID,
		Name:       t.Name,
		Prefix:     t.Prefix,
		ExpiresAt:  t.ExpiresAt,
		LastUsedAt: t.LastUsedAt,
		CreatedAt:  t.CreatedAt,
	}
}
