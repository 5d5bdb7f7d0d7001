package repository

import (
	"context"
	"time"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

// UserRepository exposes persistence for dashboard users.
type UserRepository interface {
	// UpsertByEmail creates the user on first sight, otherwise refreshes the
	// profile and provider identity on the existing row.
	UpsertByEmail(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, userID string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

// OrganizationRepository exposes organizations and their memberships.
type OrganizationRepository interface {
	// CreateWithOwner inserts the organization and its owner membership atomically.
	CreateWithOwner(ctx context.Context, org domain.Organization, ownerID string) (domain.Organization, error)
	// ListMemberships returns the user's memberships, oldest first.
	ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error)
	GetMembership(ctx context.Context, orgID, userID string) (domain.Membership, error)
	ListMembers(ctx context.Context, orgID string) ([]domain.Member, error)
	AddMember(ctx context.Context, orgID, userID string, role domain.Role) error
	UpdateMemberRole(ctx context.Context, orgID, userID string, role domain.Role) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	// ListOrgsWithoutOwner returns organizations that have members but no owner.
	ListOrgsWithoutOwner(ctx context.Context) ([]string, error)
	// PromoteEarliestMember makes the longest-standing member the owner and
	// returns that member's user id.
	PromoteEarliestMember(ctx context.Context, orgID string) (string, error)
}

// ProjectRepository exposes projects. Every method is scoped by orgID.
type ProjectRepository interface {
	ListProjects(ctx context.Context, orgID string) ([]domain.Project, error)
	GetProject(ctx context.Context, orgID, projectID string) (domain.Project, error)
	CreateProject(ctx context.Context, project domain.Project) (domain.Project, error)
	UpdateProject(ctx context.Context, project domain.Project) (domain.Project, error)
	DeleteProject(ctx context.Context, orgID, projectID string) error
}

// SessionRepository stores browser sessions keyed by their opaque token.
type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, token string) (domain.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// APITokenRepository stores hashed CLI tokens.
type APITokenRepository interface {
	CreateAPIToken(ctx context.Context, token domain.APIToken) error
	GetAPIToken(ctx context.Context, id string) (domain.APIToken, error)
	ListAPITokens(ctx context.Context, userID string) ([]domain.APIToken, error)
	// DeleteAPIToken removes the token only if it belongs to userID.
	DeleteAPIToken(ctx context.Context, userID, id string) error
	TouchAPIToken(ctx context.Context, id string, usedAt time.Time) error
}

// TransactionStore persists in-flight OAuth transactions keyed by state.
type TransactionStore interface {
	Save(ctx context.Context, tx domainoauth.Transaction, ttl time.Duration) error
	// Take atomically loads and deletes the transaction. A missing or expired
	// state returns ErrTransactionNotFound.
	Take(ctx context.Context, state string) (*domainoauth.Transaction, error)
}
