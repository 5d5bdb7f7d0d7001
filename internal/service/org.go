package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/org"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
)

// maxOrgNameLen bounds organization names accepted from the dashboard.
const maxOrgNameLen = 100

// OrgService manages organizations and their memberships.
type OrgService struct {
	instrument
	orgs  repository.OrganizationRepository
	users repository.UserRepository
}

// NewOrgService wires dependencies.
func NewOrgService(orgs repository.OrganizationRepository, users repository.UserRepository, logger *zap.Logger) *OrgService {
	return &OrgService{instrument: newInstrument(logger), orgs: orgs, users: users}
}

// CreateOrganization creates an organization owned by userID.
func (s *OrgService) CreateOrganization(ctx context.Context, userID, name string) (domain.Organization, error) {
	ctx, span := s.startSpan(ctx, "OrgService.CreateOrganization")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxOrgNameLen {
		return domain.Organization{}, fmt.Errorf("organization name: %w", domain.ErrInvalidInput)
	}
	created, err := s.orgs.CreateWithOwner(ctx, domain.Organization{Name: name}, userID)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("create organization: %w", err)
	}
	s.audit("org.created", "org_id", created.ID, "owner_id", userID)
	return created, nil
}

// SelectActive checks that userID belongs to orgID and returns that membership.
func (s *OrgService) SelectActive(ctx context.Context, userID, orgID string) (domain.Membership, error) {
	memberships, err := s.orgs.ListMemberships(ctx, userID)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("list memberships: %w", err)
	}
	m, ok := org.Select(memberships, orgID)
	if !ok || !strings.EqualFold(m.OrganizationID, strings.TrimSpace(orgID)) {
		return domain.Membership{}, domain.ErrNotFound
	}
	return m, nil
}

// ListMembers returns every member of the active org.
func (s *OrgService) ListMembers(ctx context.Context, auth *AuthContext) ([]domain.Member, error) {
	members, err := s.orgs.ListMembers(ctx, auth.Organization.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember adds an existing user, looked up by email, to the active org.
func (s *OrgService) AddMember(ctx context.Context, auth *AuthContext, email string, role domain.Role) (domain.Member, error) {
	ctx, span := s.startSpan(ctx, "OrgService.AddMember")
	defer span.End()

	if !auth.Role.CanManage() {
		return domain.Member{}, domain.ErrForbidden
	}
	if err := assignable(role); err != nil {
		return domain.Member{}, err
	}
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return domain.Member{}, fmt.Errorf("find user: %w", err)
	}
	if err := s.orgs.AddMember(ctx, auth.Organization.ID, user.ID, role); err != nil {
		return domain.Member{}, fmt.Errorf("add member: %w", err)
	}
	s.audit("org.member_added", "org_id", auth.Organization.ID, "user_id", user.ID, "role", string(role), "actor_id", auth.User.ID)
	return domain.Member{User: user, Role: role}, nil
}

// UpdateMemberRole changes a non-owner member's role to admin or member.
func (s *OrgService) UpdateMemberRole(ctx context.Context, auth *AuthContext, userID string, role domain.Role) error {
	ctx, span := s.startSpan(ctx, "OrgService.UpdateMemberRole")
	defer span.End()

	if !auth.Role.CanManage() {
		return domain.ErrForbidden
	}
	if err := assignable(role); err != nil {
		return err
	}
	if err := s.mutable(ctx, auth.Organization.ID, userID); err != nil {
		return err
	}
	if err := s.orgs.UpdateMemberRole(ctx, auth.Organization.ID, userID, role); err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	s.audit("org.member_role_changed", "org_id", auth.Organization.ID, "user_id", userID, "role", string(role), "actor_id", auth.User.ID)
	return nil
}

// RemoveMember removes a member from the active org. Members may remove
// themselves; removing anyone else requires admin. The owner cannot be removed.
func (s *OrgService) RemoveMember(ctx context.Context, auth *AuthContext, userID string) error {
	ctx, span := s.startSpan(ctx, "OrgService.RemoveMember")
	defer span.End()

	if userID != auth.User.ID && !auth.Role.CanManage() {
		return domain.ErrForbidden
	}
	if err := s.mutable(ctx, auth.Organization.ID, userID); err != nil {
		return err
	}
	if err := s.orgs.RemoveMember(ctx, auth.Organization.ID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.audit("org.member_removed", "org_id", auth.Organization.ID, "user_id", userID, "actor_id", auth.User.ID)
	return nil
}

func (s *OrgService) mutable(ctx context.Context, orgID, userID string) error {
	target, err := s.orgs.GetMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load membership: %w", err)
	}
	if target.Role == domain.RoleOwner {
		return domain.ErrOwnerImmutable
	}
	return nil
}

func assignable(role domain.Role) error {
	switch role {
	case domain.RoleAdmin, domain.RoleMember:
		return nil
	default:
		return fmt.Errorf("role %q: %w", role, domain.ErrInvalidInput)
	}
}
