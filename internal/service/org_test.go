package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
)

func TestCreateOrganizationAssignsOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.orgs.CreateOrganization(ctx, f.member.ID, "  Side Project  ")
	require.NoError(t, err)
	require.Equal(t, "Side Project", created.Name)

	m, err := f.repo.GetMembership(ctx, created.ID, f.member.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, m.Role)

	_, err = f.orgs.CreateOrganization(ctx, f.member.ID, " ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.auth(t, f.admin, f.orgA.ID)
	member := f.auth(t, f.member, f.orgA.ID)

	require.ErrorIs(t, f.orgs.UpdateMemberRole(ctx, member, f.admin.ID, domain.RoleMember), domain.ErrForbidden)
	require.ErrorIs(t, f.orgs.UpdateMemberRole(ctx, admin, f.owner.ID, domain.RoleMember), domain.ErrOwnerImmutable)
	require.ErrorIs(t, f.orgs.UpdateMemberRole(ctx, admin, f.member.ID, domain.RoleOwner), domain.ErrInvalidInput)
	require.ErrorIs(t, f.orgs.UpdateMemberRole(ctx, admin, f.outsider.ID, domain.RoleAdmin), domain.ErrNotFound)

	require.NoError(t, f.orgs.UpdateMemberRole(ctx, admin, f.member.ID, domain.RoleAdmin))
	m, err := f.repo.GetMembership(ctx, f.orgA.ID, f.member.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, m.Role)

	owner, err := f.repo.GetMembership(ctx, f.orgA.ID, f.owner.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, owner.Role)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.auth(t, f.owner, f.orgA.ID)
	member := f.auth(t, f.member, f.orgA.ID)

	require.ErrorIs(t, f.orgs.RemoveMember(ctx, member, f.admin.ID), domain.ErrForbidden)
	require.ErrorIs(t, f.orgs.RemoveMember(ctx, owner, f.owner.ID), domain.ErrOwnerImmutable)

	require.NoError(t, f.orgs.RemoveMember(ctx, member, f.member.ID))
	_, err := f.repo.GetMembership(ctx, f.orgA.ID, f.member.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.orgs.RemoveMember(ctx, owner, f.admin.ID))
	members, err := f.orgs.ListMembers(ctx, owner)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, f.owner.ID, members[0].User.ID)
}

func TestAddMemberByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.auth(t, f.admin, f.orgA.ID)
	member := f.auth(t, f.member, f.orgA.ID)
	newcomer := f.user(t, "new@example.com")

	_, err := f.orgs.AddMember(ctx, member, newcomer.Email, domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.orgs.AddMember(ctx, admin, "ghost@example.com", domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.orgs.AddMember(ctx, admin, newcomer.Email, domain.RoleOwner)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	added, err := f.orgs.AddMember(ctx, admin, " NEW@example.com ", domain.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, newcomer.ID, added.User.ID)

	m, err := f.repo.GetMembership(ctx, f.orgA.ID, newcomer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, m.Role)
}

func TestSelectActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.orgs.SelectActive(ctx, f.member.ID, f.orgA.ID)
	require.NoError(t, err)
	require.Equal(t, f.orgA.ID, m.OrganizationID)

	_, err = f.orgs.SelectActive(ctx, f.member.ID, f.orgB.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
