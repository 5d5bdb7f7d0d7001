package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
)

func TestReconcileOwnersPromotesEarliestMember(t *testing.T) {
	repo := &fakeOrgRepo{members: map[string][]domain.Membership{
		"org-legacy": {
			{UserID: "early", Role: domain.RoleMember},
			{UserID: "late", Role: domain.RoleAdmin},
		},
		"org-healthy": {
			{UserID: "owner", Role: domain.RoleOwner},
		},
	}}

	repaired, err := ReconcileOwners(context.Background(), repo, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.Equal(t, domain.RoleOwner, repo.members["org-legacy"][0].Role)
	require.Equal(t, domain.RoleAdmin, repo.members["org-legacy"][1].Role)

	repaired, err = ReconcileOwners(context.Background(), repo, zap.NewNop())
	require.NoError(t, err)
	require.Zero(t, repaired)
}

func TestReconcileOwnersSkipsRacedOrg(t *testing.T) {
	repo := &fakeOrgRepo{
		members: map[string][]domain.Membership{"org-1": {{UserID: "u", Role: domain.RoleMember}}},
		promote: func(string) (string, error) { return "", domain.ErrNotFound },
	}

	repaired, err := ReconcileOwners(context.Background(), repo, zap.NewNop())
	require.NoError(t, err)
	require.Zero(t, repaired)
}

func TestReconcileOwnersSurfacesErrors(t *testing.T) {
	boom := errors.New("db down")
	repo := &fakeOrgRepo{
		members: map[string][]domain.Membership{"org-1": {{UserID: "u", Role: domain.RoleMember}}},
		promote: func(string) (string, error) { return "", boom },
	}

	_, err := ReconcileOwners(context.Background(), repo, zap.NewNop())
	require.ErrorIs(t, err, boom)
}

type fakeOrgRepo struct {
	repository.OrganizationRepository
	members map[string][]domain.Membership
	promote func(orgID string) (string, error)
}

func (f *fakeOrgRepo) ListOrgsWithoutOwner(context.Context) ([]string, error) {
	var ids []string
	for orgID, members := range f.members {
		owned := false
		for _, m := range members {
			if m.Role == domain.RoleOwner {
				owned = true
			}
		}
		if !owned && len(members) > 0 {
			ids = append(ids, orgID)
		}
	}
	return ids, nil
}

func (f *fakeOrgRepo) PromoteEarliestMember(_ context.Context, orgID string) (string, error) {
	if f.promote != nil {
		return f.promote(orgID)
	}
	f.members[orgID][0].Role = domain.RoleOwner
	return f.members[orgID][0].UserID, nil
}
