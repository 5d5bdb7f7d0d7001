package org

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
)

// Context stores the active organization used throughout the request lifecycle.
type Context struct {
	Organization domain.Organization
	Role         domain.Role
	Memberships  []domain.Membership
}

// Resolver selects a user's active organization.
type Resolver struct {
	repo repository.OrganizationRepository
}

// NewResolver creates an org resolver.
func NewResolver(repo repository.OrganizationRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads the user's memberships and picks requested when the user
// belongs to it, otherwise the earliest membership. A user with no
// memberships yields domain.ErrNoMembership.
func (r *Resolver) Resolve(ctx context.Context, userID, requested string) (*Context, error) {
	memberships, err := r.repo.ListMemberships(ctx, userID)
	if err != nil {
		zap.L().Error("failed to list memberships", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("resolve org: %w", err)
	}

	active, ok := Select(memberships, requested)
	if !ok {
		return nil, fmt.Errorf("resolve org: %w", domain.ErrNoMembership)
	}

	if requested != "" && !strings.EqualFold(active.OrganizationID, requested) {
		zap.L().Debug("requested org not available, using default",
			zap.String("user_id", userID),
			zap.String("requested_org", requested),
			zap.String("org_id", active.OrganizationID),
		)
	}

	return &Context{
		Organization: active.Organization,
		Role:         active.Role,
		Memberships:  memberships,
	}, nil
}

// Select returns the membership matching requested, else the first one.
func Select(memberships []domain.Membership, requested string) (domain.Membership, bool) {
	if len(memberships) == 0 {
		return domain.Membership{}, false
	}
	cleaned := strings.TrimSpace(requested)
	if cleaned != "" {
		for _, m := range memberships {
			if strings.EqualFold(m.OrganizationID, cleaned) {
				return m, true
			}
		}
	}
	return memberships[0], true
}
