package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
)

// EnsureOwners repairs ownerless organizations when the app starts.
func EnsureOwners(lc fx.Lifecycle, orgs repository.OrganizationRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := ReconcileOwners(ctx, orgs, logger)
			return err
		},
	})
}

// ReconcileOwners promotes the earliest member of every organization that
// has members but no owner. It returns the number of organizations repaired.
func ReconcileOwners(ctx context.Context, orgs repository.OrganizationRepository, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.L()
	}

	ids, err := orgs.ListOrgsWithoutOwner(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile owners: %w", err)
	}

	repaired := 0
	for _, orgID := range ids {
		userID, err := orgs.PromoteEarliestMember(ctx, orgID)
		if err != nil {
			// Another instance got there first.
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return repaired, fmt.Errorf("reconcile owner for %s: %w", orgID, err)
		}
		repaired++
		logger.Warn("promoted earliest member to owner",
			zap.String("org_id", orgID),
			zap.String("user_id", userID),
		)
	}
	if repaired > 0 {
		logger.Info("owner reconciliation complete", zap.Int("repaired", repaired))
	}
	return repaired, nil
}
