package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/bootstrap"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
)

var ownersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Organization ownership maintenance",
}

var reconcileTimeout time.Duration

var ownersReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Promote the earliest member of every organization that has no owner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), reconcileTimeout)
		defer cancel()

		pool, err := connectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		repaired, err := bootstrap.ReconcileOwners(ctx, repository.NewPostgresOrgRepo(pool), logger)
		if err != nil {
			return err
		}
		logger.Info("owner reconciliation finished", zap.Int("repaired", repaired))
		fmt.Fprintf(cmd.OutOrStdout(), "repaired %d organization(s)\n", repaired)
		return nil
	},
}

func init() {
	ownersReconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", 2*time.Minute, "Overall deadline for the reconciliation")
	ownersCmd.AddCommand(ownersReconcileCmd)
}
