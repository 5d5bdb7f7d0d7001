package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(_ *cobra.Command, _ []string) error {
		app := newApp()
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func newApp() *fx.App {
	return fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		appOptions(),
	)
}

func appOptions() fx.Option {
	return fx.Options(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newRepositories,
			newTransactionStore,
			newVaultClient,
			newSecretStore,
			newSecretReader,
			newProviderRegistry,
			newOrgResolver,
			newCredentialResolver,
			newSessionService,
			newOrgService,
			newProjectService,
			newCredentialService,
			newCoordinator,
			newSandboxService,
			newRateLimiter,
			newAuthMiddleware,
			newAuthHandler,
			newIntegrationHandler,
			newTokenHandler,
			newOrgHandler,
			newProjectHandler,
			newHandlers,
			newRouter,
			newHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureOwners, drainTokenTouches, startHTTPServer),
	)
}
