package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/viagen-dev/viagen-sdk-sub000/internal/adapter/cache"
	oauthadapter "github.com/viagen-dev/viagen-sdk-sub000/internal/adapter/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
	httptransport "github.com/viagen-dev/viagen-sdk-sub000/internal/http"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/http/handler"
	httpmiddleware "github.com/viagen-dev/viagen-sdk-sub000/internal/http/middleware"
	apimiddleware "github.com/viagen-dev/viagen-sdk-sub000/internal/middleware"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/org"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/sandbox"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/server"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
	authservice "github.com/viagen-dev/viagen-sdk-sub000/internal/service/auth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/telemetry"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, version, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func connectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type repositories struct {
	fx.Out

	Users    repository.UserRepository
	Orgs     repository.OrganizationRepository
	Projects repository.ProjectRepository
	Sessions repository.SessionRepository
	Tokens   repository.APITokenRepository
}

// newRepositories uses Postgres when DATABASE_URL is set. Config only allows
// it to be blank in development, where an in-memory store takes its place.
func newRepositories(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repositories, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory repositories")
		mem := repository.NewMemory()
		return repositories{Users: mem, Orgs: mem, Projects: mem, Sessions: mem, Tokens: mem}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := connectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return repositories{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return repositories{
		Users:    repository.NewPostgresUserRepo(pool),
		Orgs:     repository.NewPostgresOrgRepo(pool),
		Projects: repository.NewPostgresProjectRepo(pool),
		Sessions: repository.NewPostgresSessionRepo(pool),
		Tokens:   repository.NewPostgresAPITokenRepo(pool),
	}, nil
}

func newTransactionStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.TransactionStore, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set; OAuth transactions are kept in memory")
		return cacheadapter.NewMemoryTransactionStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisTransactionStore(client), nil
}

func newVaultClient(cfg config.Config, logger *zap.Logger) *vault.Client {
	return vault.NewClient(vault.Options{
		BaseURL:      cfg.Vault.BaseURL,
		ClientID:     cfg.Vault.ClientID,
		ClientSecret: cfg.Vault.ClientSecret,
		WorkspaceID:  cfg.Vault.WorkspaceID,
		Environment:  cfg.Vault.Environment,
		HTTPClient:   &http.Client{},
		Timeout:      cfg.Vault.Timeout,
		Cache:        vault.NewTokenCache(),
		Locks:        vault.NewKeyLocker(),
		Logger:       logger.Named("vault"),
	})
}

func newSecretStore(client *vault.Client) service.SecretStore {
	return client
}

func newSecretReader(client *vault.Client) credential.SecretReader {
	return client
}

func newProviderRegistry(cfg config.Config, logger *zap.Logger) *oauthadapter.Registry {
	registry := oauthadapter.NewRegistryFromConfig(cfg, &http.Client{})
	providers := registry.Providers()
	if len(providers) == 0 {
		logger.Warn("no OAuth providers configured; login is unavailable")
	} else {
		logger.Info("oauth providers configured", zap.Any("providers", providers))
	}
	return registry
}

func newOrgResolver(orgs repository.OrganizationRepository) *org.Resolver {
	return org.NewResolver(orgs)
}

func newCredentialResolver(store credential.SecretReader, logger *zap.Logger) *credential.Resolver {
	return credential.NewResolver(store, logger)
}

func newSessionService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens repository.APITokenRepository,
	orgs *org.Resolver,
	cfg config.Config,
	logger *zap.Logger,
) *service.SessionService {
	return service.NewSessionService(users, sessions, tokens, orgs, cfg, logger)
}

func newOrgService(orgs repository.OrganizationRepository, users repository.UserRepository, logger *zap.Logger) *service.OrgService {
	return service.NewOrgService(orgs, users, logger)
}

func newProjectService(projects repository.ProjectRepository, secrets service.SecretStore, logger *zap.Logger) *service.ProjectService {
	return service.NewProjectService(projects, secrets, logger)
}

func newCredentialService(store service.SecretStore, resolver *credential.Resolver, projects repository.ProjectRepository, logger *zap.Logger) *service.CredentialService {
	return service.NewCredentialService(store, resolver, projects, logger)
}

type coordinatorParams struct {
	fx.In

	Providers *oauthadapter.Registry
	Store     repository.TransactionStore
	Users     repository.UserRepository
	Orgs      repository.OrganizationRepository
	Projects  repository.ProjectRepository
	Sessions  *service.SessionService
	Secrets   *vault.Client
	Config    config.Config
	Logger    *zap.Logger
}

func newCoordinator(p coordinatorParams) *authservice.Coordinator {
	return authservice.NewCoordinator(
		p.Providers,
		p.Store,
		p.Users,
		p.Orgs,
		p.Projects,
		p.Sessions,
		p.Secrets,
		p.Config,
		p.Logger.Named("oauth"),
	)
}

func newSandboxService(resolver *credential.Resolver, cfg config.Config, logger *zap.Logger) *sandbox.Service {
	var deployer sandbox.Deployer
	if d := sandbox.NewHTTPDeployer(cfg.SandboxEndpoint, &http.Client{}, cfg.ProviderTimeout); d != nil {
		deployer = d
	} else {
		logger.Warn("SANDBOX_ENDPOINT not set; sandbox launch is disabled")
	}
	return sandbox.NewService(sandbox.NewAssembler(resolver, cfg.Vercel.TeamID), deployer, logger.Named("sandbox"))
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(sessions *service.SessionService, logger *zap.Logger) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Sessions: sessions, Logger: logger}
}

func newAuthHandler(oauth *authservice.Coordinator, sessions *service.SessionService, cfg config.Config, logger *zap.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(oauth, sessions, cfg, logger)
}

func newIntegrationHandler(oauth *authservice.Coordinator, credentials *service.CredentialService, cfg config.Config, logger *zap.Logger) *handler.IntegrationHandler {
	return handler.NewIntegrationHandler(oauth, credentials, cfg, logger)
}

func newTokenHandler(sessions *service.SessionService, logger *zap.Logger) *handler.TokenHandler {
	return handler.NewTokenHandler(sessions, logger)
}

func newOrgHandler(orgs *service.OrgService, cfg config.Config, logger *zap.Logger) *handler.OrgHandler {
	return handler.NewOrgHandler(orgs, cfg, logger)
}

func newProjectHandler(projects *service.ProjectService, sandboxes *sandbox.Service, logger *zap.Logger) *handler.ProjectHandler {
	return handler.NewProjectHandler(projects, sandboxes, logger)
}

type handlerParams struct {
	fx.In

	Auth         *handler.AuthHandler
	Integrations *handler.IntegrationHandler
	Tokens       *handler.TokenHandler
	Orgs         *handler.OrgHandler
	Projects     *handler.ProjectHandler
}

func newHandlers(p handlerParams) httptransport.Handlers {
	return httptransport.Handlers{
		Auth:         p.Auth,
		Integrations: p.Integrations,
		Tokens:       p.Tokens,
		Orgs:         p.Orgs,
		Projects:     p.Projects,
	}
}

func newRouter(cfg config.Config, h httptransport.Handlers, auth *httpmiddleware.Auth, limiter *apimiddleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	return httptransport.NewRouter(cfg, h, auth, limiter, logger.Named("http"))
}

func newHTTPServer(router *gin.Engine) *server.HTTPServer {
	return server.NewHTTPServer(router)
}

func useTelemetry(provider *telemetry.Provider, logger *zap.Logger) {
	if !provider.Enabled() {
		logger.Info("tracing disabled; set OTEL_EXPORTER_OTLP_ENDPOINT to export spans")
	}
}

// drainTokenTouches waits for pending last-used updates on shutdown.
func drainTokenTouches(lc fx.Lifecycle, sessions *service.SessionService) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				sessions.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := srv.Listen(addr)
			if err != nil {
				return err
			}
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				defer close(done)
				logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
				if err := srv.Serve(runCtx, ln); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
