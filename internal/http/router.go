package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/http/handler"
	httpmiddleware "github.com/viagen-dev/viagen-sdk-sub000/internal/http/middleware"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/middleware"
)

// Handlers groups every endpoint set the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Integrations *handler.IntegrationHandler
	Tokens       *handler.TokenHandler
	Orgs         *handler.OrgHandler
	Projects     *handler.ProjectHandler
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, h Handlers, auth *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Validated API tokens also draw on their own budget.
	tokenLimit := rateLimiter.HandlerBy(httpmiddleware.APITokenKey)

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/login/:provider", h.Auth.Login)
		authGroup.GET("/callback/:provider", h.Auth.Callback)
		authGroup.POST("/logout", h.Auth.Logout)
		authGroup.GET("/me", auth.RequireAuth, tokenLimit, h.Auth.Me)
	}

	r.GET("/cli/authorize", h.Auth.CLIAuthorize)

	integrations := r.Group("/integrations/:provider")
	{
		integrations.GET("/start", auth.RequireAuth, h.Integrations.Start)
		integrations.GET("/callback", h.Integrations.Callback)
	}

	api := r.Group("/api")
	{
		// Reachable before the caller belongs to any organization.
		user := api.Group("", auth.RequireUser, tokenLimit)
		user.POST("/orgs", h.Orgs.Create)
		user.POST("/orgs/active", h.Orgs.SelectActive)
		user.POST("/tokens", h.Tokens.Create)
		user.GET("/tokens", h.Tokens.List)
		user.DELETE("/tokens/:id", h.Tokens.Revoke)

		member := api.Group("", auth.RequireAuth, tokenLimit)
		member.GET("/integrations/status", h.Integrations.Status)
		member.DELETE("/integrations/:provider", h.Integrations.Disconnect)

		member.GET("/credentials/status", h.Integrations.Status)
		member.PUT("/credentials/:scope/:key", h.Integrations.SetCredential)
		member.DELETE("/credentials/:scope/:key", h.Integrations.DeleteCredential)

		member.GET("/orgs/members", h.Orgs.ListMembers)
		member.POST("/orgs/members", h.Orgs.AddMember)
		member.PATCH("/orgs/members/:userId", h.Orgs.UpdateMember)
		member.DELETE("/orgs/members/:userId", h.Orgs.RemoveMember)

		member.GET("/projects", h.Projects.List)
		member.POST("/projects", h.Projects.Create)
		member.POST("/projects/sync", h.Projects.Sync)
		member.GET("/projects/:id", h.Projects.Get)
		member.PATCH("/projects/:id", h.Projects.Update)
		member.DELETE("/projects/:id", h.Projects.Delete)
		member.POST("/projects/:id/sandbox", h.Projects.LaunchSandbox)
	}

	// The dashboard UI is served as static files; everything else stays on the API routes.
	attachUIRoutes(r, filepath.Join("ui", "dist"))

	return r
}

func attachUIRoutes(r *gin.Engine, distDir string) {
	indexPath := filepath.Join(distDir, "index.html")

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPIPath(path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
			return
		}

		if filePath, ok := safeJoin(distDir, path); ok {
			if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
				c.File(filePath)
				return
			}
		}
		if _, err := os.Stat(indexPath); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(indexPath)
	})
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") ||
		strings.HasPrefix(path, "/auth/") ||
		strings.HasPrefix(path, "/cli/") ||
		strings.HasPrefix(path, "/integrations/")
}

func safeJoin(baseDir, requestPath string) (string, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return filepath.Join(baseDir, cleaned), true
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	return filepath.Join(baseDir, cleaned), true
}
