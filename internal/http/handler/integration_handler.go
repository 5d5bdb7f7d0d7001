package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
	authsvc "github.com/viagen-dev/viagen-sdk-sub000/internal/service/auth"
)

// IntegrationHandler runs connect flows and manages stored credentials.
type IntegrationHandler struct {
	OAuth       *authsvc.Coordinator
	Credentials *service.CredentialService
	Cookies     CookieJar
	FlowTTL     time.Duration
	Logger      *zap.Logger
}

// NewIntegrationHandler wires the integration and credential endpoints.
func NewIntegrationHandler(oauth *authsvc.Coordinator, credentials *service.CredentialService, cfg config.Config, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		OAuth:       oauth,
		Credentials: credentials,
		Cookies:     NewCookieJar(cfg),
		FlowTTL:     flowTTL(cfg),
		Logger:      logger,
	}
}

// Start begins a connect flow for the active org, or one of its projects
// when ?project= is given.
func (h *IntegrationHandler) Start(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	returnTo := authsvc.SafeReturnTo(c.Query("returnTo"), "/")
	provider, ok := domainoauth.ParseProvider(c.Param("provider"))
	if !ok {
		c.Redirect(http.StatusFound, withError(returnTo, domainoauth.ErrProviderNotFound))
		return
	}
	out, err := h.OAuth.Start(c.Request.Context(), authsvc.StartInput{
		Provider:         provider,
		Purpose:          domainoauth.PurposeConnect,
		ConnectOrgID:     auth.Organization.ID,
		ConnectProjectID: c.Query("project"),
		ReturnTo:         returnTo,
		UserID:           auth.User.ID,
	})
	if err != nil {
		h.log().Warn("connect start rejected", zap.String("provider", string(provider)), zap.Error(err))
		c.Redirect(http.StatusFound, withError(returnTo, err))
		return
	}
	startFlow(c, h.Cookies, out, h.FlowTTL)
}

// Callback finishes a connect flow. It always redirects.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	finishFlow(c, h.OAuth, h.Cookies, domainoauth.PurposeConnect)
}

// Status reports which integrations resolve for the caller, and from where.
func (h *IntegrationHandler) Status(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	status, err := h.Credentials.Status(c.Request.Context(), auth, c.Query("project"))
	if err != nil {
		respondError(c, h.log(), err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Disconnect removes a provider token. The scope defaults to project when
// ?project= is present and org otherwise.
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	provider, ok := domainoauth.ParseProvider(c.Param("provider"))
	if !ok {
		respondError(c, h.log(), domainoauth.ErrProviderNotFound)
		return
	}
	projectID := c.Query("project")
	level := scope.LevelOrg
	if projectID != "" {
		level = scope.LevelProject
	}
	if raw := c.Query("scope"); raw != "" {
		if level, ok = scope.ParseLevel(raw); !ok {
			badRequest(c, "scope must be org, project or user.")
			return
		}
	}
	if err := h.Credentials.Disconnect(c.Request.Context(), auth, provider, level, projectID); err != nil {
		respondError(c, h.log(), err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setCredentialRequest struct {
	Value string `json:"value" binding:"required"`
}

// SetCredential writes one allow-listed key at org, project or user scope.
func (h *IntegrationHandler) SetCredential(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	level, ok := scope.ParseLevel(c.Param("scope"))
	if !ok {
		badRequest(c, "scope must be org, project or user.")
		return
	}
	var req setCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "value is required.")
		return
	}
	if err := h.Credentials.SetCredential(c.Request.Context(), auth, level, c.Query("project"), c.Param("key"), req.Value); err != nil {
		respondError(c, h.log(), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteCredential removes one key. Deleting an absent key succeeds.
func (h *IntegrationHandler) DeleteCredential(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	level, ok := scope.ParseLevel(c.Param("scope"))
	if !ok {
		badRequest(c, "scope must be org, project or user.")
		return
	}
	if err := h.Credentials.DeleteCredential(c.Request.Context(), auth, level, c.Query("project"), c.Param("key")); err != nil {
		respondError(c, h.log(), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IntegrationHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
