package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/http/middleware"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/sandbox"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

// respondError maps service errors onto status codes. Out-of-tenant lookups
// surface as ErrNotFound and therefore 404, never 403.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if logger == nil {
		logger = zap.L()
	}
	var apiErr *vault.APIError
	var authErr *vault.AuthError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, scope.ErrInvalidID):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Resource not found."})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
	case errors.Is(err, domain.ErrOwnerImmutable):
		c.JSON(http.StatusForbidden, gin.H{"error": "owner_immutable", "error_description": "The organization owner cannot be changed."})
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrNoMembership):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Insufficient role for this action."})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domainoauth.ErrInvalidRequest):
		logger.Warn("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	case errors.Is(err, domainoauth.ErrProviderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "provider_not_configured", "error_description": "Provider is not configured."})
	case errors.Is(err, sandbox.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sandbox_unavailable", "error_description": "Sandbox launcher is not configured."})
	case errors.As(err, &apiErr), errors.As(err, &authErr):
		logger.Error("vault request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "vault_unavailable", "error_description": "Credential store request failed."})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}

func badRequest(c *gin.Context, description string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": description})
}

func mustAuth(c *gin.Context) (*service.AuthContext, bool) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return nil, false
	}
	return auth, true
}

func mustPrincipal(c *gin.Context) (*service.Principal, bool) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return nil, false
	}
	return principal, true
}

// CookieJar writes the dashboard's cookies with one consistent policy:
// Path=/, HttpOnly, SameSite=Lax, and Secure outside development.
type CookieJar struct {
	Secure     bool
	SessionTTL time.Duration
}

// NewCookieJar derives the cookie policy from config.
func NewCookieJar(cfg config.Config) CookieJar {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return CookieJar{Secure: cfg.Secure(), SessionTTL: ttl}
}

func (j CookieJar) set(c *gin.Context, name, value string, maxAge time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j CookieJar) clear(c *gin.Context, names ...string) {
	for _, name := range names {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   j.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// SetSession writes the session cookie.
func (j CookieJar) SetSession(c *gin.Context, token string) {
	j.set(c, middleware.SessionCookie, token, j.SessionTTL)
}

// SetOrg writes the active-organization cookie.
func (j CookieJar) SetOrg(c *gin.Context, orgID string) {
	j.set(c, middleware.OrgCookie, orgID, j.SessionTTL)
}
