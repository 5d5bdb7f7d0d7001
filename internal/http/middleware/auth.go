package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
)

// Cookie and header names shared with the handlers.
const (
	SessionCookie = "viagen-session"
	OrgCookie     = "viagen-org"
	OrgHeader     = "X-Organization"
)

const (
	authContextKey = "authContext"
	principalKey   = "principal"
)

// Auth resolves the caller from the bearer token or the session cookie.
type Auth struct {
	Sessions *service.SessionService
	Logger   *zap.Logger
}

// RequireAuth rejects requests without a valid credential or active
// organization and attaches the *service.AuthContext.
func (m *Auth) RequireAuth(c *gin.Context) {
	auth, err := m.Sessions.Authenticate(c.Request.Context(), Credentials(c))
	if err != nil {
		m.abort(c, err)
		return
	}
	c.Set(authContextKey, auth)
	c.Set(principalKey, &service.Principal{User: auth.User, APIToken: auth.APIToken})
	c.Next()
}

// RequireUser accepts any authenticated user, including one who belongs to
// no organization yet.
func (m *Auth) RequireUser(c *gin.Context) {
	principal, _, err := m.Sessions.Identify(c.Request.Context(), Credentials(c))
	if err != nil {
		m.abort(c, err)
		return
	}
	c.Set(principalKey, principal)
	c.Next()
}

func (m *Auth) abort(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
	case errors.Is(err, domain.ErrNoMembership):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no_organization", "error_description": "Create or join an organization first."})
	default:
		m.log().Error("authentication failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}

func (m *Auth) log() *zap.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return zap.L()
}

// Credentials collects the raw credentials presented by the request.
func Credentials(c *gin.Context) service.AuthInput {
	in := service.AuthInput{
		Bearer:       BearerToken(c.Request),
		RequestedOrg: strings.TrimSpace(c.GetHeader(OrgHeader)),
	}
	if token, err := c.Cookie(SessionCookie); err == nil {
		in.SessionToken = strings.TrimSpace(token)
	}
	if in.RequestedOrg == "" {
		if org, err := c.Cookie(OrgCookie); err == nil {
			in.RequestedOrg = strings.TrimSpace(org)
		}
	}
	return in
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetAuthContext exposes the resolved caller to handlers behind RequireAuth.
func GetAuthContext(c *gin.Context) (*service.AuthContext, bool) {
	value, ok := c.Get(authContextKey)
	if !ok {
		return nil, false
	}
	auth, ok := value.(*service.AuthContext)
	return auth, ok
}

// GetPrincipal returns the caller behind RequireUser or RequireAuth.
func GetPrincipal(c *gin.Context) (*service.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*service.Principal)
	return principal, ok
}

// APITokenKey keys rate limiting on the validated API token. Session
// traffic returns "" and stays on the per-IP budget only.
func APITokenKey(c *gin.Context) string {
	if principal, ok := GetPrincipal(c); ok && principal.APIToken != nil {
		return "token:" + principal.APIToken.ID
	}
	return ""
}
