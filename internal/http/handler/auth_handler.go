package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/http/middleware"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
	authsvc "github.com/viagen-dev/viagen-sdk-sub000/internal/service/auth"
)

const (
	loginPage        = "/login"
	cliAuthorizePath = "/cli/authorize"
	cliCallbackHost  = "127.0.0.1"
	minCLIPort       = 1024
	maxCLIPort       = 65535
	defaultFlowTTL   = 10 * time.Minute
)

// AuthHandler serves login, logout, identity and CLI authorization.
type AuthHandler struct {
	OAuth    *authsvc.Coordinator
	Sessions *service.SessionService
	Cookies  CookieJar
	FlowTTL  time.Duration
	Logger   *zap.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(oauth *authsvc.Coordinator, sessions *service.SessionService, cfg config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		OAuth:    oauth,
		Sessions: sessions,
		Cookies:  NewCookieJar(cfg),
		FlowTTL:  flowTTL(cfg),
		Logger:   logger,
	}
}

// Login starts a login flow and redirects to the provider.
func (h *AuthHandler) Login(c *gin.Context) {
	provider, ok := domainoauth.ParseProvider(c.Param("provider"))
	if !ok {
		c.Redirect(http.StatusFound, withError(loginPage, domainoauth.ErrProviderNotFound))
		return
	}
	out, err := h.OAuth.Start(c.Request.Context(), authsvc.StartInput{
		Provider: provider,
		Purpose:  domainoauth.PurposeLogin,
		ReturnTo: c.Query("returnTo"),
	})
	if err != nil {
		h.log().Warn("login start rejected", zap.String("provider", string(provider)), zap.Error(err))
		c.Redirect(http.StatusFound, withError(loginPage, err))
		return
	}
	startFlow(c, h.Cookies, out, h.FlowTTL)
}

// Callback finishes a login flow. It always redirects and always clears the
// flow cookies, whatever the outcome.
func (h *AuthHandler) Callback(c *gin.Context) {
	finishFlow(c, h.OAuth, h.Cookies, domainoauth.PurposeLogin)
}

// Logout deletes the session and clears the dashboard cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(middleware.SessionCookie); err == nil {
		if err := h.Sessions.DeleteSession(c.Request.Context(), token); err != nil {
			h.log().Warn("failed to delete session", zap.Error(err))
		}
	}
	h.Cookies.clear(c, middleware.SessionCookie, middleware.OrgCookie)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Me returns the caller, the active organization and every membership.
func (h *AuthHandler) Me(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         toUser(auth.User),
		"organization": toOrganization(auth.Organization),
		"role":         auth.Role,
		"memberships":  toMemberships(auth.Memberships),
		"method":       auth.Method,
	})
}

// CLIAuthorize mints an API token for the browser's session and hands it to
// the CLI's loopback listener. Only the session cookie is honoured here.
func (h *AuthHandler) CLIAuthorize(c *gin.Context) {
	port, err := strconv.Atoi(strings.TrimSpace(c.Query("port")))
	if err != nil || port < minCLIPort || port > maxCLIPort {
		badRequest(c, "port must be a number between 1024 and 65535.")
		return
	}

	token, _ := c.Cookie(middleware.SessionCookie)
	principal, err := h.Sessions.ValidateSession(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.log(), err)
		return
	}
	if principal == nil {
		resume := cliAuthorizePath + "?" + url.Values{"port": {strconv.Itoa(port)}}.Encode()
		c.Redirect(http.StatusFound, loginPage+"?"+url.Values{"returnTo": {resume}}.Encode())
		return
	}

	plaintext, _, err := h.Sessions.CreateAPIToken(c.Request.Context(), principal.User.ID, c.Query("name"))
	if err != nil {
		respondError(c, h.log(), err)
		return
	}
	callback := url.URL{
		Scheme:   "http",
		Host:     fmt.Sprintf("%s:%d", cliCallbackHost, port),
		Path:     "/callback",
		RawQuery: url.Values{"token": {plaintext}}.Encode(),
	}
	c.Redirect(http.StatusFound, callback.String())
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

// startFlow sets the state cookie, clears stale legacy cookies and sends the
// browser to the provider.
func startFlow(c *gin.Context, jar CookieJar, out *authsvc.StartOutput, ttl time.Duration) {
	jar.clear(c, out.Cookies.Legacy...)
	jar.set(c, out.Cookies.State, out.State, ttl)
	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

func finishFlow(c *gin.Context, oauth *authsvc.Coordinator, jar CookieJar, purpose domainoauth.Purpose) {
	provider := domainoauth.Provider(strings.ToLower(c.Param("provider")))
	names := authsvc.Cookies(provider, purpose)
	cookieState, _ := c.Cookie(names.State)
	sessionToken, _ := c.Cookie(middleware.SessionCookie)
	// Cleared before anything else is written so every exit path carries it.
	jar.clear(c, names.All()...)

	result, err := oauth.Callback(c.Request.Context(), authsvc.CallbackInput{
		Provider:     provider,
		Purpose:      purpose,
		Code:         c.Query("code"),
		State:        c.Query("state"),
		CookieState:  cookieState,
		SessionToken: sessionToken,
	})
	if result == nil {
		c.Redirect(http.StatusFound, withError("/", err))
		return
	}
	if err == nil && result.Session != nil {
		jar.SetSession(c, result.Session.Token)
	}
	c.Redirect(http.StatusFound, result.RedirectURL)
}

func flowTTL(cfg config.Config) time.Duration {
	if cfg.TransactionTTL <= 0 || cfg.TransactionTTL > defaultFlowTTL {
		return defaultFlowTTL
	}
	return cfg.TransactionTTL
}

func withError(target string, err error) string {
	return target + "?" + url.Values{"error": {domainoauth.ErrorCode(err)}}.Encode()
}
