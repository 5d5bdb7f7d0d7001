// Package auth coordinates OAuth login and integration connect flows.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	oauthadapter "github.com/viagen-dev/viagen-sdk-sub000/internal/adapter/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

const (
	stateBytes        = 32
	maxTransactionTTL = 600 * time.Second
	loginCallbackPath = "/auth/callback/"
	integrationPrefix = "/integrations/"
	integrationSuffix = "/callback"
	connectedQueryKey = "connected"
	rejectionQueryKey = "error"
	defaultAfterLogin = "/"
)

// Providers resolves a provider to its client.
type Providers interface {
	Lookup(provider domainoauth.Provider) (oauthadapter.ProviderClient, error)
}

var _ Providers = (*oauthadapter.Registry)(nil)

// Sessions is the part of the session service the coordinator drives.
type Sessions interface {
	ValidateSession(ctx context.Context, token string) (*service.Principal, error)
	CreateSession(ctx context.Context, userID string) (domain.Session, error)
}

var _ Sessions = (*service.SessionService)(nil)

// SecretWriter stores connect-flow tokens.
type SecretWriter interface {
	SetSecret(ctx context.Context, path scope.Path, key, value string, opts vault.SetOptions) error
}

// StartInput describes a flow to begin. The connect fields are required
// only when Purpose is connect.
type StartInput struct {
	Provider         domainoauth.Provider
	Purpose          domainoauth.Purpose
	ConnectOrgID     string
	ConnectProjectID string
	ReturnTo         string
	UserID           string
}

// StartOutput is what the handler needs to redirect the browser.
type StartOutput struct {
	AuthorizationURL string
	State            string
	Cookies          CookieNames
}

// CallbackInput carries the provider redirect and the browser's cookies.
type CallbackInput struct {
	Provider     domainoauth.Provider
	Purpose      domainoauth.Purpose
	Code         string
	State        string
	CookieState  string
	SessionToken string
}

// CallbackResult always carries a RedirectURL, including on rejection.
type CallbackResult struct {
	Provider    domainoauth.Provider
	Purpose     domainoauth.Purpose
	RedirectURL string
	User        *domain.User
	Session     *domain.Session
	Cookies     CookieNames
}

// Coordinator runs the two-leg OAuth dance for login and connect.
type Coordinator struct {
	providers Providers
	store     repository.TransactionStore
	users     repository.UserRepository
	orgs      repository.OrganizationRepository
	projects  repository.ProjectRepository
	sessions  Sessions
	secrets   SecretWriter
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewCoordinator wires the coordinator.
func NewCoordinator(
	providers Providers,
	store repository.TransactionStore,
	users repository.UserRepository,
	orgs repository.OrganizationRepository,
	projects repository.ProjectRepository,
	sessions Sessions,
	secrets SecretWriter,
	cfg config.Config,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		providers: providers,
		store:     store,
		users:     users,
		orgs:      orgs,
		projects:  projects,
		sessions:  sessions,
		secrets:   secrets,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/viagen-dev/viagen-sdk-sub000/internal/service/auth"),
		now:       time.Now,
	}
}

// Start records a transaction and returns the provider authorization URL.
func (c *Coordinator) Start(ctx context.Context, in StartInput) (*StartOutput, error) {
	ctx, span := c.startSpan(ctx, "Coordinator.Start", in.Provider, in.Purpose)
	defer span.End()

	client, err := c.providers.Lookup(in.Provider)
	if err != nil {
		return nil, err
	}
	if err := checkPurpose(in.Provider, in.Purpose); err != nil {
		return nil, err
	}

	tx := domainoauth.Transaction{
		Purpose:     in.Purpose,
		Provider:    in.Provider,
		ReturnTo:    SafeReturnTo(in.ReturnTo, ""),
		RedirectURI: c.redirectURI(in.Provider, in.Purpose),
		CreatedAt:   c.now().UTC(),
	}
	if in.Purpose == domainoauth.PurposeConnect {
		target, err := connectTarget(in.ConnectOrgID, in.ConnectProjectID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.UserID) == "" {
			return nil, fmt.Errorf("connect without user: %w", domainoauth.ErrMembershipRequired)
		}
		tx.UserID = in.UserID
		tx.OrgID = target.OrgID
		tx.ProjectID = target.ProjectID
	}

	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	tx.State = state
	if client.RequiresPKCE() {
		tx.CodeVerifier = oauth2.GenerateVerifier()
	}

	if err := c.store.Save(ctx, tx, c.transactionTTL()); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	c.log().Info("oauth flow started",
		zap.String("provider", string(in.Provider)),
		zap.String("purpose", string(in.Purpose)),
		zap.String("org_id", tx.OrgID),
	)
	return &StartOutput{
		AuthorizationURL: client.AuthorizationURL(state, tx.CodeVerifier, oauthadapter.Scopes(in.Provider, in.Purpose), tx.RedirectURI),
		State:            state,
		Cookies:          Cookies(in.Provider, in.Purpose),
	}, nil
}

// Callback consumes the transaction and commits the flow. The returned
// result is never nil; on rejection its RedirectURL carries ?error=<code>.
func (c *Coordinator) Callback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	ctx, span := c.startSpan(ctx, "Coordinator.Callback", in.Provider, in.Purpose)
	defer span.End()

	result := &CallbackResult{
		Provider: in.Provider,
		Purpose:  in.Purpose,
		Cookies:  Cookies(in.Provider, in.Purpose),
	}

	var (
		tx      *domainoauth.Transaction
		takeErr error
	)
	if state := strings.TrimSpace(in.State); state != "" {
		tx, takeErr = c.store.Take(ctx, state)
	}

	returnTo := c.afterLogin()
	if tx != nil && tx.ReturnTo != "" {
		returnTo = tx.ReturnTo
	}

	err := validateCallback(in, tx, takeErr)
	if err == nil {
		switch in.Purpose {
		case domainoauth.PurposeLogin:
			err = c.commitLogin(ctx, tx, in.Code, returnTo, result)
		case domainoauth.PurposeConnect:
			err = c.commitConnect(ctx, tx, in, returnTo, result)
		default:
			err = domainoauth.ErrInvalidRequest
		}
	}
	if err != nil {
		span.RecordError(err)
		result.RedirectURL = withQuery(returnTo, rejectionQueryKey, domainoauth.ErrorCode(err))
		c.logRejection(in, err)
		return result, err
	}
	return result, nil
}

func validateCallback(in CallbackInput, tx *domainoauth.Transaction, takeErr error) error {
	if strings.TrimSpace(in.Code) == "" {
		return domainoauth.ErrMissingCode
	}
	state := strings.TrimSpace(in.State)
	cookie := strings.TrimSpace(in.CookieState)
	if state == "" || cookie == "" || subtle.ConstantTimeCompare([]byte(state), []byte(cookie)) != 1 {
		return domainoauth.ErrInvalidState
	}
	if takeErr != nil {
		if errors.Is(takeErr, domainoauth.ErrTransactionNotFound) {
			return takeErr
		}
		return fmt.Errorf("load transaction: %w", takeErr)
	}
	if tx == nil || tx.Provider != in.Provider || tx.Purpose != in.Purpose {
		return domainoauth.ErrInvalidState
	}
	return nil
}

func (c *Coordinator) commitLogin(ctx context.Context, tx *domainoauth.Transaction, code, returnTo string, result *CallbackResult) error {
	client, err := c.providers.Lookup(tx.Provider)
	if err != nil {
		return err
	}
	token, err := exchange(ctx, client, code, tx)
	if err != nil {
		return err
	}
	info, err := client.UserInfo(ctx, token)
	if err != nil {
		return fmt.Errorf("fetch userinfo: %w: %w", domainoauth.ErrTokenInvalid, err)
	}
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" {
		return domainoauth.ErrTokenInvalid
	}
	// Users merge by email across providers; only provider-verified
	// addresses are upserted.
	if !info.EmailVerified {
		c.log().Warn("login rejected: unverified email",
			zap.String("provider", string(tx.Provider)),
			zap.String("subject", info.Subject),
		)
		return domainoauth.ErrTokenInvalid
	}
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = email
	}

	user, err := c.users.UpsertByEmail(ctx, domain.User{
		Email:          email,
		Name:           name,
		AvatarURL:      info.AvatarURL,
		Provider:       string(tx.Provider),
		ProviderUserID: info.Subject,
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	session, err := c.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return err
	}

	result.User = &user
	result.Session = &session
	result.RedirectURL = returnTo
	c.log().Info("audit",
		zap.String("event", "auth.login"),
		zap.Time("timestamp", c.now().UTC()),
		zap.String("user_id", user.ID),
		zap.String("provider", string(tx.Provider)),
	)
	return nil
}

func (c *Coordinator) commitConnect(ctx context.Context, tx *domainoauth.Transaction, in CallbackInput, returnTo string, result *CallbackResult) error {
	if err := c.authorizeConnect(ctx, tx, in.SessionToken); err != nil {
		return err
	}
	key, ok := credential.ProviderKey(tx.Provider)
	if !ok {
		return domainoauth.ErrProviderNotFound
	}
	path, err := connectTarget(tx.OrgID, tx.ProjectID)
	if err != nil {
		return err
	}

	client, err := c.providers.Lookup(tx.Provider)
	if err != nil {
		return err
	}
	token, err := exchange(ctx, client, in.Code, tx)
	if err != nil {
		return err
	}
	if err := c.secrets.SetSecret(ctx, path, key, token.AccessToken, vault.SetOptions{}); err != nil {
		return fmt.Errorf("store %s token: %w", tx.Provider, err)
	}

	result.RedirectURL = withQuery(returnTo, connectedQueryKey, string(tx.Provider))
	c.log().Info("audit",
		zap.String("event", "integration.connected"),
		zap.Time("timestamp", c.now().UTC()),
		zap.String("provider", string(tx.Provider)),
		zap.String("org_id", tx.OrgID),
		zap.String("project_id", tx.ProjectID),
		zap.String("user_id", tx.UserID),
	)
	return nil
}

// authorizeConnect requires that the current session belongs to the user who
// started the flow and that the user is still a member of the target org.
func (c *Coordinator) authorizeConnect(ctx context.Context, tx *domainoauth.Transaction, sessionToken string) error {
	principal, err := c.sessions.ValidateSession(ctx, sessionToken)
	if err != nil {
		return fmt.Errorf("validate session: %w", err)
	}
	if principal == nil || principal.User.ID != tx.UserID {
		return domainoauth.ErrMembershipRequired
	}
	if _, err := c.orgs.GetMembership(ctx, tx.OrgID, principal.User.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domainoauth.ErrMembershipRequired
		}
		return fmt.Errorf("load membership: %w", err)
	}
	if tx.ProjectID != "" {
		if _, err := c.projects.GetProject(ctx, tx.OrgID, tx.ProjectID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domainoauth.ErrMembershipRequired
			}
			return fmt.Errorf("load project: %w", err)
		}
	}
	return nil
}

func exchange(ctx context.Context, client oauthadapter.ProviderClient, code string, tx *domainoauth.Transaction) (*domainoauth.TokenResponse, error) {
	token, err := client.Exchange(ctx, code, tx.CodeVerifier, tx.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w: %w", domainoauth.ErrTokenInvalid, err)
	}
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return nil, domainoauth.ErrTokenInvalid
	}
	return token, nil
}

func (c *Coordinator) logRejection(in CallbackInput, err error) {
	fields := []zap.Field{
		zap.String("provider", string(in.Provider)),
		zap.String("purpose", string(in.Purpose)),
		zap.String("code", domainoauth.ErrorCode(err)),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, domainoauth.ErrMembershipRequired):
		c.log().Warn("oauth connect rejected", fields...)
	case domainoauth.ErrorCode(err) == "server_error":
		c.log().Error("oauth callback failed", fields...)
	default:
		c.log().Info("oauth callback rejected", fields...)
	}
}

func (c *Coordinator) redirectURI(provider domainoauth.Provider, purpose domainoauth.Purpose) string {
	base := strings.TrimRight(c.cfg.RedirectBaseURL, "/")
	if purpose == domainoauth.PurposeConnect {
		return base + integrationPrefix + string(provider) + integrationSuffix
	}
	return base + loginCallbackPath + string(provider)
}

func (c *Coordinator) afterLogin() string {
	if v := strings.TrimSpace(c.cfg.AfterLoginURL); v != "" {
		return v
	}
	return defaultAfterLogin
}

func (c *Coordinator) transactionTTL() time.Duration {
	ttl := c.cfg.TransactionTTL
	if ttl <= 0 || ttl > maxTransactionTTL {
		return maxTransactionTTL
	}
	return ttl
}

func (c *Coordinator) startSpan(ctx context.Context, name string, provider domainoauth.Provider, purpose domainoauth.Purpose) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("oauth.provider", string(provider)),
		attribute.String("oauth.purpose", string(purpose)),
	))
}

func (c *Coordinator) log() *zap.Logger {
	if c != nil && c.logger != nil {
		return c.logger
	}
	return zap.L()
}

func checkPurpose(provider domainoauth.Provider, purpose domainoauth.Purpose) error {
	switch purpose {
	case domainoauth.PurposeLogin:
		if provider.SupportsLogin() {
			return nil
		}
	case domainoauth.PurposeConnect:
		if provider.SupportsConnect() {
			return nil
		}
	}
	return fmt.Errorf("%s %s: %w", provider, purpose, domainoauth.ErrInvalidRequest)
}

func connectTarget(orgID, projectID string) (scope.Path, error) {
	var (
		path scope.Path
		err  error
	)
	if strings.TrimSpace(projectID) != "" {
		path, err = scope.Project(orgID, projectID)
	} else {
		path, err = scope.Org(orgID)
	}
	if err != nil {
		return scope.Path{}, fmt.Errorf("connect target: %w: %w", domainoauth.ErrInvalidRequest, err)
	}
	return path, nil
}

// SafeReturnTo accepts only same-origin relative paths. Anything else,
// including protocol-relative "//host" forms, yields def.
func SafeReturnTo(raw, def string) string {
	v := strings.TrimSpace(raw)
	if v == "" || !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") || strings.ContainsAny(v, "\\\r\n") {
		return def
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return def
	}
	return v
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func randomState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
