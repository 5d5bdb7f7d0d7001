package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/org"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
)

const (
	// APITokenPrefix marks CLI tokens so they are recognizable in logs and headers.
	APITokenPrefix   = "vgn_"
	tokenBytes       = 32
	displayPrefixLen = 8
	touchTimeout     = 5 * time.Second
	defaultTokenName = "cli"
)

// Authentication methods recorded on an AuthContext.
const (
	MethodSession  = "session"
	MethodAPIToken = "api_token"
)

// Principal is an authenticated user and the credential that proved it.
type Principal struct {
	User     domain.User
	Session  *domain.Session
	APIToken *domain.APIToken
}

// AuthInput carries the raw credentials presented by a request.
type AuthInput struct {
	Bearer       string
	SessionToken string
	RequestedOrg string
}

// AuthContext is what downstream handlers see after requireAuth.
type AuthContext struct {
	User         domain.User
	Organization domain.Organization
	Role         domain.Role
	Memberships  []domain.Membership
	Method       string
	// APIToken is set when the request authenticated with a bearer token.
	APIToken *domain.APIToken
}

// SessionService issues and validates sessions and API tokens.
type SessionService struct {
	instrument
	users       repository.UserRepository
	sessions    repository.SessionRepository
	tokens      repository.APITokenRepository
	orgs        *org.Resolver
	sessionTTL  time.Duration
	apiTokenTTL time.Duration
	now         func() time.Time
	pending     sync.WaitGroup
}

// NewSessionService wires dependencies.
func NewSessionService(users repository.UserRepository, sessions repository.SessionRepository, tokens repository.APITokenRepository, orgs *org.Resolver, cfg config.Config, logger *zap.Logger) *SessionService {
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	apiTokenTTL := cfg.APITokenTTL
	if apiTokenTTL <= 0 {
		apiTokenTTL = 90 * 24 * time.Hour
	}
	return &SessionService{
		instrument:  newInstrument(logger),
		users:       users,
		sessions:    sessions,
		tokens:      tokens,
		orgs:        orgs,
		sessionTTL:  sessionTTL,
		apiTokenTTL: apiTokenTTL,
		now:         time.Now,
	}
}

// CreateSession issues a new random session token for userID.
func (s *SessionService) CreateSession(ctx context.Context, userID string) (domain.Session, error) {
	ctx, span := s.startSpan(ctx, "SessionService.CreateSession")
	defer span.End()

	now := s.now()
	session := domain.Session{
		Token:     randomHex(tokenBytes),
		UserID:    userID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.audit("session.created", "user_id", userID, "expires_at", session.ExpiresAt)
	return session, nil
}

// ValidateSession returns the principal for token, or nil when the token is
// unknown or expired. Expired sessions are deleted on read.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*Principal, error) {
	ctx, span := s.startSpan(ctx, "SessionService.ValidateSession")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if session.Expired(s.now()) {
		if err := s.sessions.DeleteSession(ctx, token); err != nil {
			s.log().Warn("failed to reap expired session", zap.String("user_id", session.UserID), zap.Error(err))
		}
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return &Principal{User: user, Session: &session}, nil
}

// DeleteSession removes the session. Unknown tokens are ignored.
func (s *SessionService) DeleteSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CreateAPIToken issues a CLI token. The plaintext is returned once and only
// its SHA-256 is stored.
func (s *SessionService) CreateAPIToken(ctx context.Context, userID, name string) (string, domain.APIToken, error) {
	ctx, span := s.startSpan(ctx, "SessionService.CreateAPIToken")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultTokenName
	}
	plaintext := APITokenPrefix + randomHex(tokenBytes)
	now := s.now()
	token := domain.APIToken{
		ID:        HashAPIToken(plaintext),
		UserID:    userID,
		Name:      name,
		Prefix:    plaintext[:displayPrefixLen],
		ExpiresAt: now.Add(s.apiTokenTTL),
		CreatedAt: now,
	}
	if err := s.tokens.CreateAPIToken(ctx, token); err != nil {
		return "", domain.APIToken{}, fmt.Errorf("create api token: %w", err)
	}
	s.audit("api_token.created", "user_id", userID, "prefix", token.Prefix, "name", name)
	return plaintext, token, nil
}

// ValidateAPIToken resolves plaintext to a principal, or nil when unknown or
// expired. A hit records last use without blocking the caller.
func (s *SessionService) ValidateAPIToken(ctx context.Context, plaintext string) (*Principal, error) {
	ctx, span := s.startSpan(ctx, "SessionService.ValidateAPIToken")
	defer span.End()

	if strings.TrimSpace(plaintext) == "" {
		return nil, nil
	}
	id := HashAPIToken(plaintext)
	token, err := s.tokens.GetAPIToken(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("validate api token: %w", err)
	}
	now := s.now()
	if token.Expired(now) {
		if err := s.tokens.DeleteAPIToken(ctx, token.UserID, token.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log().Warn("failed to reap expired api token", zap.String("prefix", token.Prefix), zap.Error(err))
		}
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load token user: %w", err)
	}

	s.touch(token, now)
	return &Principal{User: user, APIToken: &token}, nil
}

func (s *SessionService) touch(token domain.APIToken, usedAt time.Time) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := s.tokens.TouchAPIToken(ctx, token.ID, usedAt); err != nil {
			s.log().Warn("failed to record api token use", zap.String("prefix", token.Prefix), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight last-used updates finish.
func (s *SessionService) Wait() {
	s.pending.Wait()
}

// ListAPITokens returns the user's tokens without any secret material.
func (s *SessionService) ListAPITokens(ctx context.Context, userID string) ([]domain.APIToken, error) {
	tokens, err := s.tokens.ListAPITokens(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	return tokens, nil
}

// RevokeAPIToken deletes one of the user's tokens. Another user's id is
// reported as not found.
func (s *SessionService) RevokeAPIToken(ctx context.Context, userID, id string) error {
	ctx, span := s.startSpan(ctx, "SessionService.RevokeAPIToken")
	defer span.End()

	if err := s.tokens.DeleteAPIToken(ctx, userID, id); err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	s.audit("api_token.revoked", "user_id", userID)
	return nil
}

// Identify resolves the request's credentials to a principal without
// requiring an organization. A bearer API token takes precedence over the
// session cookie.
func (s *SessionService) Identify(ctx context.Context, in AuthInput) (*Principal, string, error) {
	var (
		principal *Principal
		method    string
		err       error
	)
	if in.Bearer != "" {
		principal, err = s.ValidateAPIToken(ctx, in.Bearer)
		method = MethodAPIToken
	}
	if err == nil && principal == nil && in.SessionToken != "" {
		principal, err = s.ValidateSession(ctx, in.SessionToken)
		method = MethodSession
	}
	if err != nil {
		return nil, "", err
	}
	if principal == nil {
		return nil, "", domain.ErrUnauthorized
	}
	return principal, method, nil
}

// Authenticate resolves the request's credentials and active organization.
func (s *SessionService) Authenticate(ctx context.Context, in AuthInput) (*AuthContext, error) {
	ctx, span := s.startSpan(ctx, "SessionService.Authenticate")
	defer span.End()

	principal, method, err := s.Identify(ctx, in)
	if err != nil {
		return nil, err
	}
	active, err := s.orgs.Resolve(ctx, principal.User.ID, in.RequestedOrg)
	if err != nil {
		return nil, err
	}
	return &AuthContext{
		User:         principal.User,
		Organization: active.Organization,
		Role:         active.Role,
		Memberships:  active.Memberships,
		Method:       method,
		APIToken:     principal.APIToken,
	}, nil
}

// HashAPIToken returns the storage id for a plaintext token.
func HashAPIToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
