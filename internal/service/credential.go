package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

// SecretStore is the vault surface the services write through.
type SecretStore interface {
	credential.SecretReader
	SetSecret(ctx context.Context, path scope.Path, key, value string, opts vault.SetOptions) error
	DeleteSecret(ctx context.Context, path scope.Path, key string) error
}

var _ SecretStore = (*vault.Client)(nil)

// CredentialService manages secrets at the three scopes on behalf of an
// authenticated caller.
type CredentialService struct {
	instrument
	store    SecretStore
	resolver *credential.Resolver
	projects repository.ProjectRepository
}

// NewCredentialService wires dependencies.
func NewCredentialService(store SecretStore, resolver *credential.Resolver, projects repository.ProjectRepository, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		instrument: newInstrument(logger),
		store:      store,
		resolver:   resolver,
		projects:   projects,
	}
}

// SetCredential writes key at the requested scope.
func (s *CredentialService) SetCredential(ctx context.Context, auth *AuthContext, level scope.Level, projectID, key, value string) error {
	ctx, span := s.startSpan(ctx, "CredentialService.SetCredential")
	defer span.End()

	if !credential.IsAllowedKey(key) {
		return fmt.Errorf("credential key %q: %w", key, domain.ErrInvalidInput)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("credential value: %w", domain.ErrInvalidInput)
	}
	path, err := s.authorizedPath(ctx, auth, level, projectID)
	if err != nil {
		return err
	}
	if err := s.store.SetSecret(ctx, path, key, value, vault.SetOptions{}); err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	s.audit("credential.set", "org_id", auth.Organization.ID, "user_id", auth.User.ID, "scope", level.String(), "key", key)
	return nil
}

// DeleteCredential removes key at the requested scope. Missing keys succeed.
func (s *CredentialService) DeleteCredential(ctx context.Context, auth *AuthContext, level scope.Level, projectID, key string) error {
	ctx, span := s.startSpan(ctx, "CredentialService.DeleteCredential")
	defer span.End()

	if !credential.IsAllowedKey(key) {
		return fmt.Errorf("credential key %q: %w", key, domain.ErrInvalidInput)
	}
	path, err := s.authorizedPath(ctx, auth, level, projectID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSecret(ctx, path, key); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	s.audit("credential.deleted", "org_id", auth.Organization.ID, "user_id", auth.User.ID, "scope", level.String(), "key", key)
	return nil
}

// Disconnect deletes a provider's integration token at the org or project scope.
func (s *CredentialService) Disconnect(ctx context.Context, auth *AuthContext, provider domainoauth.Provider, level scope.Level, projectID string) error {
	key, ok := credential.ProviderKey(provider)
	if !ok {
		return fmt.Errorf("disconnect %s: %w", provider, domainoauth.ErrProviderNotFound)
	}
	if level == scope.LevelUser {
		return fmt.Errorf("disconnect at user scope: %w", domain.ErrInvalidInput)
	}
	return s.DeleteCredential(ctx, auth, level, projectID, key)
}

// Status reports every integration for the active org, optionally narrowed
// to one of its projects. Vault failures read as not connected.
func (s *CredentialService) Status(ctx context.Context, auth *AuthContext, projectID string) (credential.Status, error) {
	ctx, span := s.startSpan(ctx, "CredentialService.Status")
	defer span.End()

	target := credential.Target{OrgID: auth.Organization.ID, UserID: auth.User.ID}
	if projectID != "" {
		project, err := s.project(ctx, auth.Organization.ID, projectID)
		if err != nil {
			return credential.Status{}, err
		}
		target.ProjectID = project.ID
	}
	return s.resolver.Status(ctx, target), nil
}

// authorizedPath maps a scope request onto a vault path, enforcing that org
// and project writes come from an admin and that the project is in the
// caller's active org.
func (s *CredentialService) authorizedPath(ctx context.Context, auth *AuthContext, level scope.Level, projectID string) (scope.Path, error) {
	switch level {
	case scope.LevelUser:
		return scope.User(auth.User.ID)
	case scope.LevelOrg:
		if !auth.Role.CanManage() {
			return scope.Path{}, domain.ErrForbidden
		}
		return scope.Org(auth.Organization.ID)
	case scope.LevelProject:
		project, err := s.project(ctx, auth.Organization.ID, projectID)
		if err != nil {
			return scope.Path{}, err
		}
		if !auth.Role.CanManage() {
			return scope.Path{}, domain.ErrForbidden
		}
		return scope.Project(project.OrganizationID, project.ID)
	default:
		return scope.Path{}, fmt.Errorf("scope %d: %w", level, domain.ErrInvalidInput)
	}
}

func (s *CredentialService) project(ctx context.Context, orgID, projectID string) (domain.Project, error) {
	return lookupProject(ctx, s.projects, orgID, projectID)
}

// lookupProject loads a project inside orgID. Malformed ids are reported as
// not found, the same as ids from another tenant.
func lookupProject(ctx context.Context, projects repository.ProjectRepository, orgID, projectID string) (domain.Project, error) {
	path, err := scope.Project(orgID, projectID)
	if err != nil {
		if errors.Is(err, scope.ErrInvalidID) {
			return domain.Project{}, domain.ErrNotFound
		}
		return domain.Project{}, err
	}
	project, err := projects.GetProject(ctx, path.OrgID, path.ProjectID)
	if err != nil {
		return domain.Project{}, err
	}
	return project, nil
}
