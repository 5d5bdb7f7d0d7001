package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
)

// ProjectInput is a create, update or sync request. Empty fields on update
// keep their stored value.
type ProjectInput struct {
	ID        string
	Name      string
	GitRemote string
	Branch    string
}

// ProjectService manages projects inside the caller's active organization.
type ProjectService struct {
	instrument
	projects repository.ProjectRepository
	secrets  SecretStore
}

// NewProjectService wires dependencies.
func NewProjectService(projects repository.ProjectRepository, secrets SecretStore, logger *zap.Logger) *ProjectService {
	return &ProjectService{instrument: newInstrument(logger), projects: projects, secrets: secrets}
}

// ListProjects returns the active org's projects.
func (s *ProjectService) ListProjects(ctx context.Context, auth *AuthContext) ([]domain.Project, error) {
	projects, err := s.projects.ListProjects(ctx, auth.Organization.ID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetProject returns a project of the active org.
func (s *ProjectService) GetProject(ctx context.Context, auth *AuthContext, projectID string) (domain.Project, error) {
	return lookupProject(ctx, s.projects, auth.Organization.ID, projectID)
}

// CreateProject adds a project to the active org.
func (s *ProjectService) CreateProject(ctx context.Context, auth *AuthContext, in ProjectInput) (domain.Project, error) {
	ctx, span := s.startSpan(ctx, "ProjectService.CreateProject")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Project{}, fmt.Errorf("project name: %w", domain.ErrInvalidInput)
	}
	created, err := s.projects.CreateProject(ctx, domain.Project{
		OrganizationID: auth.Organization.ID,
		Name:           name,
		GitRemote:      strings.TrimSpace(in.GitRemote),
		Branch:         strings.TrimSpace(in.Branch),
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.audit("project.created", "org_id", created.OrganizationID, "project_id", created.ID, "actor_id", auth.User.ID)
	return created, nil
}

// UpdateProject applies non-empty fields of in. Requires admin.
func (s *ProjectService) UpdateProject(ctx context.Context, auth *AuthContext, in ProjectInput) (domain.Project, error) {
	ctx, span := s.startSpan(ctx, "ProjectService.UpdateProject")
	defer span.End()

	existing, err := lookupProject(ctx, s.projects, auth.Organization.ID, in.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if !auth.Role.CanManage() {
		return domain.Project{}, domain.ErrForbidden
	}
	return s.apply(ctx, auth, existing, in)
}

// DeleteProject removes the project and then its vault secrets. Requires admin.
func (s *ProjectService) DeleteProject(ctx context.Context, auth *AuthContext, projectID string) error {
	ctx, span := s.startSpan(ctx, "ProjectService.DeleteProject")
	defer span.End()

	existing, err := lookupProject(ctx, s.projects, auth.Organization.ID, projectID)
	if err != nil {
		return err
	}
	if !auth.Role.CanManage() {
		return domain.ErrForbidden
	}
	if err := s.projects.DeleteProject(ctx, existing.OrganizationID, existing.ID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.audit("project.deleted", "org_id", existing.OrganizationID, "project_id", existing.ID, "actor_id", auth.User.ID)
	s.purgeSecrets(ctx, existing)
	return nil
}

// SyncProjects upserts each input in order. Inputs with an id update that
// project, which must belong to the active org; the rest are created. Every
// input is validated before the first write, so a bad id or a missing name
// leaves the org untouched. A store failure mid-batch still returns the
// projects written so far.
func (s *ProjectService) SyncProjects(ctx context.Context, auth *AuthContext, inputs []ProjectInput) ([]domain.Project, error) {
	ctx, span := s.startSpan(ctx, "ProjectService.SyncProjects")
	defer span.End()

	if !auth.Role.CanManage() {
		return nil, domain.ErrForbidden
	}
	existing := make([]*domain.Project, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in.ID) == "" {
			if strings.TrimSpace(in.Name) == "" {
				return nil, fmt.Errorf("sync project %d: project name: %w", i, domain.ErrInvalidInput)
			}
			continue
		}
		project, err := lookupProject(ctx, s.projects, auth.Organization.ID, in.ID)
		if err != nil {
			return nil, fmt.Errorf("sync project %d: %w", i, err)
		}
		existing[i] = &project
	}

	out := make([]domain.Project, 0, len(inputs))
	for i, in := range inputs {
		var (
			project domain.Project
			err     error
		)
		if existing[i] == nil {
			project, err = s.CreateProject(ctx, auth, in)
		} else {
			project, err = s.apply(ctx, auth, *existing[i], in)
		}
		if err != nil {
			return out, fmt.Errorf("sync project %d: %w", i, err)
		}
		out = append(out, project)
	}
	return out, nil
}

func (s *ProjectService) apply(ctx context.Context, auth *AuthContext, existing domain.Project, in ProjectInput) (domain.Project, error) {
	if v := strings.TrimSpace(in.Name); v != "" {
		existing.Name = v
	}
	if v := strings.TrimSpace(in.GitRemote); v != "" {
		existing.GitRemote = v
	}
	if v := strings.TrimSpace(in.Branch); v != "" {
		existing.Branch = v
	}
	updated, err := s.projects.UpdateProject(ctx, existing)
	if err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	s.audit("project.updated", "org_id", updated.OrganizationID, "project_id", updated.ID, "actor_id", auth.User.ID)
	return updated, nil
}

func (s *ProjectService) purgeSecrets(ctx context.Context, project domain.Project) {
	if s.secrets == nil {
		return
	}
	path, err := scope.Project(project.OrganizationID, project.ID)
	if err != nil {
		return
	}
	secrets, err := s.secrets.ListSecrets(ctx, path)
	if err != nil {
		s.log().Warn("failed to list project secrets for cleanup", zap.String("project_id", project.ID), zap.Error(err))
		return
	}
	for _, secret := range secrets {
		if err := s.secrets.DeleteSecret(ctx, path, secret.Key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log().Warn("failed to delete project secret",
				zap.String("project_id", project.ID),
				zap.String("key", secret.Key),
				zap.Error(err),
			)
		}
	}
}
