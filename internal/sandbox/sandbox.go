// Package sandbox assembles a project's credential environment and hands it
// to the sandbox runtime.
package sandbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
)

// ErrNotConfigured is returned when no sandbox endpoint is configured.
var ErrNotConfigured = errors.New("sandbox: deployer not configured")

// VercelTeamID is added to the environment when a Vercel token is present.
const VercelTeamID = "VERCEL_TEAM_ID"

// Environment is the set of variables injected into a sandbox.
type Environment map[string]string

// Request identifies the sandbox to launch.
type Request struct {
	OrgID     string
	ProjectID string
	UserID    string
	Branch    string
}

// DeployRequest is the payload sent to the runtime.
type DeployRequest struct {
	OrgID     string      `json:"orgId"`
	ProjectID string      `json:"projectId"`
	Branch    string      `json:"branch,omitempty"`
	Env       Environment `json:"env"`
}

// Deployment is the runtime's answer.
type Deployment struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Deployer starts a sandbox.
type Deployer interface {
	Deploy(ctx context.Context, req DeployRequest) (*Deployment, error)
}

// Assembler builds sandbox environments from the vault.
type Assembler struct {
	resolver     *credential.Resolver
	vercelTeamID string
}

// NewAssembler constructs an Assembler. teamID may be empty.
func NewAssembler(resolver *credential.Resolver, teamID string) *Assembler {
	return &Assembler{resolver: resolver, vercelTeamID: teamID}
}

var cascaded = []credential.Logical{credential.GitHub, credential.Vercel, credential.Claude}

// Assemble merges the org and project secrets, then fills each integration
// still missing from the full cascade, user scope included.
func (a *Assembler) Assemble(ctx context.Context, orgID, projectID, userID string) (Environment, error) {
	flat, err := a.resolver.Flatten(ctx, orgID, projectID)
	if err != nil {
		return nil, fmt.Errorf("flatten secrets: %w", err)
	}
	env := Environment(flat)

	target := credential.Target{OrgID: orgID, ProjectID: projectID, UserID: userID}
	for _, logical := range cascaded {
		if present(env, logical) {
			continue
		}
		res, err := a.resolver.Resolve(ctx, logical, target)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", logical.Name, err)
		}
		if res.Found {
			env[res.Key] = res.Value
		}
	}

	if _, ok := env[credential.VercelAccessToken]; ok && a.vercelTeamID != "" {
		if _, set := env[VercelTeamID]; !set {
			env[VercelTeamID] = a.vercelTeamID
		}
	}
	return env, nil
}

func present(env Environment, logical credential.Logical) bool {
	for _, key := range logical.Keys {
		if _, ok := env[key]; ok {
			return true
		}
	}
	return false
}

// Service launches sandboxes.
type Service struct {
	assembler *Assembler
	deployer  Deployer
	logger    *zap.Logger
}

// NewService wires the launcher. A nil deployer makes Launch return
// ErrNotConfigured.
func NewService(assembler *Assembler, deployer Deployer, logger *zap.Logger) *Service {
	return &Service{assembler: assembler, deployer: deployer, logger: logger}
}

// Launch assembles the environment and deploys it.
func (s *Service) Launch(ctx context.Context, req Request) (*Deployment, error) {
	if s.deployer == nil {
		return nil, ErrNotConfigured
	}
	env, err := s.assembler.Assemble(ctx, req.OrgID, req.ProjectID, req.UserID)
	if err != nil {
		return nil, err
	}
	deployment, err := s.deployer.Deploy(ctx, DeployRequest{
		OrgID:     req.OrgID,
		ProjectID: req.ProjectID,
		Branch:    req.Branch,
		Env:       env,
	})
	if err != nil {
		s.log().Error("sandbox deploy failed", zap.String("project_id", req.ProjectID), zap.Error(err))
		return nil, fmt.Errorf("deploy sandbox: %w", err)
	}
	s.log().Info("sandbox launched",
		zap.String("org_id", req.OrgID),
		zap.String("project_id", req.ProjectID),
		zap.String("sandbox_id", deployment.ID),
		zap.Int("env_keys", len(env)),
	)
	return deployment, nil
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
