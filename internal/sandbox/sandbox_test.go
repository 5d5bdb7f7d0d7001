package sandbox_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/sandbox"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

const (
	orgID     = "6f1c2d9e-3b1a-4c6e-9d7f-1a2b3c4d5e6f"
	projectID = "0b7e4f2a-8c3d-4e5f-a6b7-c8d9e0f1a2b3"
	userID    = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type memoryVault map[string]map[string]string

func (m memoryVault) set(path scope.Path, key, value string) {
	if m[path.String()] == nil {
		m[path.String()] = map[string]string{}
	}
	m[path.String()][key] = value
}

func (m memoryVault) GetSecret(_ context.Context, path scope.Path, key string) (string, bool, error) {
	v, ok := m[path.String()][key]
	return v, ok, nil
}

func (m memoryVault) ListSecrets(_ context.Context, path scope.Path) ([]vault.Secret, error) {
	var out []vault.Secret
	for k, v := range m[path.String()] {
		out = append(out, vault.Secret{Key: k, Value: v})
	}
	return out, nil
}

func TestAssembleMergesAndFallsBack(t *testing.T) {
	store := memoryVault{}
	store.set(scope.MustOrg(orgID), "NPM_TOKEN", "npm-org")
	store.set(scope.MustOrg(orgID), credential.GitHubAccessToken, "gho_org")
	store.set(scope.MustProject(orgID, projectID), "NPM_TOKEN", "npm-project")
	store.set(scope.MustProject(orgID, projectID), credential.VercelAccessToken, "vc_project")
	store.set(scope.MustUser(userID), credential.AnthropicAPIKey, "sk-user")
	store.set(scope.MustUser(userID), credential.GitHubAccessToken, "gho_user")

	assembler := sandbox.NewAssembler(credential.NewResolver(store, zap.NewNop()), "team_1")
	env, err := assembler.Assemble(context.Background(), orgID, projectID, userID)
	require.NoError(t, err)

	require.Equal(t, "npm-project", env["NPM_TOKEN"])
	require.Equal(t, "gho_org", env[credential.GitHubAccessToken])
	require.Equal(t, "vc_project", env[credential.VercelAccessToken])
	require.Equal(t, "sk-user", env[credential.AnthropicAPIKey])
	require.Equal(t, "team_1", env[sandbox.VercelTeamID])
}

func TestAssembleDropsExpiredClaudeOAuth(t *testing.T) {
	store := memoryVault{}
	past := strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10)
	store.set(scope.MustProject(orgID, projectID), credential.ClaudeAccessToken, "stale")
	store.set(scope.MustProject(orgID, projectID), credential.ClaudeTokenExpires, past)
	store.set(scope.MustOrg(orgID), credential.AnthropicAPIKey, "sk-org")

	assembler := sandbox.NewAssembler(credential.NewResolver(store, zap.NewNop()), "")
	env, err := assembler.Assemble(context.Background(), orgID, projectID, "")
	require.NoError(t, err)

	require.NotContains(t, env, credential.ClaudeAccessToken)
	require.NotContains(t, env, credential.ClaudeTokenExpires)
	require.Equal(t, "sk-org", env[credential.AnthropicAPIKey])
	require.NotContains(t, env, sandbox.VercelTeamID)
}

func TestLaunchPostsEnvironment(t *testing.T) {
	var got sandbox.DeployRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(sandbox.Deployment{ID: "sbx_1", URL: "https://sbx_1.sandbox.test"})
	}))
	defer srv.Close()

	store := memoryVault{}
	store.set(scope.MustOrg(orgID), credential.GitHubAccessToken, "gho_org")
	svc := sandbox.NewService(
		sandbox.NewAssembler(credential.NewResolver(store, zap.NewNop()), ""),
		sandbox.NewHTTPDeployer(srv.URL, srv.Client(), time.Second),
		zap.NewNop(),
	)

	dep, err := svc.Launch(context.Background(), sandbox.Request{OrgID: orgID, ProjectID: projectID, UserID: userID, Branch: "main"})
	require.NoError(t, err)
	require.Equal(t, "sbx_1", dep.ID)
	require.Equal(t, projectID, got.ProjectID)
	require.Equal(t, "main", got.Branch)
	require.Equal(t, "gho_org", got.Env[credential.GitHubAccessToken])
}

func TestLaunchSurfacesRuntimeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := sandbox.NewService(
		sandbox.NewAssembler(credential.NewResolver(memoryVault{}, zap.NewNop()), ""),
		sandbox.NewHTTPDeployer(srv.URL, srv.Client(), time.Second),
		zap.NewNop(),
	)
	_, err := svc.Launch(context.Background(), sandbox.Request{OrgID: orgID, ProjectID: projectID})
	require.Error(t, err)
}

func TestLaunchWithoutDeployer(t *testing.T) {
	require.Nil(t, sandbox.NewHTTPDeployer(" ", nil, 0))

	svc := sandbox.NewService(sandbox.NewAssembler(credential.NewResolver(memoryVault{}, zap.NewNop()), ""), nil, zap.NewNop())
	_, err := svc.Launch(context.Background(), sandbox.Request{OrgID: orgID, ProjectID: projectID})
	require.ErrorIs(t, err, sandbox.ErrNotConfigured)
}
