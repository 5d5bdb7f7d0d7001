package credential_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

const (
	orgID     = "8f7d0c7e-1f43-4c3a-9a36-1d2a8a0fb001"
	projectID = "0b4a6a3e-77e2-4a9e-8f7f-5c1bb2dd0002"
	userID    = "c3b2a1d0-5e4f-4a3b-8c2d-1e0f9a8b0003"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type memoryVault struct {
	data map[string]map[string]string
	err  error
}

func newMemoryVault() *memoryVault {
	return &memoryVault{data: map[string]map[string]string{}}
}

func (m *memoryVault) set(path scope.Path, key, value string) {
	if m.data[path.String()] == nil {
		m.data[path.String()] = map[string]string{}
	}
	m.data[path.String()][key] = value
}

func (m *memoryVault) unset(path scope.Path, key string) {
	delete(m.data[path.String()], key)
}

func (m *memoryVault) GetSecret(_ context.Context, path scope.Path, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[path.String()][key]
	return v, ok, nil
}

func (m *memoryVault) ListSecrets(_ context.Context, path scope.Path) ([]vault.Secret, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []vault.Secret{}
	for k, v := range m.data[path.String()] {
		out = append(out, vault.Secret{Key: k, Value: v})
	}
	return out, nil
}

func newResolver(store credential.SecretReader) *credential.Resolver {
	return credential.NewResolver(store, zap.NewNop(), credential.WithClock(func() time.Time { return now }))
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func TestResolveCascadePriority(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)
	ctx := context.Background()
	target := credential.Target{OrgID: orgID, ProjectID: projectID, UserID: userID}

	projectPath := scope.MustProject(orgID, projectID)
	orgPath := scope.MustOrg(orgID)
	userPath := scope.MustUser(userID)
	store.set(projectPath, credential.GitHubAccessToken, "project-token")
	store.set(orgPath, credential.GitHubAccessToken, "org-token")
	store.set(userPath, credential.GitHubAccessToken, "user-token")

	res, err := resolver.Resolve(ctx, credential.GitHub, target)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, "project-token", res.Value)
	require.Equal(t, scope.LevelProject, res.Source)

	store.unset(projectPath, credential.GitHubAccessToken)
	res, err = resolver.Resolve(ctx, credential.GitHub, target)
	require.NoError(t, err)
	require.Equal(t, "org-token", res.Value)
	require.Equal(t, scope.LevelOrg, res.Source)

	store.unset(orgPath, credential.GitHubAccessToken)
	res, err = resolver.Resolve(ctx, credential.GitHub, target)
	require.NoError(t, err)
	require.Equal(t, "user-token", res.Value)
	require.Equal(t, scope.LevelUser, res.Source)

	store.unset(userPath, credential.GitHubAccessToken)
	res, err = resolver.Resolve(ctx, credential.GitHub, target)
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestResolveIsScopeMajorKeyMinor(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)

	store.set(scope.MustProject(orgID, projectID), credential.AnthropicAPIKey, "project-api-key")
	store.set(scope.MustOrg(orgID), credential.ClaudeAccessToken, "org-oauth")

	res, err := resolver.Resolve(context.Background(), credential.Claude, credential.Target{OrgID: orgID, ProjectID: projectID})
	require.NoError(t, err)
	require.Equal(t, credential.AnthropicAPIKey, res.Key)
	require.Equal(t, "project-api-key", res.Value)
	require.Equal(t, scope.LevelProject, res.Source)
}

func TestResolveSkipsExpiredOAuthAtSameScope(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)
	path := scope.MustProject(orgID, projectID)

	store.set(path, credential.ClaudeAccessToken, "stale")
	store.set(path, credential.ClaudeTokenExpires, millis(now.Add(-time.Minute)))
	store.set(path, credential.AnthropicAPIKey, "sk-ant")

	res, err := resolver.Resolve(context.Background(), credential.Claude, credential.Target{OrgID: orgID, ProjectID: projectID})
	require.NoError(t, err)
	require.Equal(t, credential.AnthropicAPIKey, res.Key)
	require.Equal(t, "sk-ant", res.Value)
	require.Equal(t, scope.LevelProject, res.Source)
}

func TestResolveExpiredOAuthFallsToLowerScope(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)
	projectPath := scope.MustProject(orgID, projectID)

	store.set(projectPath, credential.ClaudeAccessToken, "stale")
	store.set(projectPath, credential.ClaudeTokenExpires, millis(now.Add(-time.Minute)))
	store.set(scope.MustOrg(orgID), credential.AnthropicAPIKey, "org-key")

	res, err := resolver.Resolve(context.Background(), credential.Claude, credential.Target{OrgID: orgID, ProjectID: projectID})
	require.NoError(t, err)
	require.Equal(t, "org-key", res.Value)
	require.Equal(t, scope.LevelOrg, res.Source)
}

func TestResolveKeepsLiveOAuthToken(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)
	path := scope.MustOrg(orgID)

	store.set(path, credential.ClaudeAccessToken, "fresh")
	store.set(path, credential.ClaudeTokenExpires, millis(now.Add(time.Hour)))
	store.set(path, credential.AnthropicAPIKey, "sk-ant")

	res, err := resolver.Resolve(context.Background(), credential.Claude, credential.Target{OrgID: orgID})
	require.NoError(t, err)
	require.Equal(t, credential.ClaudeAccessToken, res.Key)
	require.Equal(t, "fresh", res.Value)
}

func TestResolveUserScopeIsNotExpirationFiltered(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)
	path := scope.MustUser(userID)

	store.set(path, credential.ClaudeAccessToken, "user-oauth")
	store.set(path, credential.ClaudeTokenExpires, millis(now.Add(-time.Hour)))

	res, err := resolver.Resolve(context.Background(), credential.Claude, credential.Target{OrgID: orgID, UserID: userID})
	require.NoError(t, err)
	require.Equal(t, "user-oauth", res.Value)
	require.Equal(t, scope.LevelUser, res.Source)
}

func TestFlattenMergesAndFiltersExpired(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)
	projectPath := scope.MustProject(orgID, projectID)
	orgPath := scope.MustOrg(orgID)

	store.set(orgPath, credential.AnthropicAPIKey, "org-key")
	store.set(orgPath, credential.GitHubAccessToken, "org-gh")
	store.set(orgPath, "CUSTOM", "org-custom")
	store.set(projectPath, credential.GitHubAccessToken, "project-gh")
	store.set(projectPath, credential.ClaudeAccessToken, "stale")
	store.set(projectPath, credential.ClaudeRefreshToken, "refresh")
	store.set(projectPath, credential.ClaudeTokenExpires, millis(now.Add(-time.Second)))

	env, err := resolver.Flatten(context.Background(), orgID, projectID)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		credential.AnthropicAPIKey:   "org-key",
		credential.GitHubAccessToken: "project-gh",
		"CUSTOM":                     "org-custom",
	}, env)
}

func TestFilterExpiredIgnoresNonNumericExpiry(t *testing.T) {
	env := map[string]string{
		credential.ClaudeAccessToken:  "token",
		credential.ClaudeTokenExpires: "soon",
	}
	out := credential.FilterExpired(env, now)
	require.Equal(t, env, out)
}

func TestStatusDowngradesVaultFailure(t *testing.T) {
	store := newMemoryVault()
	store.err = errors.New("vault down")
	resolver := newResolver(store)

	status := resolver.Status(context.Background(), credential.Target{OrgID: orgID})
	require.False(t, status.GitHub.Connected)
	require.False(t, status.Vercel.Connected)
	require.False(t, status.Claude.Connected)
}

func TestStatusReportsProvenance(t *testing.T) {
	store := newMemoryVault()
	resolver := newResolver(store)
	store.set(scope.MustOrg(orgID), credential.VercelAccessToken, "vc")

	status := resolver.Status(context.Background(), credential.Target{OrgID: orgID, ProjectID: projectID})
	require.True(t, status.Vercel.Connected)
	require.Equal(t, "org", status.Vercel.Source)
	require.False(t, status.GitHub.Connected)
}

func TestKeyHelpers(t *testing.T) {
	require.True(t, credential.IsAllowedKey(credential.AnthropicAPIKey))
	require.False(t, credential.IsAllowedKey("PATH"))
}
