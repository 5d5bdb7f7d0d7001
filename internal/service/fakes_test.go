package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/org"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

var errVaultDown = errors.New("vault unavailable")

type memorySecrets struct {
	mu      sync.Mutex
	data    map[string]map[string]string
	failGet bool
	failDel map[string]bool
}

func newMemorySecrets() *memorySecrets {
	return &memorySecrets{data: make(map[string]map[string]string), failDel: make(map[string]bool)}
}

func (m *memorySecrets) GetSecret(_ context.Context, path scope.Path, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errVaultDown
	}
	v, ok := m.data[path.String()][key]
	return v, ok, nil
}

func (m *memorySecrets) ListSecrets(_ context.Context, path scope.Path) ([]vault.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errVaultDown
	}
	out := make([]vault.Secret, 0, len(m.data[path.String()]))
	for k, v := range m.data[path.String()] {
		out = append(out, vault.Secret{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memorySecrets) SetSecret(_ context.Context, path scope.Path, key, value string, _ vault.SetOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[path.String()] == nil {
		m.data[path.String()] = make(map[string]string)
	}
	m.data[path.String()][key] = value
	return nil
}

func (m *memorySecrets) DeleteSecret(_ context.Context, path scope.Path, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDel[key] {
		return errVaultDown
	}
	delete(m.data[path.String()], key)
	return nil
}

func (m *memorySecrets) value(path scope.Path, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[path.String()][key]
	return v, ok
}

// fixture is a single in-memory world: two orgs, each with an owner, plus an
// admin and a member in the first org.
type fixture struct {
	repo    *repository.Memory
	secrets *memorySecrets

	sessions    *SessionService
	orgs        *OrgService
	projects    *ProjectService
	credentials *CredentialService

	owner, admin, member, outsider domain.User
	orgA, orgB                     domain.Organization
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemory()
	secrets := newMemorySecrets()
	logger := zap.NewNop()

	f := &fixture{repo: repo, secrets: secrets}
	f.sessions = NewSessionService(repo, repo, repo, org.NewResolver(repo), config.Config{}, logger)
	f.orgs = NewOrgService(repo, repo, logger)
	f.projects = NewProjectService(repo, secrets, logger)
	f.credentials = NewCredentialService(secrets, credential.NewResolver(secrets, logger), repo, logger)

	f.owner = f.user(t, "owner@example.com")
	f.admin = f.user(t, "admin@example.com")
	f.member = f.user(t, "member@example.com")
	f.outsider = f.user(t, "outsider@example.com")

	var err error
	f.orgA, err = f.orgs.CreateOrganization(ctx, f.owner.ID, "Acme")
	require.NoError(t, err)
	f.orgB, err = f.orgs.CreateOrganization(ctx, f.outsider.ID, "Globex")
	require.NoError(t, err)
	require.NoError(t, repo.AddMember(ctx, f.orgA.ID, f.admin.ID, domain.RoleAdmin))
	require.NoError(t, repo.AddMember(ctx, f.orgA.ID, f.member.ID, domain.RoleMember))
	return f
}

func (f *fixture) user(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := f.repo.UpsertByEmail(context.Background(), domain.User{Email: email, Name: email, Provider: "google"})
	require.NoError(t, err)
	return u
}

func (f *fixture) auth(t *testing.T, user domain.User, orgID string) *AuthContext {
	t.Helper()
	session, err := f.sessions.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)
	auth, err := f.sessions.Authenticate(context.Background(), AuthInput{SessionToken: session.Token, RequestedOrg: orgID})
	require.NoError(t, err)
	require.Equal(t, orgID, auth.Organization.ID)
	return auth
}
