package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
)

var (
	_ UserRepository         = (*Memory)(nil)
	_ OrganizationRepository = (*Memory)(nil)
	_ ProjectRepository      = (*Memory)(nil)
	_ SessionRepository      = (*Memory)(nil)
	_ APITokenRepository     = (*Memory)(nil)
)

// Memory is an in-process implementation of every repository. serve falls
// back to it when no DATABASE_URL is configured; tests use it as a fake.
type Memory struct {
	mu          sync.Mutex
	seq         int64
	users       map[string]domain.User
	orgs        map[string]domain.Organization
	memberships map[string]memoryMembership
	projects    map[string]memoryProject
	sessions    map[string]domain.Session
	tokens      map[string]domain.APIToken
	now         func() time.Time
}

type memoryMembership struct {
	domain.Membership
	seq int64
}

type memoryProject struct {
	domain.Project
	seq int64
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]domain.User),
		orgs:        make(map[string]domain.Organization),
		memberships: make(map[string]memoryMembership),
		projects:    make(map[string]memoryProject),
		sessions:    make(map[string]domain.Session),
		tokens:      make(map[string]domain.APIToken),
		now:         time.Now,
	}
}

func membershipKey(orgID, userID string) string { return orgID + "/" + userID }

func (m *Memory) next() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) UpsertByEmail(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, existing := range m.users {
		if existing.Email == user.Email {
			existing.Name = user.Name
			existing.AvatarURL = user.AvatarURL
			existing.Provider = user.Provider
			existing.ProviderUserID = user.ProviderUserID
			existing.UpdatedAt = now
			m.users[id] = existing
			return existing, nil
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[user.ID] = user
	return user, nil
}

func (m *Memory) GetByID(_ context.Context, userID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("get user by id: %w", domain.ErrNotFound)
	}
	return u, nil
}

func (m *Memory) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("get user by email: %w", domain.ErrNotFound)
}

func (m *Memory) CreateWithOwner(_ context.Context, org domain.Organization, ownerID string) (domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if _, exists := m.orgs[org.ID]; exists {
		return domain.Organization{}, fmt.Errorf("insert org: duplicate id %s", org.ID)
	}
	now := m.now()
	org.CreatedAt, org.UpdatedAt = now, now
	m.orgs[org.ID] = org
	m.memberships[membershipKey(org.ID, ownerID)] = memoryMembership{
		Membership: domain.Membership{UserID: ownerID, OrganizationID: org.ID, Role: domain.RoleOwner, CreatedAt: now},
		seq:        m.next(),
	}
	return org, nil
}

func (m *Memory) ListMemberships(_ context.Context, userID string) ([]domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []memoryMembership
	for _, mm := range m.memberships {
		if mm.UserID == userID {
			rows = append(rows, mm)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]domain.Membership, 0, len(rows))
	for _, mm := range rows {
		ms := mm.Membership
		ms.Organization = m.orgs[ms.OrganizationID]
		out = append(out, ms)
	}
	return out, nil
}

func (m *Memory) GetMembership(_ context.Context, orgID, userID string) (domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm, ok := m.memberships[membershipKey(orgID, userID)]
	if !ok {
		return domain.Membership{}, fmt.Errorf("get membership: %w", domain.ErrNotFound)
	}
	ms := mm.Membership
	ms.Organization = m.orgs[orgID]
	return ms, nil
}

func (m *Memory) ListMembers(_ context.Context, orgID string) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []memoryMembership
	for _, mm := range m.memberships {
		if mm.OrganizationID == orgID {
			rows = append(rows, mm)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]domain.Member, 0, len(rows))
	for _, mm := range rows {
		out = append(out, domain.Member{User: m.users[mm.UserID], Role: mm.Role, JoinedAt: mm.CreatedAt})
	}
	return out, nil
}

func (m *Memory) AddMember(_ context.Context, orgID, userID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[orgID]; !ok {
		return fmt.Errorf("add member: %w", domain.ErrNotFound)
	}
	key := membershipKey(orgID, userID)
	if _, exists := m.memberships[key]; exists {
		return nil
	}
	m.memberships[key] = memoryMembership{
		Membership: domain.Membership{UserID: userID, OrganizationID: orgID, Role: role, CreatedAt: m.now()},
		seq:        m.next(),
	}
	return nil
}

func (m *Memory) UpdateMemberRole(_ context.Context, orgID, userID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := membershipKey(orgID, userID)
	mm, ok := m.memberships[key]
	if !ok || mm.Role == domain.RoleOwner {
		return fmt.Errorf("update member role: %w", domain.ErrNotFound)
	}
	mm.Role = role
	m.memberships[key] = mm
	return nil
}

func (m *Memory) RemoveMember(_ context.Context, orgID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := membershipKey(orgID, userID)
	mm, ok := m.memberships[key]
	if !ok || mm.Role == domain.RoleOwner {
		return fmt.Errorf("remove member: %w", domain.ErrNotFound)
	}
	delete(m.memberships, key)
	return nil
}

func (m *Memory) ListOrgsWithoutOwner(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make(map[string]bool)
	owned := make(map[string]bool)
	for _, mm := range m.memberships {
		members[mm.OrganizationID] = true
		if mm.Role == domain.RoleOwner {
			owned[mm.OrganizationID] = true
		}
	}
	var ids []string
	for id := range members {
		if !owned[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) PromoteEarliestMember(_ context.Context, orgID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var earliest *memoryMembership
	for _, mm := range m.memberships {
		if mm.OrganizationID != orgID {
			continue
		}
		if mm.Role == domain.RoleOwner {
			return "", fmt.Errorf("promote earliest member: %w", domain.ErrNotFound)
		}
		if earliest == nil || mm.seq < earliest.seq {
			c := mm
			earliest = &c
		}
	}
	if earliest == nil {
		return "", fmt.Errorf("promote earliest member: %w", domain.ErrNotFound)
	}
	earliest.Role = domain.RoleOwner
	m.memberships[membershipKey(orgID, earliest.UserID)] = *earliest
	return earliest.UserID, nil
}

func (m *Memory) ListProjects(_ context.Context, orgID string) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []memoryProject
	for _, p := range m.projects {
		if p.OrganizationID == orgID {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]domain.Project, 0, len(rows))
	for _, p := range rows {
		out = append(out, p.Project)
	}
	return out, nil
}

func (m *Memory) GetProject(_ context.Context, orgID, projectID string) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok || p.OrganizationID != orgID {
		return domain.Project{}, fmt.Errorf("get project: %w", domain.ErrNotFound)
	}
	return p.Project, nil
}

func (m *Memory) CreateProject(_ context.Context, project domain.Project) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if _, exists := m.projects[project.ID]; exists {
		return domain.Project{}, fmt.Errorf("create project: duplicate id %s", project.ID)
	}
	now := m.now()
	project.CreatedAt, project.UpdatedAt = now, now
	m.projects[project.ID] = memoryProject{Project: project, seq: m.next()}
	return project, nil
}

func (m *Memory) UpdateProject(_ context.Context, project domain.Project) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[project.ID]
	if !ok || existing.OrganizationID != project.OrganizationID {
		return domain.Project{}, fmt.Errorf("update project: %w", domain.ErrNotFound)
	}
	existing.Name = project.Name
	existing.GitRemote = project.GitRemote
	existing.Branch = project.Branch
	existing.UpdatedAt = m.now()
	m.projects[project.ID] = existing
	return existing.Project, nil
}

func (m *Memory) DeleteProject(_ context.Context, orgID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok || p.OrganizationID != orgID {
		return fmt.Errorf("delete project: %w", domain.ErrNotFound)
	}
	delete(m.projects, projectID)
	return nil
}

func (m *Memory) CreateSession(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Token] = session
	return nil
}

func (m *Memory) GetSession(_ context.Context, token string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return domain.Session{}, fmt.Errorf("get session: %w", domain.ErrNotFound)
	}
	return s, nil
}

func (m *Memory) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *Memory) CreateAPIToken(_ context.Context, token domain.APIToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *Memory) GetAPIToken(_ context.Context, id string) (domain.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return domain.APIToken{}, fmt.Errorf("get api token: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (m *Memory) ListAPITokens(_ context.Context, userID string) ([]domain.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.APIToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) DeleteAPIToken(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.UserID != userID {
		return fmt.Errorf("delete api token: %w", domain.ErrNotFound)
	}
	delete(m.tokens, id)
	return nil
}

func (m *Memory) TouchAPIToken(_ context.Context, id string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil
	}
	used := usedAt
	t.LastUsedAt = &used
	m.tokens[id] = t
	return nil
}
