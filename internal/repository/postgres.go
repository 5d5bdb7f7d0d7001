package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository         = (*PostgresUserRepo)(nil)
	_ OrganizationRepository = (*PostgresOrgRepo)(nil)
	_ ProjectRepository      = (*PostgresProjectRepo)(nil)
	_ SessionRepository      = (*PostgresSessionRepo)(nil)
	_ APITokenRepository     = (*PostgresAPITokenRepo)(nil)
)

// notFound maps pgx.ErrNoRows onto domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, email, name, avatar_url, provider, provider_user_id, created_at, updated_at`

const upsertUserSQL = `INSERT INTO users (id, email, name, avatar_url, provider, provider_user_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (email) DO UPDATE SET
    name = EXCLUDED.name,
    avatar_url = EXCLUDED.avatar_url,
    provider = EXCLUDED.provider,
    provider_user_id = EXCLUDED.provider_user_id,
    updated_at = now()
RETURNING ` + userColumns

func (r *PostgresUserRepo) UpsertByEmail(ctx context.Context, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx, upsertUserSQL,
		user.ID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.Provider,
		user.ProviderUserID,
	)
	out, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	out, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", notFound(err))
	}
	return out, nil
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	out, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", notFound(err))
	}
	return out, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.Provider, &u.ProviderUserID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// PostgresOrgRepo implements OrganizationRepository.
type PostgresOrgRepo struct {
	db *pgxpool.Pool
}

func NewPostgresOrgRepo(pool *pgxpool.Pool) *PostgresOrgRepo {
	return &PostgresOrgRepo{db: pool}
}

func (r *PostgresOrgRepo) CreateWithOwner(ctx context.Context, org domain.Organization, ownerID string) (domain.Organization, error) {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("begin create org: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var out domain.Organization
	if err := tx.QueryRow(ctx,
		`INSERT INTO organizations (id, name) VALUES ($1, $2) RETURNING id, name, created_at, updated_at`,
		org.ID, org.Name,
	).Scan(&out.ID, &out.Name, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return domain.Organization{}, fmt.Errorf("insert org: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO memberships (org_id, user_id, role) VALUES ($1, $2, $3)`,
		out.ID, ownerID, string(domain.RoleOwner),
	); err != nil {
		return domain.Organization{}, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Organization{}, fmt.Errorf("commit create org: %w", err)
	}
	return out, nil
}

const membershipSelect = `SELECT m.user_id, m.org_id, m.role, m.created_at, o.id, o.name, o.created_at, o.updated_at
FROM memberships m
JOIN organizations o ON o.id = m.org_id`

func (r *PostgresOrgRepo) ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx, membershipSelect+` WHERE m.user_id = $1 ORDER BY m.created_at, m.org_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return out, nil
}

func (r *PostgresOrgRepo) GetMembership(ctx context.Context, orgID, userID string) (domain.Membership, error) {
	row := r.db.QueryRow(ctx, membershipSelect+` WHERE m.org_id = $1 AND m.user_id = $2`, orgID, userID)
	m, err := scanMembership(row)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("get membership: %w", notFound(err))
	}
	return m, nil
}

func scanMembership(row pgx.Row) (domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	err := row.Scan(&m.UserID, &m.OrganizationID, &role, &m.CreatedAt,
		&m.Organization.ID, &m.Organization.Name, &m.Organization.CreatedAt, &m.Organization.UpdatedAt)
	m.Role = domain.Role(role)
	return m, err
}

func (r *PostgresOrgRepo) ListMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	const query = `
SELECT u.id, u.email, u.name, u.avatar_url, u.provider, u.provider_user_id, u.created_at, u.updated_at, m.role, m.created_at
FROM memberships m
JOIN users u ON u.id = m.user_id
WHERE m.org_id = $1
ORDER BY m.created_at, u.id`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var (
			m    domain.Member
			role string
		)
		if err := rows.Scan(&m.User.ID, &m.User.Email, &m.User.Name, &m.User.AvatarURL, &m.User.Provider,
			&m.User.ProviderUserID, &m.User.CreatedAt, &m.User.UpdatedAt, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = domain.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}

func (r *PostgresOrgRepo) AddMember(ctx context.Context, orgID, userID string, role domain.Role) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO memberships (org_id, user_id, role) VALUES ($1, $2, $3)
ON CONFLICT (org_id, user_id) DO NOTHING`,
		orgID, userID, string(role),
	); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *PostgresOrgRepo) UpdateMemberRole(ctx context.Context, orgID, userID string, role domain.Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE memberships SET role = $3 WHERE org_id = $1 AND user_id = $2 AND role <> 'owner'`,
		orgID, userID, string(role),
	)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update member role: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresOrgRepo) RemoveMember(ctx context.Context, orgID, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM memberships WHERE org_id = $1 AND user_id = $2 AND role <> 'owner'`,
		orgID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove member: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresOrgRepo) ListOrgsWithoutOwner(ctx context.Context) ([]string, error) {
	const query = `
SELECT DISTINCT m.org_id
FROM memberships m
WHERE NOT EXISTS (
    SELECT 1 FROM memberships o WHERE o.org_id = m.org_id AND o.role = 'owner'
)
ORDER BY m.org_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list ownerless orgs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list ownerless orgs: %w", err)
	}
	return ids, nil
}

func (r *PostgresOrgRepo) PromoteEarliestMember(ctx context.Context, orgID string) (string, error) {
	const query = `
UPDATE memberships SET role = 'owner'
WHERE org_id = $1
  AND user_id = (
    SELECT user_id FROM memberships WHERE org_id = $1 ORDER BY created_at, user_id LIMIT 1
  )
  AND NOT EXISTS (
    SELECT 1 FROM memberships WHERE org_id = $1 AND role = 'owner'
  )
RETURNING user_id`

	var userID string
	if err := r.db.QueryRow(ctx, query, orgID).Scan(&userID); err != nil {
		return "", fmt.Errorf("promote earliest member: %w", notFound(err))
	}
	return userID, nil
}

// PostgresProjectRepo implements ProjectRepository.
type PostgresProjectRepo struct {
	db *pgxpool.Pool
}

func NewPostgresProjectRepo(pool *pgxpool.Pool) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: pool}
}

const projectColumns = `id, org_id, name, git_remote, branch, created_at, updated_at`

func scanProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.GitRemote, &p.Branch, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PostgresProjectRepo) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	rows, err := r.db.Query(ctx, `SELECT `+projectColumns+` FROM projects WHERE org_id = $1 ORDER BY created_at, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (r *PostgresProjectRepo) GetProject(ctx context.Context, orgID, projectID string) (domain.Project, error) {
	row := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE org_id = $1 AND id = $2`, orgID, projectID)
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", notFound(err))
	}
	return p, nil
}

func (r *PostgresProjectRepo) CreateProject(ctx context.Context, project domain.Project) (domain.Project, error) {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO projects (id, org_id, name, git_remote, branch) VALUES ($1, $2, $3, $4, $5) RETURNING `+projectColumns,
		project.ID, project.OrganizationID, project.Name, project.GitRemote, project.Branch,
	)
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (r *PostgresProjectRepo) UpdateProject(ctx context.Context, project domain.Project) (domain.Project, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE projects SET name = $3, git_remote = $4, branch = $5, updated_at = now()
WHERE org_id = $1 AND id = $2
RETURNING `+projectColumns,
		project.OrganizationID, project.ID, project.Name, project.GitRemote, project.Branch,
	)
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", notFound(err))
	}
	return p, nil
}

func (r *PostgresProjectRepo) DeleteProject(ctx context.Context, orgID, projectID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE org_id = $1 AND id = $2`, orgID, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete project: %w", domain.ErrNotFound)
	}
	return nil
}

// PostgresSessionRepo implements SessionRepository.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

func (r *PostgresSessionRepo) CreateSession(ctx context.Context, session domain.Session) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		session.Token, session.UserID, session.ExpiresAt,
	); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) GetSession(ctx context.Context, token string) (domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRow(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = $1`, token,
	).Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", notFound(err))
	}
	return s, nil
}

func (r *PostgresSessionRepo) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PostgresAPITokenRepo implements APITokenRepository.
type PostgresAPITokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAPITokenRepo(pool *pgxpool.Pool) *PostgresAPITokenRepo {
	return &PostgresAPITokenRepo{db: pool}
}

const apiTokenColumns = `id, user_id, name, prefix, expires_at, last_used_at, created_at`

func scanAPIToken(row pgx.Row) (domain.APIToken, error) {
	var t domain.APIToken
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Prefix, &t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt)
	return t, err
}

func (r *PostgresAPITokenRepo) CreateAPIToken(ctx context.Context, token domain.APIToken) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO api_tokens (id, user_id, name, prefix, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.UserID, token.Name, token.Prefix, token.ExpiresAt,
	); err != nil {
		return fmt.Errorf("create api token: %w", err)
	}
	return nil
}

func (r *PostgresAPITokenRepo) GetAPIToken(ctx context.Context, id string) (domain.APIToken, error) {
	row := r.db.QueryRow(ctx, `SELECT `+apiTokenColumns+` FROM api_tokens WHERE id = $1`, id)
	t, err := scanAPIToken(row)
	if err != nil {
		return domain.APIToken{}, fmt.Errorf("get api token: %w", notFound(err))
	}
	return t, nil
}

func (r *PostgresAPITokenRepo) ListAPITokens(ctx context.Context, userID string) ([]domain.APIToken, error) {
	rows, err := r.db.Query(ctx, `SELECT `+apiTokenColumns+` FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.APIToken
	for rows.Next() {
		t, err := scanAPIToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	return out, nil
}

func (r *PostgresAPITokenRepo) DeleteAPIToken(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM api_tokens WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete api token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete api token: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresAPITokenRepo) TouchAPIToken(ctx context.Context, id string, usedAt time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, usedAt); err != nil {
		return fmt.Errorf("touch api token: %w", err)
	}
	return nil
}
