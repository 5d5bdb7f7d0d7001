package credential

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/vault"
)

// SecretReader is the read side of the vault client.
type SecretReader interface {
	GetSecret(ctx context.Context, path scope.Path, key string) (string, bool, error)
	ListSecrets(ctx context.Context, path scope.Path) ([]vault.Secret, error)
}

var _ SecretReader = (*vault.Client)(nil)

// Target identifies whose credentials are being resolved. ProjectID and
// UserID are optional.
type Target struct {
	OrgID     string
	ProjectID string
	UserID    string
}

// Resolution is the outcome of Resolve. Source is provenance for display and
// is never stored alongside the secret.
type Resolution struct {
	Key    string
	Value  string
	Source scope.Level
	Found  bool
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source used for expiration checks.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver walks the scope cascade on behalf of callers.
type Resolver struct {
	store  SecretReader
	logger *zap.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// NewResolver constructs a resolver over store.
func NewResolver(store SecretReader, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer("github.com/viagen-dev/viagen-sdk-sub000/internal/credential"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first value for any of logical's keys, searching
// project, then org, then user scope. Keys are tried in order within a scope
// before moving down. At project and org scope an expired Claude OAuth token
// is skipped so a standing API key at the same scope can still win.
func (r *Resolver) Resolve(ctx context.Context, logical Logical, target Target) (Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "credential.Resolve", trace.WithAttributes(
		attribute.String("credential.logical", logical.Name),
	))
	defer span.End()

	paths, err := scope.Cascade(target.OrgID, target.ProjectID, target.UserID)
	if err != nil {
		return Resolution{}, fmt.Errorf("build cascade: %w", err)
	}

	for _, path := range paths {
		expiredChecked, expired := false, false
		for _, key := range logical.Keys {
			if isOAuthKey(key) && path.Level != scope.LevelUser {
				if !expiredChecked {
					expired, err = r.expired(ctx, path)
					if err != nil {
						return Resolution{}, err
					}
					expiredChecked = true
				}
				if expired {
					continue
				}
			}
			value, ok, err := r.store.GetSecret(ctx, path, key)
			if err != nil {
				return Resolution{}, fmt.Errorf("resolve %s: %w", logical.Name, err)
			}
			if ok {
				span.SetAttributes(attribute.String("credential.source", path.Level.String()))
				return Resolution{Key: key, Value: value, Source: path.Level, Found: true}, nil
			}
		}
	}
	return Resolution{}, nil
}

func (r *Resolver) expired(ctx context.Context, path scope.Path) (bool, error) {
	raw, ok, err := r.store.GetSecret(ctx, path, ClaudeTokenExpires)
	if err != nil {
		return false, fmt.Errorf("read token expiry: %w", err)
	}
	return ok && tokenExpired(raw, r.now()), nil
}

// Flatten merges every org and project secret into one environment, project
// entries overriding org entries key by key, then drops expired OAuth keys.
func (r *Resolver) Flatten(ctx context.Context, orgID, projectID string) (map[string]string, error) {
	ctx, span := r.tracer.Start(ctx, "credential.Flatten")
	defer span.End()

	orgPath, err := scope.Org(orgID)
	if err != nil {
		return nil, err
	}
	paths := []scope.Path{orgPath}
	if projectID != "" {
		projectPath, err := scope.Project(orgID, projectID)
		if err != nil {
			return nil, err
		}
		paths = append(paths, projectPath)
	}

	merged := map[string]string{}
	for _, path := range paths {
		secrets, err := r.store.ListSecrets(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("flatten %s: %w", path.Level, err)
		}
		for _, s := range secrets {
			merged[s.Key] = s.Value
		}
	}
	return FilterExpired(merged, r.now()), nil
}

// IntegrationStatus describes one logical credential for display.
type IntegrationStatus struct {
	Connected bool   `json:"connected"`
	Source    string `json:"source,omitempty"`
	Key       string `json:"key,omitempty"`
}

// Status summarizes every logical credential for a target.
type Status struct {
	GitHub IntegrationStatus `json:"github"`
	Vercel IntegrationStatus `json:"vercel"`
	Claude IntegrationStatus `json:"claude"`
}

// Status resolves each logical credential. Read failures are reported as
// not connected so a vault outage does not break page loads.
func (r *Resolver) Status(ctx context.Context, target Target) Status {
	return Status{
		GitHub: r.status(ctx, GitHub, target),
		Vercel: r.status(ctx, Vercel, target),
		Claude: r.status(ctx, Claude, target),
	}
}

func (r *Resolver) status(ctx context.Context, logical Logical, target Target) IntegrationStatus {
	res, err := r.Resolve(ctx, logical, target)
	if err != nil {
		r.log().Warn("credential status unavailable",
			zap.String("credential", logical.Name),
			zap.String("org_id", target.OrgID),
			zap.Error(err),
		)
		return IntegrationStatus{}
	}
	if !res.Found {
		return IntegrationStatus{}
	}
	return IntegrationStatus{Connected: true, Source: res.Source.String(), Key: res.Key}
}

func (r *Resolver) log() *zap.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return zap.L()
}
