// Package oauth holds the outbound clients for each OAuth provider.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

// ProviderClient is the capability set every provider implements.
type ProviderClient interface {
	Provider() domainoauth.Provider
	AuthorizationURL(state, verifier string, scopes []string, redirectURI string) string
	Exchange(ctx context.Context, code, verifier, redirectURI string) (*domainoauth.TokenResponse, error)
	UserInfo(ctx context.Context, token *domainoauth.TokenResponse) (*domainoauth.UserInfo, error)
	RequiresPKCE() bool
}

// Options carries credentials and transport settings shared by all clients.
// The URL fields override the provider's public endpoints.
type Options struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Timeout      time.Duration

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{}
}

// Scopes returns the provider scopes requested for purpose.
func Scopes(provider domainoauth.Provider, purpose domainoauth.Purpose) []string {
	switch provider {
	case domainoauth.Google:
		return []string{"openid", "email", "profile"}
	case domainoauth.Microsoft:
		return []string{"openid", "email", "profile"}
	case domainoauth.GitHub:
		if purpose == domainoauth.PurposeConnect {
			return []string{"read:user", "user:email", "repo", "read:org"}
		}
		return []string{"read:user", "user:email"}
	default:
		return nil
	}
}

// Registry resolves a provider name to its configured client.
type Registry struct {
	clients map[domainoauth.Provider]ProviderClient
}

// NewRegistry indexes clients by provider.
func NewRegistry(clients ...ProviderClient) *Registry {
	r := &Registry{clients: make(map[domainoauth.Provider]ProviderClient, len(clients))}
	for _, c := range clients {
		r.clients[c.Provider()] = c
	}
	return r
}

// NewRegistryFromConfig builds a client for every configured provider.
func NewRegistryFromConfig(cfg config.Config, httpClient *http.Client) *Registry {
	var clients []ProviderClient
	if cfg.Google.Configured() {
		clients = append(clients, NewGoogle(Options{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			HTTPClient:   httpClient,
			Timeout:      cfg.ProviderTimeout,
		}))
	}
	if cfg.GitHub.Configured() {
		clients = append(clients, NewGitHub(Options{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			HTTPClient:   httpClient,
			Timeout:      cfg.ProviderTimeout,
		}))
	}
	if cfg.Microsoft.Configured() {
		clients = append(clients, NewMicrosoft(Options{
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			HTTPClient:   httpClient,
			Timeout:      cfg.ProviderTimeout,
		}, cfg.MicrosoftTenant))
	}
	if cfg.Vercel.Configured() {
		clients = append(clients, NewVercel(VercelOptions{
			Options: Options{
				ClientID:     cfg.Vercel.ClientID,
				ClientSecret: cfg.Vercel.ClientSecret,
				HTTPClient:   httpClient,
				Timeout:      cfg.ProviderTimeout,
			},
			Slug: cfg.Vercel.Slug,
		}))
	}
	return NewRegistry(clients...)
}

// Lookup returns the client for provider or ErrProviderNotFound.
func (r *Registry) Lookup(provider domainoauth.Provider) (ProviderClient, error) {
	c, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", provider, domainoauth.ErrProviderNotFound)
	}
	return c, nil
}

// Providers lists the configured providers in name order.
func (r *Registry) Providers() []domainoauth.Provider {
	out := make([]domainoauth.Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
