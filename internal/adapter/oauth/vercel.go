package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

const (
	vercelAuthBaseURL = "https://vercel.com/integrations"
	vercelTokenURL    = "https://api.vercel.com/v2/oauth/access_token"
)

// VercelOptions configures the Vercel integration client.
type VercelOptions struct {
	Options
	Slug string
}

// VercelClient drives the Vercel integration install flow. It is connect-only:
// the install page takes no scopes or PKCE, and there is no userinfo endpoint.
type VercelClient struct {
	slug       string
	authBase   string
	token      oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
}

var _ ProviderClient = (*VercelClient)(nil)

// NewVercel constructs the Vercel integration client.
func NewVercel(opts VercelOptions) *VercelClient {
	authBase := vercelAuthBaseURL
	if opts.AuthURL != "" {
		authBase = strings.TrimRight(opts.AuthURL, "/")
	}
	tokenURL := vercelTokenURL
	if opts.TokenURL != "" {
		tokenURL = opts.TokenURL
	}
	return &VercelClient{
		slug:     opts.Slug,
		authBase: authBase,
		token: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			// Vercel reads the client credentials from the form body only.
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		httpClient: opts.httpClient(),
		timeout:    opts.Timeout,
	}
}

func (c *VercelClient) Provider() domainoauth.Provider { return domainoauth.Vercel }

func (c *VercelClient) RequiresPKCE() bool { return false }

func (c *VercelClient) AuthorizationURL(state, _ string, _ []string, _ string) string {
	q := url.Values{}
	q.Set("state", state)
	return fmt.Sprintf("%s/%s/new?%s", c.authBase, url.PathEscape(c.slug), q.Encode())
}

// Exchange trades the integration code at Vercel's token endpoint.
func (c *VercelClient) Exchange(ctx context.Context, code, _ string, redirectURI string) (*domainoauth.TokenResponse, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	cfg := c.token
	cfg.RedirectURL = redirectURI
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("vercel token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("vercel token exchange: %w", domainoauth.ErrTokenInvalid)
	}
	return &domainoauth.TokenResponse{AccessToken: tok.AccessToken, TokenType: tok.TokenType}, nil
}

func (c *VercelClient) UserInfo(context.Context, *domainoauth.TokenResponse) (*domainoauth.UserInfo, error) {
	return nil, fmt.Errorf("vercel userinfo: %w", domainoauth.ErrProviderNotFound)
}
