package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

const (
	googleIssuer          = "https://accounts.google.com"
	googleJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	microsoftIssuerFormat = "https://login.microsoftonline.com/%s/v2.0"
	microsoftJWKSFormat   = "https://login.microsoftonline.com/%s/discovery/v2.0/keys"
)

type userInfoFunc func(ctx context.Context, client *http.Client, token *domainoauth.TokenResponse) (*domainoauth.UserInfo, error)

// OAuth2Client is a ProviderClient built on golang.org/x/oauth2.
type OAuth2Client struct {
	provider   domainoauth.Provider
	base       oauth2.Config
	pkce       bool
	httpClient *http.Client
	timeout    time.Duration
	userInfo   userInfoFunc
}

var _ ProviderClient = (*OAuth2Client)(nil)

func newOAuth2Client(provider domainoauth.Provider, endpoint oauth2.Endpoint, opts Options, pkce bool, info userInfoFunc) *OAuth2Client {
	if opts.AuthURL != "" {
		endpoint.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}
	return &OAuth2Client{
		provider: provider,
		base: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     endpoint,
		},
		pkce:       pkce,
		httpClient: opts.httpClient(),
		timeout:    opts.Timeout,
		userInfo:   info,
	}
}

// NewGoogle returns the Google login client. Identity comes from the
// verified id_token.
func NewGoogle(opts Options) *OAuth2Client {
	jwksURL := googleJWKSURL
	if opts.JWKSURL != "" {
		jwksURL = opts.JWKSURL
	}
	verifier := newIDTokenVerifier(opts.httpClient(), googleIssuer, jwksURL, opts.ClientID, false)
	return newOAuth2Client(domainoauth.Google, endpoints.Google, opts, true, googleIdentity(verifier))
}

// NewMicrosoft returns the Microsoft Entra ID login client for tenant. The
// common, organizations and consumers tenants issue per-tenant issuers, which
// are checked against the token's tid claim.
func NewMicrosoft(opts Options, tenant string) *OAuth2Client {
	if tenant == "" {
		tenant = "common"
	}
	jwksURL := fmt.Sprintf(microsoftJWKSFormat, tenant)
	if opts.JWKSURL != "" {
		jwksURL = opts.JWKSURL
	}
	multiTenant := tenant == "common" || tenant == "organizations" || tenant == "consumers"
	verifier := newIDTokenVerifier(opts.httpClient(), fmt.Sprintf(microsoftIssuerFormat, tenant), jwksURL, opts.ClientID, multiTenant)
	return newOAuth2Client(domainoauth.Microsoft, endpoints.AzureAD(tenant), opts, true, microsoftIdentity(verifier, multiTenant))
}

func (c *OAuth2Client) Provider() domainoauth.Provider { return c.provider }

func (c *OAuth2Client) RequiresPKCE() bool { return c.pkce }

func (c *OAuth2Client) config(redirectURI string, scopes []string) *oauth2.Config {
	cfg := c.base
	cfg.RedirectURL = redirectURI
	cfg.Scopes = scopes
	return &cfg
}

func (c *OAuth2Client) AuthorizationURL(state, verifier string, scopes []string, redirectURI string) string {
	var opts []oauth2.AuthCodeOption
	if c.pkce && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.config(redirectURI, scopes).AuthCodeURL(state, opts...)
}

func (c *OAuth2Client) Exchange(ctx context.Context, code, verifier, redirectURI string) (*domainoauth.TokenResponse, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if c.pkce && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := c.config(redirectURI, nil).Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", c.provider, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%s token exchange: %w", c.provider, domainoauth.ErrTokenInvalid)
	}
	scope, _ := tok.Extra("scope").(string)
	idToken, _ := tok.Extra("id_token").(string)
	return &domainoauth.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        scope,
		Expiry:       tok.Expiry,
		IDToken:      idToken,
	}, nil
}

func (c *OAuth2Client) UserInfo(ctx context.Context, token *domainoauth.TokenResponse) (*domainoauth.UserInfo, error) {
	if token == nil {
		return nil, fmt.Errorf("%s userinfo: %w", c.provider, domainoauth.ErrTokenInvalid)
	}
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	info, err := c.userInfo(ctx, c.httpClient, token)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo: %w", c.provider, err)
	}
	if strings.TrimSpace(info.Email) == "" {
		return nil, fmt.Errorf("%s userinfo: no email: %w", c.provider, domainoauth.ErrTokenInvalid)
	}
	if !info.EmailVerified {
		return nil, fmt.Errorf("%s userinfo: email not verified: %w", c.provider, domainoauth.ErrTokenInvalid)
	}
	return info, nil
}

func newIDTokenVerifier(httpClient *http.Client, issuer, jwksURL, clientID string, skipIssuerCheck bool) *oidc.IDTokenVerifier {
	keys := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), httpClient), jwksURL)
	return oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID, SkipIssuerCheck: skipIssuerCheck})
}

func verifyIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, token *domainoauth.TokenResponse, claims any) (*oidc.IDToken, error) {
	if token.IDToken == "" {
		return nil, fmt.Errorf("no id_token: %w", domainoauth.ErrTokenInvalid)
	}
	idToken, err := verifier.Verify(ctx, token.IDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w: %w", domainoauth.ErrTokenInvalid, err)
	}
	if err := idToken.Claims(claims); err != nil {
		return nil, fmt.Errorf("decode id_token claims: %w", err)
	}
	return idToken, nil
}

func googleIdentity(verifier *oidc.IDTokenVerifier) userInfoFunc {
	return func(ctx context.Context, _ *http.Client, token *domainoauth.TokenResponse) (*domainoauth.UserInfo, error) {
		var claims struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
			Name          string `json:"name"`
			Picture       string `json:"picture"`
		}
		idToken, err := verifyIDToken(ctx, verifier, token, &claims)
		if err != nil {
			return nil, err
		}
		return &domainoauth.UserInfo{
			Subject:       idToken.Subject,
			Email:         claims.Email,
			Name:          claims.Name,
			AvatarURL:     claims.Picture,
			EmailVerified: claims.EmailVerified,
		}, nil
	}
}

// microsoftIdentity trusts the email claim only when Entra marks the domain
// as owner-verified (xms_edov). Tenant admins can set mail and UPN freely.
func microsoftIdentity(verifier *oidc.IDTokenVerifier, multiTenant bool) userInfoFunc {
	return func(ctx context.Context, _ *http.Client, token *domainoauth.TokenResponse) (*domainoauth.UserInfo, error) {
		var claims struct {
			ObjectID string `json:"oid"`
			TenantID string `json:"tid"`
			Email    string `json:"email"`
			Verified bool   `json:"xms_edov"`
			Name     string `json:"name"`
		}
		idToken, err := verifyIDToken(ctx, verifier, token, &claims)
		if err != nil {
			return nil, err
		}
		if multiTenant && (claims.TenantID == "" || idToken.Issuer != fmt.Sprintf(microsoftIssuerFormat, claims.TenantID)) {
			return nil, fmt.Errorf("issuer %q does not match tenant: %w", idToken.Issuer, domainoauth.ErrTokenInvalid)
		}
		subject := claims.ObjectID
		if subject == "" {
			subject = idToken.Subject
		}
		return &domainoauth.UserInfo{
			Subject:       subject,
			Email:         claims.Email,
			Name:          claims.Name,
			EmailVerified: claims.Verified,
		}, nil
	}
}
