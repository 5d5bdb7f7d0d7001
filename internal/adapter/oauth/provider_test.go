package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

func TestGoogleAuthorizationURLCarriesPKCE(t *testing.T) {
	client := NewGoogle(Options{ClientID: "gid", ClientSecret: "gsecret"})
	verifier := oauth2.GenerateVerifier()

	raw := client.AuthorizationURL("state-1", verifier, Scopes(domainoauth.Google, domainoauth.PurposeLogin), "https://app/auth/callback/google")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "gid", q.Get("client_id"))
	require.Equal(t, "openid email profile", q.Get("scope"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), q.Get("code_challenge"))
	require.True(t, client.RequiresPKCE())
}

func TestGitHubSkipsPKCE(t *testing.T) {
	client := NewGitHub(Options{ClientID: "ghid", ClientSecret: "ghsecret"})

	raw := client.AuthorizationURL("s", "ignored", Scopes(domainoauth.GitHub, domainoauth.PurposeConnect), "https://app/cb")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Empty(t, u.Query().Get("code_challenge"))
	require.Equal(t, "read:user user:email repo read:org", u.Query().Get("scope"))
	require.False(t, client.RequiresPKCE())
}

func TestOAuth2ExchangeSendsVerifier(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "openid email",
			"id_token":     "header.payload.sig",
		})
	}))
	defer srv.Close()

	client := NewGoogle(Options{ClientID: "gid", ClientSecret: "gsecret", TokenURL: srv.URL})
	tok, err := client.Exchange(context.Background(), "code-1", "verifier-1", "https://app/cb")
	require.NoError(t, err)
	require.Equal(t, "ya29", tok.AccessToken)
	require.Equal(t, "openid email", tok.Scope)
	require.Equal(t, "header.payload.sig", tok.IDToken)
	require.Equal(t, "code-1", form.Get("code"))
	require.Equal(t, "verifier-1", form.Get("code_verifier"))
	require.Equal(t, "https://app/cb", form.Get("redirect_uri"))
}

type idTokenIssuer struct {
	key *rsa.PrivateKey
	srv *httptest.Server
}

func newIDTokenIssuer(t *testing.T) *idTokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
			{Key: &key.PublicKey, KeyID: "k1", Algorithm: string(jose.RS256), Use: "sig"},
		}})
	}))
	t.Cleanup(srv.Close)
	return &idTokenIssuer{key: key, srv: srv}
}

func (i *idTokenIssuer) sign(t *testing.T, key *rsa.PrivateKey, claims map[string]any) *domainoauth.TokenResponse {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: key, KeyID: "k1"}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := jws.CompactSerialize()
	require.NoError(t, err)
	return &domainoauth.TokenResponse{AccessToken: "at", IDToken: raw}
}

func googleClaims(email string, verified bool) map[string]any {
	return map[string]any{
		"iss":            "https://accounts.google.com",
		"aud":            "gid",
		"sub":            "g-1",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
		"email":          email,
		"email_verified": verified,
		"name":           "Ada",
		"picture":        "https://img",
	}
}

func TestGoogleUserInfo(t *testing.T) {
	issuer := newIDTokenIssuer(t)
	client := NewGoogle(Options{ClientID: "gid", JWKSURL: issuer.srv.URL})

	info, err := client.UserInfo(context.Background(), issuer.sign(t, issuer.key, googleClaims("a@x.com", true)))
	require.NoError(t, err)
	require.Equal(t, &domainoauth.UserInfo{Subject: "g-1", Email: "a@x.com", Name: "Ada", AvatarURL: "https://img", EmailVerified: true}, info)
}

func TestGoogleUserInfoRejectsUnverifiedEmail(t *testing.T) {
	issuer := newIDTokenIssuer(t)
	client := NewGoogle(Options{ClientID: "gid", JWKSURL: issuer.srv.URL})

	_, err := client.UserInfo(context.Background(), issuer.sign(t, issuer.key, googleClaims("victim@x.com", false)))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}

func TestGoogleUserInfoRejectsUntrustedIDToken(t *testing.T) {
	issuer := newIDTokenIssuer(t)
	client := NewGoogle(Options{ClientID: "gid", JWKSURL: issuer.srv.URL})
	ctx := context.Background()

	_, err := client.UserInfo(ctx, &domainoauth.TokenResponse{AccessToken: "at"})
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)

	wrongAudience := googleClaims("a@x.com", true)
	wrongAudience["aud"] = "someone-else"
	_, err = client.UserInfo(ctx, issuer.sign(t, issuer.key, wrongAudience))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)

	forger, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = client.UserInfo(ctx, issuer.sign(t, forger, googleClaims("a@x.com", true)))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}

func microsoftClaims(tid string, edov any) map[string]any {
	claims := map[string]any{
		"iss":   "https://login.microsoftonline.com/" + tid + "/v2.0",
		"aud":   "msid",
		"sub":   "pairwise-sub",
		"oid":   "ms-1",
		"tid":   tid,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"email": "ada@contoso.com",
		"name":  "Ada",
	}
	if edov != nil {
		claims["xms_edov"] = edov
	}
	return claims
}

func TestMicrosoftUserInfoRequiresVerifiedDomain(t *testing.T) {
	issuer := newIDTokenIssuer(t)
	client := NewMicrosoft(Options{ClientID: "msid", JWKSURL: issuer.srv.URL}, "")
	ctx := context.Background()

	info, err := client.UserInfo(ctx, issuer.sign(t, issuer.key, microsoftClaims("tenant-1", true)))
	require.NoError(t, err)
	require.Equal(t, "ms-1", info.Subject)
	require.Equal(t, "ada@contoso.com", info.Email)
	require.True(t, info.EmailVerified)

	_, err = client.UserInfo(ctx, issuer.sign(t, issuer.key, microsoftClaims("tenant-1", nil)))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)

	_, err = client.UserInfo(ctx, issuer.sign(t, issuer.key, microsoftClaims("tenant-1", false)))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}

func TestMicrosoftUserInfoRejectsTenantIssuerMismatch(t *testing.T) {
	issuer := newIDTokenIssuer(t)
	client := NewMicrosoft(Options{ClientID: "msid", JWKSURL: issuer.srv.URL}, "")

	claims := microsoftClaims("tenant-1", true)
	claims["tid"] = "tenant-2"
	_, err := client.UserInfo(context.Background(), issuer.sign(t, issuer.key, claims))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}

func TestMicrosoftSingleTenantChecksIssuer(t *testing.T) {
	issuer := newIDTokenIssuer(t)
	client := NewMicrosoft(Options{ClientID: "msid", JWKSURL: issuer.srv.URL}, "tenant-1")
	ctx := context.Background()

	_, err := client.UserInfo(ctx, issuer.sign(t, issuer.key, microsoftClaims("tenant-1", true)))
	require.NoError(t, err)

	_, err = client.UserInfo(ctx, issuer.sign(t, issuer.key, microsoftClaims("tenant-2", true)))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}

func TestGitHubUserInfoUsesPrimaryVerifiedEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer gho", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":42,"login":"octo","avatar_url":"https://avatars/octo"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"email":"old@x.com","primary":false,"verified":true},
			{"email":"octo@x.com","primary":true,"verified":true}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewGitHub(Options{UserInfoURL: srv.URL})
	info, err := client.UserInfo(context.Background(), &domainoauth.TokenResponse{AccessToken: "gho"})
	require.NoError(t, err)
	require.Equal(t, "42", info.Subject)
	require.Equal(t, "octo@x.com", info.Email)
	require.True(t, info.EmailVerified)
	require.Equal(t, "octo", info.Name)
	require.Equal(t, "https://avatars/octo", info.AvatarURL)
}

func TestGitHubUserInfoIgnoresUnverifiedEmails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":42,"login":"octo","email":"victim@x.com"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"email":"victim@x.com","primary":true,"verified":false}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewGitHub(Options{UserInfoURL: srv.URL}).UserInfo(context.Background(), &domainoauth.TokenResponse{AccessToken: "gho"})
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}

func TestUserInfoWithoutEmailIsRejected(t *testing.T) {
	issuer := newIDTokenIssuer(t)
	client := NewGoogle(Options{ClientID: "gid", JWKSURL: issuer.srv.URL})

	claims := googleClaims("", true)
	delete(claims, "email")
	_, err := client.UserInfo(context.Background(), issuer.sign(t, issuer.key, claims))
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}

func TestVercelAuthorizationURLAndExchange(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"vc_tok","token_type":"Bearer","installation_id":"icfg_1"}`))
	}))
	defer srv.Close()

	client := NewVercel(VercelOptions{
		Options: Options{ClientID: "oac_1", ClientSecret: "vsecret", TokenURL: srv.URL},
		Slug:    "viagen",
	})
	require.Equal(t, "https://vercel.com/integrations/viagen/new?state=abc", client.AuthorizationURL("abc", "", nil, ""))

	tok, err := client.Exchange(context.Background(), "vcode", "", "https://app/integrations/vercel/callback")
	require.NoError(t, err)
	require.Equal(t, "vc_tok", tok.AccessToken)
	require.Equal(t, "oac_1", form.Get("client_id"))
	require.Equal(t, "vsecret", form.Get("client_secret"))
	require.Equal(t, "vcode", form.Get("code"))
	require.Equal(t, "https://app/integrations/vercel/callback", form.Get("redirect_uri"))
	require.Equal(t, "authorization_code", form.Get("grant_type"))
}

func TestVercelExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewVercel(VercelOptions{Options: Options{TokenURL: srv.URL}, Slug: "viagen"})
	_, err := client.Exchange(context.Background(), "bad", "", "")
	require.Error(t, err)
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := config.Config{
		GitHub: config.OAuthClient{ClientID: "id", ClientSecret: "secret"},
		Vercel: config.VercelIntegration{Slug: "viagen", ClientID: "id", ClientSecret: "secret"},
	}
	registry := NewRegistryFromConfig(cfg, nil)

	require.Equal(t, []domainoauth.Provider{domainoauth.GitHub, domainoauth.Vercel}, registry.Providers())

	_, err := registry.Lookup(domainoauth.Google)
	require.ErrorIs(t, err, domainoauth.ErrProviderNotFound)

	client, err := registry.Lookup(domainoauth.GitHub)
	require.NoError(t, err)
	require.Equal(t, domainoauth.GitHub, client.Provider())
}
