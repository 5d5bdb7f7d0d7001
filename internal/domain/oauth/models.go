package oauth

import (
	"strings"
	"time"
)

// Provider is the closed set of OAuth providers the dashboard talks to.
type Provider string

const (
	Google    Provider = "google"
	GitHub    Provider = "github"
	Microsoft Provider = "microsoft"
	// Vercel is only used for integration connect flows, never for login.
	Vercel Provider = "vercel"
)

// ParseProvider maps a route parameter onto a Provider.
func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case Google:
		return Google, true
	case GitHub:
		return GitHub, true
	case Microsoft:
		return Microsoft, true
	case Vercel:
		return Vercel, true
	default:
		return "", false
	}
}

// SupportsLogin reports whether the provider may establish a session.
func (p Provider) SupportsLogin() bool {
	return p == Google || p == GitHub || p == Microsoft
}

// SupportsConnect reports whether the provider can attach an integration credential.
func (p Provider) SupportsConnect() bool {
	return p == GitHub || p == Vercel
}

// Purpose distinguishes a login transaction from an integration connect.
type Purpose string

const (
	PurposeLogin   Purpose = "login"
	PurposeConnect Purpose = "connect"
)

// Transaction is the server-side record of one in-flight authorization,
// keyed by its state nonce and consumed exactly once on callback.
type Transaction struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	Purpose      Purpose   `json:"purpose"`
	Provider     Provider  `json:"provider"`
	UserID       string    `json:"user_id,omitempty"`
	OrgID        string    `json:"org_id,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	ReturnTo     string    `json:"return_to,omitempty"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenResponse models the response from a provider token endpoint.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
	// IDToken is the raw OpenID Connect id_token, when the provider issues one.
	IDToken string
}

// UserInfo represents the normalized profile returned by a provider.
type UserInfo struct {
	Subject   string
	Email     string
	Name      string
	AvatarURL string
	// EmailVerified is set only when the provider vouches for Email.
	EmailVerified bool
}
