package auth

import domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"

// CookieNames names the cookies one flow touches. State carries the nonce
// that binds the browser to the server-side transaction. Legacy names are
// per-field cookies older deployments set; they are only ever cleared.
type CookieNames struct {
	State  string
	Legacy []string
}

// All returns State followed by Legacy.
func (c CookieNames) All() []string {
	out := make([]string, 0, len(c.Legacy)+1)
	if c.State != "" {
		out = append(out, c.State)
	}
	return append(out, c.Legacy...)
}

// Cookies returns the cookie set for provider and purpose. Each connect flow
// has its own state cookie so concurrent flows in separate tabs don't clobber
// each other.
func Cookies(provider domainoauth.Provider, purpose domainoauth.Purpose) CookieNames {
	if purpose == domainoauth.PurposeConnect {
		switch provider {
		case domainoauth.GitHub:
			return CookieNames{State: "github-oauth-state", Legacy: []string{"github-connect-org", "connect-return-to"}}
		case domainoauth.Vercel:
			return CookieNames{State: "vercel-oauth-state", Legacy: []string{"vercel-connect-org", "vercel-connect-return-to"}}
		}
	}
	return CookieNames{State: "oauth-state", Legacy: []string{"oauth-verifier"}}
}
