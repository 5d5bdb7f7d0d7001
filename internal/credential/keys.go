// Package credential resolves logical credentials across the tenant scopes.
package credential

import (
	"strconv"
	"strings"
	"time"

	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

// Secret keys stored in the vault.
const (
	AnthropicAPIKey    = "ANTHROPIC_API_KEY"
	ClaudeAccessToken  = "CLAUDE_ACCESS_TOKEN"
	ClaudeRefreshToken = "CLAUDE_REFRESH_TOKEN"
	ClaudeTokenExpires = "CLAUDE_TOKEN_EXPIRES"
	GitHubAccessToken  = "GITHUB_ACCESS_TOKEN"
	VercelAccessToken  = "VERCEL_ACCESS_TOKEN"
)

// oauthKeys are the Claude keys derived from an OAuth grant. They are dropped
// together once CLAUDE_TOKEN_EXPIRES has passed.
var oauthKeys = []string{ClaudeAccessToken, ClaudeRefreshToken, ClaudeTokenExpires}

// Logical is a credential that may be satisfied by any of Keys, tried in order.
type Logical struct {
	Name string
	Keys []string
}

var (
	Claude = Logical{Name: "claude", Keys: []string{ClaudeAccessToken, AnthropicAPIKey}}
	GitHub = Logical{Name: "github", Keys: []string{GitHubAccessToken}}
	Vercel = Logical{Name: "vercel", Keys: []string{VercelAccessToken}}
)

var allowedKeys = map[string]struct{}{
	AnthropicAPIKey:    {},
	ClaudeAccessToken:  {},
	ClaudeRefreshToken: {},
	ClaudeTokenExpires: {},
	GitHubAccessToken:  {},
	VercelAccessToken:  {},
}

// IsAllowedKey reports whether key may be written through the credentials API.
func IsAllowedKey(key string) bool {
	_, ok := allowedKeys[key]
	return ok
}

// ProviderKey returns the vault key a connect flow for provider writes to.
func ProviderKey(provider domainoauth.Provider) (string, bool) {
	switch provider {
	case domainoauth.GitHub:
		return GitHubAccessToken, true
	case domainoauth.Vercel:
		return VercelAccessToken, true
	default:
		return "", false
	}
}

func isOAuthKey(key string) bool {
	for _, k := range oauthKeys {
		if k == key {
			return true
		}
	}
	return false
}

// tokenExpired reports whether raw is a numeric unix-millisecond timestamp
// before now. Non-numeric values never expire.
func tokenExpired(raw string, now time.Time) bool {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false
	}
	return ms < now.UnixMilli()
}

// FilterExpired returns a copy of env without the Claude OAuth keys when
// CLAUDE_TOKEN_EXPIRES is in the past.
func FilterExpired(env map[string]string, now time.Time) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	if raw, ok := out[ClaudeTokenExpires]; ok && tokenExpired(raw, now) {
		for _, k := range oauthKeys {
			delete(out, k)
		}
	}
	return out
}
