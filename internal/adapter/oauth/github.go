package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2/endpoints"

	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

// NewGitHub returns the GitHub client. GitHub OAuth apps do not take a PKCE
// challenge, so the flow relies on the state nonce alone. Options.UserInfoURL,
// when set, replaces the REST API base URL.
func NewGitHub(opts Options) *OAuth2Client {
	apiBase := strings.TrimSpace(opts.UserInfoURL)
	return newOAuth2Client(domainoauth.GitHub, endpoints.GitHub, opts, false, githubUserInfo(apiBase))
}

func githubUserInfo(apiBase string) userInfoFunc {
	return func(ctx context.Context, httpClient *http.Client, token *domainoauth.TokenResponse) (*domainoauth.UserInfo, error) {
		client := github.NewClient(httpClient).WithAuthToken(token.AccessToken)
		if apiBase != "" {
			base, err := url.Parse(strings.TrimRight(apiBase, "/") + "/")
			if err != nil {
				return nil, fmt.Errorf("parse github api url: %w", err)
			}
			client.BaseURL = base
		}

		user, _, err := client.Users.Get(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("get github user: %w", err)
		}

		// The profile email is editable display data. Only the verified
		// address list is trusted.
		email, err := primaryEmail(ctx, client)
		if err != nil {
			return nil, err
		}

		name := user.GetName()
		if name == "" {
			name = user.GetLogin()
		}
		return &domainoauth.UserInfo{
			Subject:       strconv.FormatInt(user.GetID(), 10),
			Email:         email,
			Name:          name,
			AvatarURL:     user.GetAvatarURL(),
			EmailVerified: email != "",
		}, nil
	}
}

// primaryEmail returns the primary verified address, or "" when there is none.
func primaryEmail(ctx context.Context, client *github.Client) (string, error) {
	emails, _, err := client.Users.ListEmails(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", fmt.Errorf("list github emails: %w", err)
	}
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			return e.GetEmail(), nil
		}
	}
	return "", nil
}
