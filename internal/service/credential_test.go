package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/credential"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	domainoauth "github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
)

func TestSetCredentialScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.auth(t, f.admin, f.orgA.ID)
	member := f.auth(t, f.member, f.orgA.ID)

	require.NoError(t, f.credentials.SetCredential(ctx, member, scope.LevelUser, "", credential.AnthropicAPIKey, "sk-user"))
	v, ok := f.secrets.value(scope.MustUser(f.member.ID), credential.AnthropicAPIKey)
	require.True(t, ok)
	require.Equal(t, "sk-user", v)

	err := f.credentials.SetCredential(ctx, member, scope.LevelOrg, "", credential.AnthropicAPIKey, "sk-org")
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.credentials.SetCredential(ctx, admin, scope.LevelOrg, "", credential.AnthropicAPIKey, "sk-org"))
	v, ok = f.secrets.value(scope.MustOrg(f.orgA.ID), credential.AnthropicAPIKey)
	require.True(t, ok)
	require.Equal(t, "sk-org", v)

	err = f.credentials.SetCredential(ctx, admin, scope.LevelOrg, "", "AWS_SECRET", "x")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	err = f.credentials.SetCredential(ctx, admin, scope.LevelOrg, "", credential.AnthropicAPIKey, " ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSetCredentialRejectsForeignProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.auth(t, f.admin, f.orgA.ID)
	ownerB := f.auth(t, f.outsider, f.orgB.ID)

	foreign, err := f.projects.CreateProject(ctx, ownerB, ProjectInput{Name: "globex"})
	require.NoError(t, err)

	err = f.credentials.SetCredential(ctx, admin, scope.LevelProject, foreign.ID, credential.GitHubAccessToken, "gho_x")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, ok := f.secrets.value(scope.MustProject(f.orgB.ID, foreign.ID), credential.GitHubAccessToken)
	require.False(t, ok)
	_, ok = f.secrets.value(scope.MustProject(f.orgA.ID, foreign.ID), credential.GitHubAccessToken)
	require.False(t, ok)
}

func TestDeleteCredentialIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.auth(t, f.admin, f.orgA.ID)

	require.NoError(t, f.credentials.SetCredential(ctx, admin, scope.LevelOrg, "", credential.VercelAccessToken, "vc_1"))
	require.NoError(t, f.credentials.DeleteCredential(ctx, admin, scope.LevelOrg, "", credential.VercelAccessToken))
	require.NoError(t, f.credentials.DeleteCredential(ctx, admin, scope.LevelOrg, "", credential.VercelAccessToken))
	_, ok := f.secrets.value(scope.MustOrg(f.orgA.ID), credential.VercelAccessToken)
	require.False(t, ok)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.auth(t, f.admin, f.orgA.ID)
	member := f.auth(t, f.member, f.orgA.ID)

	require.NoError(t, f.credentials.SetCredential(ctx, admin, scope.LevelOrg, "", credential.GitHubAccessToken, "gho_1"))

	require.ErrorIs(t, f.credentials.Disconnect(ctx, member, domainoauth.GitHub, scope.LevelOrg, ""), domain.ErrForbidden)
	require.ErrorIs(t, f.credentials.Disconnect(ctx, admin, domainoauth.Google, scope.LevelOrg, ""), domainoauth.ErrProviderNotFound)
	require.ErrorIs(t, f.credentials.Disconnect(ctx, admin, domainoauth.GitHub, scope.LevelUser, ""), domain.ErrInvalidInput)

	require.NoError(t, f.credentials.Disconnect(ctx, admin, domainoauth.GitHub, scope.LevelOrg, ""))
	_, ok := f.secrets.value(scope.MustOrg(f.orgA.ID), credential.GitHubAccessToken)
	require.False(t, ok)
}

func TestCredentialStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.auth(t, f.admin, f.orgA.ID)

	project, err := f.projects.CreateProject(ctx, admin, ProjectInput{Name: "web"})
	require.NoError(t, err)
	require.NoError(t, f.credentials.SetCredential(ctx, admin, scope.LevelOrg, "", credential.GitHubAccessToken, "gho_org"))
	require.NoError(t, f.credentials.SetCredential(ctx, admin, scope.LevelProject, project.ID, credential.VercelAccessToken, "vc_proj"))
	require.NoError(t, f.credentials.SetCredential(ctx, admin, scope.LevelUser, "", credential.AnthropicAPIKey, "sk-user"))

	status, err := f.credentials.Status(ctx, admin, project.ID)
	require.NoError(t, err)
	require.True(t, status.GitHub.Connected)
	require.Equal(t, "org", status.GitHub.Source)
	require.True(t, status.Vercel.Connected)
	require.Equal(t, "project", status.Vercel.Source)
	require.True(t, status.Claude.Connected)
	require.Equal(t, "user", status.Claude.Source)

	_, err = f.credentials.Status(ctx, admin, "not-a-uuid")
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.secrets.failGet = true
	status, err = f.credentials.Status(ctx, admin, "")
	require.NoError(t, err)
	require.False(t, status.GitHub.Connected)
	require.False(t, status.Claude.Connected)
}
