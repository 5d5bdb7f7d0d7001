package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/viagen")
	t.Setenv("VAULT_CLIENT_ID", "vault-id")
	t.Setenv("VAULT_CLIENT_SECRET", "vault-secret")
	t.Setenv("VAULT_WORKSPACE_ID", "ws-1")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	require.Equal(t, 90*24*time.Hour, cfg.APITokenTTL)
	require.Equal(t, 600*time.Second, cfg.TransactionTTL)
	require.False(t, cfg.GitHub.Configured())
	require.False(t, cfg.Vercel.Configured())
}

func TestLoadClampsTransactionTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("OAUTH_TRANSACTION_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 600*time.Second, cfg.TransactionTTL)
}

func TestLoadRequiresVaultCredentials(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/viagen")
	t.Setenv("VAULT_CLIENT_ID", "")
	t.Setenv("VAULT_CLIENT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresDatabaseOutsideDevelopment(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	t.Setenv("APP_ENV", "development")
	_, err := Load()
	require.NoError(t, err)

	t.Setenv("APP_ENV", "production")
	_, err = Load()
	require.Error(t, err)
}

func TestSecureOutsideDevelopment(t *testing.T) {
	require.False(t, Config{Environment: "development"}.Secure())
	require.True(t, Config{Environment: "production"}.Secure())
}
