//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
)

func TestRedisTransactionStoreTakeIsSingleUse(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Fatal("REDIS_ADDR must be set for integration tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisTransactionStore(client)
	ctx := context.Background()
	tx := oauth.Transaction{
		State:     "redis-state",
		Provider:  oauth.Vercel,
		Purpose:   oauth.PurposeConnect,
		OrgID:     "org",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, store.Save(ctx, tx, time.Minute))

	ttl, err := client.TTL(ctx, transactionKey(tx.State)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	got, err := store.Take(ctx, tx.State)
	require.NoError(t, err)
	require.Equal(t, tx.OrgID, got.OrgID)
	require.Equal(t, tx.Provider, got.Provider)

	_, err = store.Take(ctx, tx.State)
	require.ErrorIs(t, err, oauth.ErrTransactionNotFound)
}
