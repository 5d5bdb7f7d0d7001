package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain/oauth"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/repository"
)

const transactionKeyPrefix = "oauth:tx:"

// RedisTransactionStore implements repository.TransactionStore backed by Redis.
type RedisTransactionStore struct {
	client redis.UniversalClient
}

var _ repository.TransactionStore = (*RedisTransactionStore)(nil)

// NewRedisTransactionStore constructs a Redis-backed transaction store.
func NewRedisTransactionStore(client redis.UniversalClient) *RedisTransactionStore {
	return &RedisTransactionStore{client: client}
}

// Save stores the encoded transaction under its state with ttl.
func (s *RedisTransactionStore) Save(ctx context.Context, tx oauth.Transaction, ttl time.Duration) error {
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	if err := s.client.Set(ctx, transactionKey(tx.State), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist transaction: %w", err)
	}
	return nil
}

// Take loads and deletes the transaction in one round trip so a state can
// be redeemed at most once.
func (s *RedisTransactionStore) Take(ctx context.Context, state string) (*oauth.Transaction, error) {
	raw, err := s.client.GetDel(ctx, transactionKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oauth.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("take transaction: %w", err)
	}
	var tx oauth.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &tx, nil
}

func transactionKey(state string) string {
	return transactionKeyPrefix + state
}

// MemoryTransactionStore keeps transactions in process. It is used when Redis
// is not configured; transactions do not survive a restart and are not shared
// between replicas.
type MemoryTransactionStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	tx        oauth.Transaction
	expiresAt time.Time
}

var _ repository.TransactionStore = (*MemoryTransactionStore)(nil)

// NewMemoryTransactionStore returns an empty in-memory store.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryTransactionStore) Save(_ context.Context, tx oauth.Transaction, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.reap(now)
	s.entries[tx.State] = memoryEntry{tx: tx, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryTransactionStore) Take(_ context.Context, state string) (*oauth.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return nil, oauth.ErrTransactionNotFound
	}
	delete(s.entries, state)
	if !s.now().Before(entry.expiresAt) {
		return nil, oauth.ErrTransactionNotFound
	}
	tx := entry.tx
	return &tx, nil
}

// Len reports the number of stored transactions, expired ones included.
func (s *MemoryTransactionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryTransactionStore) reap(now time.Time) {
	for state, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}
