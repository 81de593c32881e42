package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manu030/geoconsole-credits/internal/logging"
	"github.com/manu030/geoconsole-credits/internal/model"
)

type balanceRow struct {
	userID  string
	credits int64
	updated time.Time
}

func (r balanceRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.userID
	*(dest[1].(*int64)) = r.credits
	*(dest[2].(*time.Time)) = r.updated
	return nil
}

type intRow struct {
	val int64
}

func (r intRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.val
	return nil
}

type fakeQuerier struct {
	row     pgx.Row
	queries int
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.queries++
	return q.row
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

type fakeCache struct {
	data    map[string]string
	setTTLs []time.Duration
	dels    []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	v, ok := c.data[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	return v, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.data[key] = string(data)
	c.setTTLs = append(c.setTTLs, ttl)
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.data, key)
	c.dels = append(c.dels, key)
	return nil
}

func newCachedRepo(q querier, c balanceCache) *CreditRepo {
	return &CreditRepo{
		db:     q,
		cache:  c,
		logger: logging.New(io.Discard, false),
	}
}

// A stale fill must never be pinned forever: a reader racing a writer's
// invalidation can re-fill the key with a pre-commit balance, so every fill
// carries a bounded TTL.
func TestGetBalanceFillsCacheWithBoundedTTL(t *testing.T) {
	q := &fakeQuerier{row: balanceRow{userID: "alice", credits: 42, updated: time.Now().UTC()}}
	c := newFakeCache()
	repo := newCachedRepo(q, c)

	bal, err := repo.GetBalance(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, int64(42), bal.Credits)
	assert.Equal(t, 1, q.queries)
	require.Len(t, c.setTTLs, 1)
	assert.Positive(t, c.setTTLs[0])
	assert.Equal(t, balanceCacheTTL, c.setTTLs[0])
}

func TestGetBalanceServesFromCache(t *testing.T) {
	c := newFakeCache()
	cached, err := json.Marshal(model.Balance{UserID: "alice", Credits: 7, LastUpdated: time.Now().UTC()})
	require.NoError(t, err)
	c.data[cacheKey("alice")] = string(cached)

	q := &fakeQuerier{row: balanceRow{}}
	repo := newCachedRepo(q, c)

	bal, err := repo.GetBalance(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, int64(7), bal.Credits)
	assert.Zero(t, q.queries)
}

// Inside a transaction the read must see tx state, never the cache, and the
// fill is skipped so a pre-commit balance cannot leak out.
func TestGetBalanceBypassesCacheInsideTx(t *testing.T) {
	c := newFakeCache()
	cached, err := json.Marshal(model.Balance{UserID: "alice", Credits: 999})
	require.NoError(t, err)
	c.data[cacheKey("alice")] = string(cached)

	q := &fakeQuerier{row: balanceRow{userID: "alice", credits: 5, updated: time.Now().UTC()}}
	repo := newCachedRepo(q, c)
	var touched []string
	repo.invalidate = &touched

	bal, err := repo.GetBalance(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.Credits)
	assert.Equal(t, 1, q.queries)
	assert.Empty(t, c.setTTLs)
}

func TestTryDecrementInvalidatesCache(t *testing.T) {
	q := &fakeQuerier{row: intRow{val: 9}}
	c := newFakeCache()
	repo := newCachedRepo(q, c)

	remaining, ok, err := repo.TryDecrement(context.Background(), "alice", 1)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), remaining)
	assert.Equal(t, []string{cacheKey("alice")}, c.dels)
}

// Tx-scoped clones defer invalidation: keys are collected, not deleted, so a
// rolled-back transaction never purges a valid cache entry.
func TestTxCloneCollectsInvalidations(t *testing.T) {
	q := &fakeQuerier{row: intRow{val: 3}}
	c := newFakeCache()
	repo := newCachedRepo(q, c)
	var touched []string
	repo.invalidate = &touched

	_, ok, err := repo.TryDecrement(context.Background(), "alice", 1)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, c.dels)
	assert.Equal(t, []string{cacheKey("alice")}, touched)
}
