package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/manu030/geoconsole-credits/internal/errs"
	"github.com/manu030/geoconsole-credits/internal/logging"
	"github.com/manu030/geoconsole-credits/internal/metrics"
	"github.com/manu030/geoconsole-credits/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same accessor
// code runs inside and outside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// balanceCacheTTL bounds how long a stale fill can live. A reader racing a
// writer's invalidation can re-fill the key with a pre-commit balance; the TTL
// caps that window even when the user sees no further writes.
const balanceCacheTTL = 30 * time.Second

// balanceCache is the advisory read cache. It never carries atomicity; every
// miss or failure just falls through to the store.
type balanceCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type redisCache struct {
	rdb *redis.Client
}

func (c redisCache) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c redisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c redisCache) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// CreditRepo is the single source of truth for user credit balances. The
// balance is only ever mutated through single conditional statements; Redis is
// an advisory read cache and never carries atomicity.
type CreditRepo struct {
	db     querier
	pool   *pgxpool.Pool // nil on tx-scoped clones
	cache  balanceCache  // nil when the cache is disabled
	logger *logging.Logger
	m      *metrics.Metrics

	creditOpTimeout time.Duration
	queryTimeout    time.Duration
	slowQuery       time.Duration

	// tx-scoped clones collect cache keys to invalidate after commit.
	invalidate *[]string
}

type Options struct {
	CreditOpTimeout    time.Duration
	QueryTimeout       time.Duration
	SlowQueryThreshold time.Duration
}

func New(pool *pgxpool.Pool, rdb *redis.Client, logger *logging.Logger, m *metrics.Metrics, opts Options) *CreditRepo {
	var cache balanceCache
	if rdb != nil {
		cache = redisCache{rdb: rdb}
	}
	return &CreditRepo{
		db:              pool,
		pool:            pool,
		cache:           cache,
		logger:          logger.Child(logging.Fields{"component": "repository"}),
		m:               m,
		creditOpTimeout: opts.CreditOpTimeout,
		queryTimeout:    opts.QueryTimeout,
		slowQuery:       opts.SlowQueryThreshold,
	}
}

// queryCtx bounds a standalone statement by the query timeout. Inside a
// transaction the whole unit is already bounded by the credit-op timeout, so
// the statement context is left alone.
func (r *CreditRepo) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.invalidate != nil || r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

func cacheKey(userID string) string {
	return "credits:" + userID
}

// GetBalance returns the user's credit record, serving from the Redis cache
// when possible and filling it on a miss.
func (r *CreditRepo) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	// Inside a transaction the cache is bypassed so the read sees tx state.
	if r.cache != nil && r.invalidate == nil {
		if cached, err := r.cache.Get(ctx, cacheKey(userID)); err == nil {
			var bal model.Balance
			if err := json.Unmarshal([]byte(cached), &bal); err == nil {
				return bal, nil
			}
		}
	}

	defer r.observe("get_balance", time.Now())
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	var bal model.Balance
	err := r.db.QueryRow(qctx,
		`SELECT id, credits, updated_at FROM users WHERE id = $1`,
		userID,
	).Scan(&bal.UserID, &bal.Credits, &bal.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Balance{}, errs.NotFound(fmt.Sprintf("user %s not found", userID))
	}
	if err != nil {
		return model.Balance{}, errs.ClassifyStore("get balance", err)
	}

	if r.cache != nil && r.invalidate == nil {
		if data, err := json.Marshal(bal); err == nil {
			_ = r.cache.Set(ctx, cacheKey(userID), data, balanceCacheTTL)
		}
	}
	return bal, nil
}

// TryDecrement applies the decrement only if credits >= amount at the moment
// of the update. The predicate and the decrement are one statement; this is
// the sole guarantee that the balance never goes negative under concurrency.
// ok=false means no row matched the predicate.
func (r *CreditRepo) TryDecrement(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	defer r.observe("try_decrement", time.Now())
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	var remaining int64
	err := r.db.QueryRow(qctx,
		`UPDATE users SET credits = credits - $2, updated_at = now()
		 WHERE id = $1 AND credits >= $2
		 RETURNING credits`,
		userID, amount,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.ClassifyStore("decrement credits", err)
	}
	r.invalidateUser(ctx, userID)
	return remaining, true, nil
}

// Grant atomically adds amount to the user's balance.
func (r *CreditRepo) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	defer r.observe("grant", time.Now())
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	var balance int64
	err := r.db.QueryRow(qctx,
		`UPDATE users SET credits = credits + $2, updated_at = now()
		 WHERE id = $1
		 RETURNING credits`,
		userID, amount,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errs.NotFound(fmt.Sprintf("user %s not found", userID))
	}
	if err != nil {
		return 0, errs.ClassifyStore("grant credits", err)
	}
	r.invalidateUser(ctx, userID)
	return balance, nil
}

// RunInTx runs fn against a transaction-scoped accessor under ReadCommitted
// isolation and the credit-operation timeout. Any error rolls the whole
// transaction back, so a partial decrement is never observable. Cache keys
// touched inside the transaction are invalidated only after commit.
func (r *CreditRepo) RunInTx(ctx context.Context, fn func(store Accessor) error) error {
	if r.pool == nil {
		return errs.New(errs.KindUnexpected, "nested transactions are not supported")
	}
	ctx, cancel := context.WithTimeout(ctx, r.creditOpTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errs.ClassifyStore("begin transaction", err)
	}

	var touched []string
	clone := *r
	clone.db = tx
	clone.pool = nil
	clone.invalidate = &touched

	if err := fn(&clone); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.ClassifyStore("commit transaction", err)
	}
	for _, key := range touched {
		if r.cache != nil {
			_ = r.cache.Del(context.WithoutCancel(ctx), key)
		}
	}
	return nil
}

// RecordConsumption persists a balance-change event for the audit trail. The
// insert is idempotent per correlation id so redelivered bus messages are
// harmless.
func (r *CreditRepo) RecordConsumption(ctx context.Context, ev model.CreditEvent) error {
	defer r.observe("record_consumption", time.Now())
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	_, err := r.db.Exec(qctx,
		`INSERT INTO credit_events (user_id, change, operation, balance_after, correlation_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (correlation_id) DO NOTHING`,
		ev.UserID, ev.Change, ev.Operation, ev.BalanceAfter, ev.CorrelationID, ev.CreatedAt,
	)
	if err != nil {
		return errs.ClassifyStore("record consumption", err)
	}
	return nil
}

func (r *CreditRepo) invalidateUser(ctx context.Context, userID string) {
	key := cacheKey(userID)
	if r.invalidate != nil {
		*r.invalidate = append(*r.invalidate, key)
		return
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, key)
	}
}

func (r *CreditRepo) observe(name string, start time.Time) {
	d := time.Since(start)
	if r.m != nil {
		r.m.ObserveQuery(name, d)
	}
	if r.slowQuery > 0 && d > r.slowQuery {
		if r.m != nil {
			r.m.RecordSlowQuery(name)
		}
		r.logger.Warn("slow query", logging.Fields{
			"query":       name,
			"duration_ms": d.Milliseconds(),
		})
	}
}

// Accessor is the store surface the ledger operations consume. CreditRepo
// implements it both pool-backed and tx-backed.
type Accessor interface {
	GetBalance(ctx context.Context, userID string) (model.Balance, error)
	TryDecrement(ctx context.Context, userID string, amount int64) (remaining int64, ok bool, err error)
	Grant(ctx context.Context, userID string, amount int64) (int64, error)
}
