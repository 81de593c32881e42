// Package service implements the credit ledger operations: balance queries,
// atomic consumption, admin grants, and the credit-gated execution wrapper.
package service

import (
	"context"
	"time"

	"github.com/manu030/geoconsole-credits/internal/logging"
	"github.com/manu030/geoconsole-credits/internal/model"
	"github.com/manu030/geoconsole-credits/internal/repository"
)

// CreditService defines the operations the dispatch layers (HTTP, NATS
// worker) depend on, rather than on the concrete implementation.
type CreditService interface {
	GetUserCredits(ctx context.Context, req model.GetCreditsRequest, caller model.Caller) (*model.GetCreditsResult, error)
	ConsumeCredits(ctx context.Context, req model.ConsumeRequest, caller model.Caller) (*model.ConsumeResult, error)
	GrantCredits(ctx context.Context, req model.GrantRequest, caller model.Caller) (*model.GrantResult, error)
}

// Store is the persistence surface the ledger needs: the accessor operations
// plus the ability to run them inside one transaction.
type Store interface {
	repository.Accessor
	RunInTx(ctx context.Context, fn func(store repository.Accessor) error) error
}

// Publisher pushes balance-change events to the bus. Nil-able; when no bus is
// configured events are simply not published.
type Publisher interface {
	Publish(topic string, ev model.CreditEvent) error
}

const (
	TopicConsumed = "credits.consumed"
	TopicGranted  = "credits.granted"
)

// RetryPolicy bounds retries of transient store failures. Delay grows as
// baseDelay * 2^(attempt-1).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type Ledger struct {
	store  Store
	bus    Publisher
	logger *logging.Logger
	retry  RetryPolicy
}

var _ CreditService = (*Ledger)(nil)

func New(store Store, bus Publisher, logger *logging.Logger, retry RetryPolicy) *Ledger {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Ledger{
		store:  store,
		bus:    bus,
		logger: logger.Child(logging.Fields{"service": "credit"}),
		retry:  retry,
	}
}
