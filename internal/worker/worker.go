// Package worker drains credit events off the bus into the persistent audit
// trail. Persistence is asynchronous and advisory; the ledger itself committed
// before the event was ever published.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/manu030/geoconsole-credits/internal/logging"
	"github.com/manu030/geoconsole-credits/internal/model"
	"github.com/manu030/geoconsole-credits/internal/service"
)

// EventStore persists credit events idempotently (per correlation id), so a
// redelivered message is a no-op.
type EventStore interface {
	RecordConsumption(ctx context.Context, ev model.CreditEvent) error
}

type AuditWorker struct {
	store  EventStore
	nc     *nats.Conn
	logger *logging.Logger
	subs   []*nats.Subscription
}

func NewAuditWorker(store EventStore, nc *nats.Conn, logger *logging.Logger) *AuditWorker {
	return &AuditWorker{
		store:  store,
		nc:     nc,
		logger: logger.Child(logging.Fields{"component": "audit_worker"}),
	}
}

// persistTimeout bounds a single event persistence.
const persistTimeout = 5 * time.Second

// Start subscribes to the credit event topics and blocks until ctx is
// cancelled. QueueSubscribe ensures each event is handled by exactly one
// worker in the group even when several replicas run.
func (w *AuditWorker) Start(ctx context.Context) error {
	for _, topic := range []string{service.TopicConsumed, service.TopicGranted} {
		sub, err := w.nc.QueueSubscribe(topic, "credit_audit", func(m *nats.Msg) {
			w.handle(m.Data)
		})
		if err != nil {
			return err
		}
		w.subs = append(w.subs, sub)
	}

	w.logger.Info("credit audit worker is running", nil)

	<-ctx.Done()
	for _, s := range w.subs {
		_ = s.Drain()
	}
	return nil
}

// handle persists one event. The context is detached from the worker's
// lifetime: messages still arrive during the post-shutdown Drain window, and
// they must be persisted, not dropped against a cancelled context.
func (w *AuditWorker) handle(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var ev model.CreditEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.Error("failed to unmarshal credit event", logging.Fields{"error": err})
		return
	}
	if err := w.store.RecordConsumption(ctx, ev); err != nil {
		w.logger.Error("failed to persist credit event", logging.Fields{
			"user_id":        ev.UserID,
			"correlation_id": ev.CorrelationID,
			"error":          err,
		})
		return
	}
	w.logger.Debug("credit event persisted", logging.Fields{
		"user_id":        ev.UserID,
		"correlation_id": ev.CorrelationID,
	})
}

func (w *AuditWorker) Stop(ctx context.Context) error {
	for _, s := range w.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
