package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/manu030/geoconsole-credits/internal/logging"
	"github.com/manu030/geoconsole-credits/internal/model"
)

// gatedOperationCost is the flat price of one credit-gated invocation.
const gatedOperationCost = 1

// WithCredit charges one credit and then runs work. The protocol is
// deliberately asymmetric:
//
//  1. Reserve: one transaction checks the balance and decrements immediately.
//     Insufficient credits fail here, before work ever runs.
//  2. Execute: work runs outside the transaction. If it fails the credit is
//     NOT refunded; the charge models "attempted", since the downstream paid
//     side effect may already have been incurred. The work's error propagates
//     unchanged; there is no retry and no second reservation.
//
// All phases log under one correlation id so the causal chain can be
// reconstructed from logs alone.
func WithCredit[T any](ctx context.Context, svc *Ledger, userID, operationLabel string, work func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	correlationID := uuid.NewString()
	log := svc.logger.Child(logging.Fields{
		"operation":       "withCredit",
		"operation_label": operationLabel,
		"user_id":         userID,
		"correlation_id":  correlationID,
	})

	log.Info("starting credit-gated operation", logging.Fields{
		"required_credits": gatedOperationCost,
	})

	remaining, err := svc.consumeTx(ctx, userID, gatedOperationCost, correlationID)
	if err != nil {
		log.Error("credit reservation failed", logging.Fields{"error": err})
		return zero, err
	}

	svc.publish(TopicConsumed, model.CreditEvent{
		UserID:        userID,
		Change:        -gatedOperationCost,
		Operation:     operationLabel,
		BalanceAfter:  remaining,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}, log)

	log.Info("credit reserved, executing operation", logging.Fields{
		"credits_consumed":  gatedOperationCost,
		"credits_remaining": remaining,
	})

	result, err := work(ctx)
	if err != nil {
		// The charge stands: callers needing refund-on-failure semantics must
		// build them on top.
		log.Warn("gated operation failed after credit consumption", logging.Fields{
			"credits_consumed": gatedOperationCost,
			"error":            err,
		})
		return zero, err
	}

	log.Info("gated operation completed", logging.Fields{
		"credits_consumed": gatedOperationCost,
	})
	return result, nil
}
