package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/manu030/geoconsole-credits/internal/errs"
	"github.com/manu030/geoconsole-credits/internal/logging"
	"github.com/manu030/geoconsole-credits/internal/model"
	"github.com/manu030/geoconsole-credits/internal/repository"
)

const maxConsumeAmount = 100

var (
	userIDPattern    = regexp.MustCompile(`^[A-Za-z0-9-]{1,36}$`)
	operationPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,200}$`)
)

// GetUserCredits returns the target user's balance. The target defaults to the
// caller; viewing another user's balance requires admin privilege.
func (s *Ledger) GetUserCredits(ctx context.Context, req model.GetCreditsRequest, caller model.Caller) (*model.GetCreditsResult, error) {
	correlationID := uuid.NewString()
	log := s.logger.Child(logging.Fields{
		"operation":      "getUserCredits",
		"correlation_id": correlationID,
	})

	target, err := s.resolveTarget(req.UserID, caller, "view")
	if err != nil {
		log.Error("credit lookup rejected", logging.Fields{"error": err})
		return nil, err
	}

	bal, err := s.store.GetBalance(ctx, target)
	if err != nil {
		log.Error("failed to retrieve user credits", logging.Fields{
			"user_id": target,
			"error":   err,
		})
		return nil, err
	}

	log.Info("credits retrieved", logging.Fields{
		"user_id": target,
		"credits": bal.Credits,
	})
	return &model.GetCreditsResult{
		UserID:      bal.UserID,
		Credits:     bal.Credits,
		LastUpdated: bal.LastUpdated,
	}, nil
}

// ConsumeCredits atomically deducts req.Amount from the target's balance.
// Validation and authorization run before any store access; the load, the
// sufficiency check and the conditional decrement share one transaction, so
// either the whole deduction commits or nothing does.
func (s *Ledger) ConsumeCredits(ctx context.Context, req model.ConsumeRequest, caller model.Caller) (*model.ConsumeResult, error) {
	if req.Amount <= 0 {
		return nil, errs.Validation("amount must be a positive integer")
	}
	if req.Amount > maxConsumeAmount {
		return nil, errs.Validation(fmt.Sprintf("amount must not exceed %d per call", maxConsumeAmount))
	}
	if !operationPattern.MatchString(req.Operation) {
		return nil, errs.Validation("operation label must be 1-200 characters of [A-Za-z0-9_-]")
	}

	correlationID := uuid.NewString()
	log := s.logger.Child(logging.Fields{
		"operation":      "consumeCredits",
		"correlation_id": correlationID,
	})

	target, err := s.resolveTarget(req.UserID, caller, "consume")
	if err != nil {
		log.Error("credit consumption rejected", logging.Fields{"error": err})
		return nil, err
	}

	remaining, err := s.consumeTx(ctx, target, req.Amount, correlationID)
	if err != nil {
		log.Error("failed to consume credits", logging.Fields{
			"user_id":          target,
			"requested_amount": req.Amount,
			"operation_label":  req.Operation,
			"error":            err,
		})
		return nil, err
	}

	s.publish(TopicConsumed, model.CreditEvent{
		UserID:        target,
		Change:        -req.Amount,
		Operation:     req.Operation,
		BalanceAfter:  remaining,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}, log)

	log.Info("credits consumed", logging.Fields{
		"user_id":           target,
		"credits_consumed":  req.Amount,
		"credits_remaining": remaining,
		"operation_label":   req.Operation,
	})
	return &model.ConsumeResult{
		UserID:           target,
		CreditsRemaining: remaining,
		CreditsConsumed:  req.Amount,
		Operation:        req.Operation,
	}, nil
}

// GrantCredits adds credits to a user's balance. Admin only.
func (s *Ledger) GrantCredits(ctx context.Context, req model.GrantRequest, caller model.Caller) (*model.GrantResult, error) {
	if req.Amount <= 0 {
		return nil, errs.Validation("amount must be a positive integer")
	}
	if !userIDPattern.MatchString(req.UserID) {
		return nil, errs.Validation("user id must be 1-36 characters of [A-Za-z0-9-]")
	}

	correlationID := uuid.NewString()
	log := s.logger.Child(logging.Fields{
		"operation":      "grantCredits",
		"correlation_id": correlationID,
	})

	if caller.ID == "" {
		err := errs.Unauthenticated("only authenticated users can grant credits")
		log.Error("credit grant rejected", logging.Fields{"error": err})
		return nil, err
	}
	if !caller.IsAdmin {
		err := errs.Forbidden("granting credits requires administrative privilege")
		log.Error("credit grant rejected", logging.Fields{"error": err})
		return nil, err
	}

	var balance int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		balance, err = s.store.Grant(ctx, req.UserID, req.Amount)
		return err
	})
	if err != nil {
		log.Error("failed to grant credits", logging.Fields{
			"user_id": req.UserID,
			"amount":  req.Amount,
			"error":   err,
		})
		return nil, err
	}

	operation := req.Reason
	if operation == "" {
		operation = "grant"
	}
	s.publish(TopicGranted, model.CreditEvent{
		UserID:        req.UserID,
		Change:        req.Amount,
		Operation:     operation,
		BalanceAfter:  balance,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}, log)

	log.Info("credits granted", logging.Fields{
		"user_id": req.UserID,
		"amount":  req.Amount,
		"credits": balance,
	})
	return &model.GrantResult{
		UserID:         req.UserID,
		Credits:        balance,
		CreditsGranted: req.Amount,
	}, nil
}

// consumeTx is the shared reservation path used by ConsumeCredits and
// WithCredit: one transaction loading the balance, distinguishing not-found
// from insufficient, and applying the conditional decrement. Transient store
// failures are retried; InsufficientCredits and the rest of the non-retryable
// kinds surface immediately.
func (s *Ledger) consumeTx(ctx context.Context, userID string, amount int64, correlationID string) (int64, error) {
	var remaining int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.store.RunInTx(ctx, func(store repository.Accessor) error {
			bal, err := store.GetBalance(ctx, userID)
			if err != nil {
				return err
			}
			if bal.Credits < amount {
				return errs.InsufficientCredits(amount, bal.Credits, correlationID)
			}
			after, ok, err := store.TryDecrement(ctx, userID, amount)
			if err != nil {
				return err
			}
			if !ok {
				// A concurrent consumer won the race between the load and the
				// conditional update.
				return errs.InsufficientCredits(amount, bal.Credits, correlationID)
			}
			remaining = after
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *Ledger) resolveTarget(requested string, caller model.Caller, verb string) (string, error) {
	if requested != "" && !userIDPattern.MatchString(requested) {
		return "", errs.Validation("user id must be 1-36 characters of [A-Za-z0-9-]")
	}
	if caller.ID == "" {
		return "", errs.Unauthenticated(fmt.Sprintf("only authenticated users can %s credits", verb))
	}
	target := requested
	if target == "" {
		target = caller.ID
	}
	if target != caller.ID && !caller.IsAdmin {
		return "", errs.Forbidden(fmt.Sprintf("you can only %s your own credits", verb))
	}
	return target, nil
}

func (s *Ledger) publish(topic string, ev model.CreditEvent, log *logging.Logger) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(topic, ev); err != nil {
		// The ledger write already committed; a lost event only thins the
		// audit trail, so it is logged and not surfaced to the caller.
		log.Warn("failed to publish credit event", logging.Fields{
			"topic": topic,
			"error": err,
		})
	}
}
