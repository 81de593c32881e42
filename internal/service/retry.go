package service

import (
	"context"

	"github.com/sethvargo/go-retry"

	"github.com/manu030/geoconsole-credits/internal/errs"
)

// withRetry runs op with exponential backoff (baseDelay * 2^(attempt-1)) up
// to the policy's attempt limit. Kinds that retrying cannot change, such as
// validation, authorization, not-found and insufficient-credits, propagate on
// first occurrence.
func (s *Ledger) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(s.retry.MaxAttempts-1), retry.NewExponential(s.retry.BaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errs.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
