// Package retry implements the exponential-backoff policy described in
// spec.md §5/§7: retryable KV errors (conflict, too-old read version)
// are retried at the transaction boundary; every other error
// propagates immediately. The teacher doesn't need this (LMDB/Bolt's
// single-writer model has no optimistic-concurrency conflict class),
// so the shape here is taken straight from spec.md's prose rather than
// adapted from a teacher file.
package retry

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ledgerwatch/recordlayer/recorderr"
)

// Policy configures the backoff. BaseDelay*2^attempt, capped at
// MaxAttempts tries total (including the first).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches spec.md §5: 100ms * 2^attempt, 3 attempts.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}

// Do runs fn, retrying with exponential backoff while the returned
// error is retryable per recorderr.Retryable. Validation/not-found
// errors and any other non-retryable error are returned immediately,
// per spec.md §7.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := policy.BaseDelay << uint(attempt-1)
			log.Warn("Retrying transaction", "attempt", attempt+1, "of", policy.MaxAttempts, "delay", delay, "err", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !recorderr.Retryable(lastErr) {
			return lastErr
		}
	}
	log.Warn("Transaction failed after retries exhausted", "attempts", policy.MaxAttempts, "err", lastErr)
	return lastErr
}
