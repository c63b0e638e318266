package app

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"housing_reviews/internal/adapters/observability"
	"housing_reviews/internal/domain"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 8, BaseDelay: 5 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// updateWithRetry runs fn in a fresh Update transaction per attempt, so every
// retry re-reads state instead of replaying a stale decision. Only
// ErrConflict and ErrStoreUnavailable are retried; both share one budget.
func updateWithRetry(ctx context.Context, store domain.Store, p RetryPolicy, op string, fn func(tx domain.Tx) error) error {
	p = p.normalized()
	var last error
	for i := 0; i < p.MaxAttempts; i++ {
		err := store.Update(ctx, fn)
		if err == nil {
			observability.ObserveTx(op, "committed")
			return nil
		}
		if !domain.Retryable(err) {
			observability.ObserveTx(op, "failed")
			return err
		}
		observability.ObserveTx(op, "retried")
		last = err
		if i < p.MaxAttempts-1 && !sleepCtx(ctx, p.backoff(i)) {
			return ctx.Err()
		}
	}
	observability.ObserveTx(op, "exhausted")
	log.Warn().Str("op", op).Int("attempts", p.MaxAttempts).Err(last).Msg("transaction retries exhausted")
	if errors.Is(last, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s after %d attempts: %w", op, p.MaxAttempts, last)
	}
	return fmt.Errorf("%s after %d attempts: %w", op, p.MaxAttempts, domain.ErrConflict)
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff doubles from BaseDelay per attempt, capped at MaxDelay, with up to
// +100% jitter so colliding writers spread out.
func (p RetryPolicy) backoff(i int) time.Duration {
	base := p.BaseDelay << uint(i)
	if base <= 0 || base > p.MaxDelay {
		base = p.MaxDelay
	}
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(f*float64(base))
}
