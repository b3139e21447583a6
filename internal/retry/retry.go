// Package retry provides the single bounded-retry policy shared by the quote
// fetch path and the ledger store path. Eligibility is decided by the error
// classification, not by each call site.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockledger/stockledger/internal/apperr"
)

// Policy configures bounded retries with classified backoff.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // fixed delay for transient errors, backoff base otherwise
	MaxDelay    time.Duration // cap for exponential backoff

	// OnRetry, when set, is called once per re-attempt with the operation
	// name. Used to feed the retry counter.
	OnRetry func(op string)
}

// DefaultQuote is the retry policy for upstream quote fetches.
func DefaultQuote() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 1 * time.Second, MaxDelay: 10 * time.Second}
}

// DefaultStore is the retry policy for ledger store operations.
func DefaultStore() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Delay returns the wait before the next attempt, given the error that failed
// attempt n (1-based). Rate-limited and contention failures back off
// exponentially, plain transient failures wait a fixed short delay.
func (p Policy) Delay(kind apperr.Kind, attempt int) time.Duration {
	switch kind {
	case apperr.KindRateLimited, apperr.KindFailedPrecondition:
		d := p.BaseDelay << uint(attempt-1)
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
		return d
	default:
		return p.BaseDelay
	}
}

// Do runs fn up to MaxAttempts times. Non-retryable errors surface
// immediately after a single attempt. On exhaustion the last classified
// error is wrapped as KindExhausted so callers can distinguish "still
// retrying" from "gave up".
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last *apperr.Error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		last = apperr.Classify(err)
		if !apperr.IsRetryable(last) {
			return last
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(last.Kind, attempt)
		if p.OnRetry != nil {
			p.OnRetry(op)
		}
		log.Warn().
			Str("op", op).
			Str("kind", last.Kind.String()).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(last).
			Msg("retrying after failure")

		select {
		case <-ctx.Done():
			return apperr.Classify(ctx.Err())
		case <-time.After(delay):
		}
	}

	return apperr.Wrap(apperr.KindExhausted, last.Code, last.Message, last)
}
