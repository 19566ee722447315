package common

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy builds a policy from the [retry] config section
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	p := &RetryPolicy{
		MaxAttempts:       config.MaxAttempts,
		InitialBackoff:    ParseDurationOr(config.InitialBackoff, 500*time.Millisecond),
		MaxBackoff:        ParseDurationOr(config.MaxBackoff, 10*time.Second),
		BackoffMultiplier: config.BackoffMultiplier,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 2.0
	}
	return p
}

// CalculateBackoff calculates the backoff duration with exponential backoff and jitter
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	// Add jitter (±25%)
	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) || attempt == p.MaxAttempts-1 {
			break
		}

		backoff := p.CalculateBackoff(attempt)
		logger.Debug().
			Int("attempt", attempt+1).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	if p.MaxAttempts > 1 {
		logger.Debug().
			Int("max_attempts", p.MaxAttempts).
			Err(lastErr).
			Msg("Retry attempts exhausted")
	}
	return lastErr
}

// IsRetryable reports whether err is a transient upstream failure
func IsRetryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}
	return false
}
