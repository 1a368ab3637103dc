package channel

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// retryConfig controls send retries with exponential backoff and jitter.
type retryConfig struct {
	// maxAttempts is the total number of attempts, including the first.
	maxAttempts int
	// initialBackoff is the delay before the first retry.
	initialBackoff time.Duration
	// maxBackoff caps the delay.
	maxBackoff time.Duration
	// jitterFraction adds ±jitterFraction of the computed delay.
	jitterFraction float64
}

func (c RouterConfig) retry() retryConfig {
	rc := retryConfig{
		maxAttempts:    c.MaxAttempts,
		initialBackoff: c.RetryBackoff,
		maxBackoff:     30 * time.Second,
		jitterFraction: 0.25,
	}
	if rc.maxAttempts <= 0 {
		rc.maxAttempts = 1
	}
	if rc.initialBackoff <= 0 {
		rc.initialBackoff = 500 * time.Millisecond
	}
	return rc
}

// retrySend runs fn until it succeeds, fails permanently, the breaker opens
// or attempts run out. Context cancellation stops retries immediately.
func retrySend(ctx context.Context, cfg retryConfig, msg Message, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		id, err := fn(ctx)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || errors.Is(err, ErrCircuitOpen) {
			return "", lastErr
		}
		if attempt >= cfg.maxAttempts-1 {
			break
		}

		zap.L().Warn("channel: retrying send",
			zap.String("channel", string(msg.Channel)),
			zap.Int64("tenant_id", msg.TenantID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", lastErr
		case <-timer.C:
		}
	}
	return "", lastErr
}

func backoff(attempt int, cfg retryConfig) time.Duration {
	delay := float64(cfg.initialBackoff) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.maxBackoff) {
		delay = float64(cfg.maxBackoff)
	}
	if cfg.jitterFraction > 0 {
		jitterRange := delay * cfg.jitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
