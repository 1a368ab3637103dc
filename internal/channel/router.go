package channel

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterConfig controls per-channel throttling, timeouts and breaking.
type RouterConfig struct {
	// Timeout bounds a single send. Default: 10s.
	Timeout time.Duration
	// RatePerSecond limits sends per channel. Zero disables throttling.
	RatePerSecond float64
	// Burst is the limiter burst. Default: 1.
	Burst int
	// BreakerThreshold is the number of consecutive transient failures that
	// opens a channel's breaker. Default: 5.
	BreakerThreshold int
	// BreakerReset is how long an open breaker rejects sends. Default: 30s.
	BreakerReset time.Duration
	// MaxAttempts is the number of tries for a transient failure. Default: 1.
	MaxAttempts int
	// RetryBackoff is the delay before the first retry. Default: 500ms.
	RetryBackoff time.Duration
}

type route struct {
	sender  Sender
	limiter *rate.Limiter
	breaker *breaker
}

// Router sends messages to the sender registered for their channel. Each
// channel has its own rate limiter and circuit breaker.
type Router struct {
	cfg    RouterConfig
	routes map[Kind]*route
	now    func() time.Time
}

// NewRouter creates an empty router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Router{cfg: cfg, routes: make(map[Kind]*route), now: time.Now}
}

// Register binds sender to kind, replacing any earlier registration.
// Register is not safe to call concurrently with Send.
func (r *Router) Register(kind Kind, sender Sender) {
	rt := &route{
		sender:  sender,
		breaker: newBreaker(r.cfg.BreakerThreshold, r.cfg.BreakerReset, r.now),
	}
	if r.cfg.RatePerSecond > 0 {
		rt.limiter = rate.NewLimiter(rate.Limit(r.cfg.RatePerSecond), r.cfg.Burst)
	}
	r.routes[kind] = rt
}

// Has reports whether a sender is registered for kind.
func (r *Router) Has(kind Kind) bool {
	_, ok := r.routes[kind]
	return ok
}

// Kinds returns the registered channels.
func (r *Router) Kinds() []Kind {
	out := make([]Kind, 0, len(r.routes))
	for k := range r.routes {
		out = append(out, k)
	}
	return out
}

// State returns the breaker state of kind. Unregistered channels report closed.
func (r *Router) State(kind Kind) BreakerState {
	rt, ok := r.routes[kind]
	if !ok {
		return BreakerClosed
	}
	return rt.breaker.State()
}

// Send delivers msg with the configured timeout per attempt. Transient
// failures are retried up to MaxAttempts; open breakers and timeouts come
// back as *TransientError.
func (r *Router) Send(ctx context.Context, msg Message) (string, error) {
	rt, ok := r.routes[msg.Channel]
	if !ok {
		return "", eris.Wrapf(ErrNoSender, "channel: %s", msg.Channel)
	}

	id, err := retrySend(ctx, r.cfg.retry(), msg, func(ctx context.Context) (string, error) {
		return r.attempt(ctx, rt, msg)
	})
	if err != nil {
		zap.L().Debug("channel: send failed",
			zap.String("channel", string(msg.Channel)),
			zap.Int64("tenant_id", msg.TenantID),
			zap.Bool("transient", IsTransient(err)),
			zap.Error(err),
		)
		return "", err
	}
	return id, nil
}

func (r *Router) attempt(ctx context.Context, rt *route, msg Message) (string, error) {
	if err := rt.breaker.allow(); err != nil {
		return "", &TransientError{Channel: msg.Channel, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if rt.limiter != nil {
		if err := rt.limiter.Wait(ctx); err != nil {
			return "", &TransientError{Channel: msg.Channel, Err: eris.Wrap(err, "channel: rate limit wait")}
		}
	}

	id, err := rt.sender.Send(ctx, msg)
	if err != nil && !IsTransient(err) && ctx.Err() != nil {
		err = &TransientError{Channel: msg.Channel, Err: err}
	}
	rt.breaker.record(err)
	return id, err
}
