package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goIdentity/internal/rate"
)

// DefaultQuota is two requests per ten seconds.
var DefaultQuota = Quota{Limit: 2, Window: 10}

// RateLimiter is a token bucket per identity with the bucket persisted on
// the identity itself. There is no background refill: tokens are credited
// from elapsed time when a request arrives. The bucket is shared by every
// action of the same identity; the action only selects the quota.
type RateLimiter struct {
	store  AllowanceStore
	clock  Clock
	policy QuotaPolicy
	locks  *rate.KeyedMutex
	logger *slog.Logger
}

// RateLimiterOption customizes a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithLockStripes sets the number of per-identity lock stripes.
func WithLockStripes(n int) RateLimiterOption {
	return func(l *RateLimiter) {
		l.locks = rate.NewKeyedMutex(n)
	}
}

// WithRateLimitLogger sets the logger used for store failures.
func WithRateLimitLogger(logger *slog.Logger) RateLimiterOption {
	return func(l *RateLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRateLimiter returns a limiter over store. A nil policy applies
// DefaultQuota and a nil clock uses SystemClock.
func NewRateLimiter(store AllowanceStore, clock Clock, policy QuotaPolicy, opts ...RateLimiterOption) (*RateLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: allowance store required", ErrEngineNotReady)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if policy == nil {
		policy = FixedQuota(DefaultQuota)
	}

	l := &RateLimiter{
		store:  store,
		clock:  clock,
		policy: policy,
		locks:  rate.NewKeyedMutex(0),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// QuotaPolicy returns the quota that applies to identity for action.
func (l *RateLimiter) QuotaPolicy(identity Identity, action string) Quota {
	return l.policy(identity, action)
}

// LoadAllowance reads the stored bucket. found is false when the identity
// has never been rate-checked.
func (l *RateLimiter) LoadAllowance(ctx context.Context, identity Identity, action string) (Allowance, bool, error) {
	if identity == nil || identity.IdentityID() == "" {
		return Allowance{}, false, ErrNotFound
	}

	a, found, err := l.store.LoadAllowance(ctx, identity.IdentityID())
	if err != nil {
		return Allowance{}, false, mapStoreError(err)
	}
	return a, found, nil
}

// SaveAllowance persists remaining and timestamp together.
func (l *RateLimiter) SaveAllowance(ctx context.Context, identity Identity, action string, remaining int, timestamp int64) error {
	if identity == nil || identity.IdentityID() == "" {
		return ErrNotFound
	}
	if remaining < 0 {
		return ErrInvalidAllowance
	}

	err := l.store.SaveAllowance(ctx, identity.IdentityID(), Allowance{Remaining: remaining, UpdatedAt: timestamp})
	return mapStoreError(err)
}

// CheckAndConsume admits or throttles one request made at now. Calls for
// the same identity are serialized in-process, so of N concurrent calls
// against one remaining token exactly one is allowed. A throttled outcome
// writes nothing. Store failures return ErrStoreUnavailable and never
// an allow. A non-ACTIVE identity returns ErrNotFound without touching
// its bucket.
func (l *RateLimiter) CheckAndConsume(ctx context.Context, identity Identity, action string, now int64) (RateDecision, error) {
	if identity == nil || identity.IdentityID() == "" || identity.IdentityStatus() != StatusActive {
		return RateDecision{}, ErrNotFound
	}

	q := l.QuotaPolicy(identity, action)
	quota := rate.Quota{Limit: q.Limit, Window: q.Window}
	if err := quota.Validate(); err != nil {
		return RateDecision{}, fmt.Errorf("quota for action %q: %w", action, err)
	}

	id := identity.IdentityID()
	unlock := l.locks.Lock(id)
	defer unlock()

	prev, found, err := l.LoadAllowance(ctx, identity, action)
	if err != nil {
		l.logStoreError("load allowance", id, action, err)
		return RateDecision{}, err
	}

	out := rate.Consume(rate.State{Remaining: prev.Remaining, UpdatedAt: prev.UpdatedAt}, found, now, quota)
	decision := RateDecision{
		Allowed:    out.Allowed,
		Limit:      q.Limit,
		Window:     q.Window,
		Remaining:  out.Remaining,
		RetryAfter: out.RetryAfter,
	}
	if !out.Allowed {
		return decision, nil
	}

	if err := l.SaveAllowance(ctx, identity, action, out.Next.Remaining, out.Next.UpdatedAt); err != nil {
		l.logStoreError("save allowance", id, action, err)
		return RateDecision{}, err
	}
	return decision, nil
}

// Check is CheckAndConsume at the limiter's clock time.
func (l *RateLimiter) Check(ctx context.Context, identity Identity, action string) (RateDecision, error) {
	return l.CheckAndConsume(ctx, identity, action, l.clock.Now())
}

func (l *RateLimiter) logStoreError(op, id, action string, err error) {
	if errors.Is(err, ErrNotFound) {
		return
	}
	l.logger.Error("rate limiter store failure",
		slog.String("op", op),
		slog.String("identity_id", id),
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}
