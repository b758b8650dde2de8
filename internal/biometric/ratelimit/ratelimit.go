// Package ratelimit tracks verification failures per identity and applies
// progressive lockout: a short cooldown after a burst of failures, a hard
// block when failures keep coming inside the rolling window.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"biobind/internal/audit"
	dErrors "biobind/pkg/domain-errors"
)

// Store is the attempt-ledger port. Stores are pure I/O over per-key failure
// timestamps; lock policy lives in the Limiter.
//
// RecordFailure must be atomic per key: append a failure at now, prune
// entries older than window, and return the surviving timestamps in
// ascending order, all as one step, so concurrent failures cannot bypass a
// threshold.
type Store interface {
	RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error)
	Failures(ctx context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error)
	// Clear removes the ledger entry, reporting whether one existed.
	Clear(ctx context.Context, key string) (bool, error)
}

// Config holds the lockout thresholds.
type Config struct {
	// SoftThreshold failures within SoftWindow of the first failure in the
	// current window trigger a cooldown until that window elapses.
	SoftThreshold int
	SoftWindow    time.Duration
	// HardThreshold failures inside the rolling HardWindow block the
	// identity until the excess failures age out. The window also bounds
	// ledger retention: a gap longer than HardWindow resets everything.
	HardThreshold int
	HardWindow    time.Duration
}

// DefaultConfig returns the protocol's lockout thresholds.
func DefaultConfig() Config {
	return Config{
		SoftThreshold: 5,
		SoftWindow:    5 * time.Minute,
		HardThreshold: 10,
		HardWindow:    15 * time.Minute,
	}
}

// Status is the outcome of a lockout check.
type Status struct {
	Limited    bool
	RetryAfter time.Duration
	Failures   int
}

// Limiter applies the lockout policy over an attempt ledger.
type Limiter struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	audit  *audit.Publisher
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithConfig(cfg Config) Option {
	return func(l *Limiter) { l.cfg = cfg }
}

func WithAuditPublisher(pub *audit.Publisher) Option {
	return func(l *Limiter) { l.audit = pub }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("attempt ledger store is required")
	}
	l := &Limiter{
		store:  store,
		cfg:    DefaultConfig(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Status reports whether the identity is currently limited and for how long.
func (l *Limiter) Status(ctx context.Context, identityRef string) (*Status, error) {
	now := l.now()
	ts, err := l.store.Failures(ctx, identityRef, now, l.cfg.HardWindow)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read attempt ledger")
	}
	return l.evaluate(ts, now), nil
}

// RecordFailure adds a failure to the ledger and reports the resulting
// status. Crossing into a limited state emits a lockout audit event.
func (l *Limiter) RecordFailure(ctx context.Context, identityRef string) (*Status, error) {
	now := l.now()
	ts, err := l.store.RecordFailure(ctx, identityRef, now, l.cfg.HardWindow)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record failure")
	}

	status := l.evaluate(ts, now)
	if status.Limited && l.justCrossed(ts, now) {
		l.logger.Warn("verification lockout triggered",
			"identity", identityRef, "failures", status.Failures)
		if l.audit != nil {
			l.audit.Emit(ctx, audit.Event{
				Category:    audit.CategorySecurity,
				Action:      audit.ActionLockoutTriggered,
				IdentityRef: identityRef,
			})
		}
	}
	return status, nil
}

// Clear wipes the ledger for an identity. Called on any successful
// verification or registration.
func (l *Limiter) Clear(ctx context.Context, identityRef string) error {
	removed, err := l.store.Clear(ctx, identityRef)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear attempt ledger")
	}
	if removed && l.audit != nil {
		l.audit.Emit(ctx, audit.Event{
			Category:    audit.CategorySecurity,
			Action:      audit.ActionLockoutCleared,
			IdentityRef: identityRef,
		})
	}
	return nil
}

// RecentFailures counts failures within the given lookback. Feeds the
// failure penalty of the verification score.
func (l *Limiter) RecentFailures(ctx context.Context, identityRef string, within time.Duration) (int, error) {
	now := l.now()
	ts, err := l.store.Failures(ctx, identityRef, now, l.cfg.HardWindow)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read attempt ledger")
	}
	cutoff := now.Add(-within)
	var n int
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// evaluate applies the lock policy to a pruned, ascending timestamp list.
func (l *Limiter) evaluate(ts []time.Time, now time.Time) *Status {
	status := &Status{Failures: len(ts)}
	if len(ts) == 0 {
		return status
	}

	// Hard block: lifts when enough old failures age out of the rolling
	// window to drop the count below the threshold.
	if len(ts) >= l.cfg.HardThreshold {
		liftAt := ts[len(ts)-l.cfg.HardThreshold].Add(l.cfg.HardWindow)
		if liftAt.After(now) {
			status.Limited = true
			status.RetryAfter = liftAt.Sub(now)
			return status
		}
	}

	// Soft cooldown: a burst of failures close to the first one in the
	// window pauses the identity until the soft window elapses.
	if len(ts) >= l.cfg.SoftThreshold {
		first := ts[0]
		if now.Sub(first) <= l.cfg.SoftWindow {
			status.Limited = true
			status.RetryAfter = first.Add(l.cfg.SoftWindow).Sub(now)
		}
	}
	return status
}

// justCrossed reports whether this failure is the one that reached a
// threshold, so lockout events fire once per episode instead of per attempt.
func (l *Limiter) justCrossed(ts []time.Time, now time.Time) bool {
	n := len(ts)
	if n == l.cfg.HardThreshold {
		return true
	}
	return n == l.cfg.SoftThreshold && now.Sub(ts[0]) <= l.cfg.SoftWindow
}
