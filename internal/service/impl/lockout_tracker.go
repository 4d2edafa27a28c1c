package impl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"accounts/internal/domain"
	"accounts/internal/events"
	"accounts/internal/observability/metrics"
	"accounts/internal/observability/middleware"
	"accounts/internal/service"
	"accounts/internal/store"
)

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockDuration     = 2 * time.Hour
)

type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

type lockoutStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ClearExpiredLock(ctx context.Context, email string, now time.Time) (bool, error)
	RecordFailedLogin(ctx context.Context, email string, maxAttempts int, lockUntil, now time.Time) (*domain.Account, error)
	RecordSuccessfulLogin(ctx context.Context, email string, now time.Time) error
}

// LockoutTracker counts consecutive failed logins per email and locks the
// account once the policy threshold is reached.
type LockoutTracker struct {
	accounts lockoutStore
	policy   LockoutPolicy
	email    service.EmailService
	now      Clock
}

func NewLockoutTracker(st *store.Store, policy LockoutPolicy, email service.EmailService, now Clock) *LockoutTracker {
	return newLockoutTracker(st.Accounts(), policy, email, now)
}

func newLockoutTracker(accts lockoutStore, policy LockoutPolicy, email service.EmailService, now Clock) *LockoutTracker {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultMaxLoginAttempts
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = DefaultLockDuration
	}
	return &LockoutTracker{accounts: accts, policy: policy, email: email, now: orSystem(now)}
}

// IsLocked reports whether email is inside an open lockout window. An
// expired lock is cleared here, zeroing the counter with it.
func (l *LockoutTracker) IsLocked(ctx context.Context, email string) (bool, error) {
	acct, err := l.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := l.now()
	if acct.IsLocked(now) {
		return true, nil
	}
	if acct.LockUntil != nil {
		if _, err := l.accounts.ClearExpiredLock(ctx, email, now); err != nil {
			return false, err
		}
	}
	return false, nil
}

// RecordOutcome applies the result of a password check. Failures for
// unknown emails are ignored.
func (l *LockoutTracker) RecordOutcome(ctx context.Context, email string, success bool) error {
	now := l.now()
	if success {
		return l.accounts.RecordSuccessfulLogin(ctx, email, now)
	}

	updated, err := l.accounts.RecordFailedLogin(ctx, email, l.policy.MaxAttempts, now.Add(l.policy.LockDuration), now)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if updated.LoginAttempts == l.policy.MaxAttempts && updated.LockUntil != nil {
		metrics.AccountLockoutsTotal.Inc()
		slog.Warn("account locked after failed logins",
			append([]any{"account_id", updated.ID, "attempts", updated.LoginAttempts, "locked_until", *updated.LockUntil},
				middleware.LogAttrs(ctx)...)...)
		if l.email != nil {
			ev := events.AccountLocked{Email: updated.Email, LockedUntil: *updated.LockUntil, At: now}
			if err := l.email.SendLockoutNotice(ctx, ev); err != nil {
				slog.Error("send lockout notice", "error", err, "account_id", updated.ID)
			}
		}
	}
	return nil
}
