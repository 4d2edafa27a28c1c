package impl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accounts/internal/observability/metrics"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const DefaultBcryptCost = 12

// PasswordServiceImpl hashes with bcrypt on a bounded pool: at most
// concurrency hash or compare operations run at once, the rest wait for a
// slot (or for their context to end).
type PasswordServiceImpl struct {
	cost  int
	slots *semaphore.Weighted
}

func NewPasswordServiceBcrypt(cost, concurrency int) *PasswordServiceImpl {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &PasswordServiceImpl{cost: cost, slots: semaphore.NewWeighted(int64(concurrency))}
}

func (p *PasswordServiceImpl) Hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	defer func() { metrics.PasswordHashSeconds.WithLabelValues("hash").Observe(time.Since(start).Seconds()) }()

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hash slot: %w", err)
	}
	defer p.slots.Release(1)

	h, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordLength
		}
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

func (p *PasswordServiceImpl) Verify(ctx context.Context, password, digest string) (bool, error) {
	start := time.Now()
	defer func() { metrics.PasswordHashSeconds.WithLabelValues("verify").Observe(time.Since(start).Seconds()) }()

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for hash slot: %w", err)
	}
	defer p.slots.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil, nil
}
