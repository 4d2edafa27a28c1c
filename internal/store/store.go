package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
	// Timeout bounds every store call on top of the caller's context.
	// Zero leaves the caller's deadline as the only bound.
	Timeout time.Duration
}

func New(db *gorm.DB, timeout time.Duration) *Store { return &Store{DB: db, Timeout: timeout} }

// WithTx runs fn in one transaction. The tx store carries no timeout of its
// own; the transaction as a whole is bounded.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
	return mapError(err)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sqlDB, err := s.DB.DB()
	if err != nil {
		return mapError(err)
	}
	return mapError(sqlDB.PingContext(ctx))
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return ctx, func() {}
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := s.bound(ctx)
	return s.DB.WithContext(ctx), cancel
}
