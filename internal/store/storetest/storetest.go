// Package storetest opens throwaway SQLite-backed stores for tests.
package storetest

import (
	"fmt"
	"testing"
	"time"

	"accounts/internal/domain"
	"accounts/internal/store"
	"accounts/pkg/db"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns a migrated in-memory database private to t. The pool is
// capped at one connection so concurrent callers queue instead of hitting
// SQLite table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(false))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := gdb.AutoMigrate(&domain.Account{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return gdb
}

func New(t testing.TB) *store.Store {
	t.Helper()
	return store.New(Open(t), 2*time.Second)
}

// Account builds an active user account with a random username.
func Account(email, passwordHash string) *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		Username:     "u_" + uuid.NewString()[:8],
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
