package db

import (
	"context"
	"database/sql"
	"fmt"

	"accounts/pkg/db/migrations"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// gooseUpContext is swapped in tests.
var gooseUpContext = goose.UpContext

// Migrate applies the embedded SQL migrations using the dialect of gdb.
func Migrate(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	return migrateSQL(ctx, sqlDB, gdb.Dialector.Name())
}

func migrateSQL(ctx context.Context, sqlDB *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect %q: %w", dialect, err)
	}
	if err := gooseUpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
