package database

import (
	"embed"
	"fmt"

	"reading-platform/pkg/migration"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator возвращает мигратор поверх встроенных SQL-файлов схемы.
func NewMigrator(pool *pgxpool.Pool) *migration.Migrator {
	return migration.NewMigrator(migration.Config{
		MigrationsFS:   migrationsFS,
		MigrationsPath: "migrations",
	}, pool)
}

// ApplyMigrations применяет все новые миграции схемы.
func ApplyMigrations(pool *pgxpool.Pool) error {
	if err := NewMigrator(pool).Up(); err != nil {
		return fmt.Errorf("failed to apply schema migrations: %w", err)
	}
	return nil
}
