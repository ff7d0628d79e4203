package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultLockTimeout     = 30 * time.Second
)

// Config описывает источник миграций. Файлы читаются из MigrationsFS по пути MigrationsPath.
type Config struct {
	MigrationsFS    fs.FS
	MigrationsPath  string
	MigrationsTable string        // по умолчанию schema_migrations
	LockTimeout     time.Duration // по умолчанию 30s
}

// Migrator применяет и откатывает миграции схемы.
type Migrator struct {
	config Config
	pool   *pgxpool.Pool
}

func NewMigrator(config Config, pool *pgxpool.Pool) *Migrator {
	if config.MigrationsTable == "" {
		config.MigrationsTable = defaultMigrationsTable
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	return &Migrator{config: config, pool: pool}
}

// Up применяет все новые миграции. Отсутствие изменений не считается ошибкой.
func (m *Migrator) Up() error {
	return m.run("apply", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down откатывает все миграции.
func (m *Migrator) Down() error {
	return m.run("rollback", func(mg *migrate.Migrate) error { return mg.Down() })
}

// Steps применяет (n > 0) или откатывает (n < 0) ровно |n| миграций.
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	return m.run("step", func(mg *migrate.Migrate) error { return mg.Steps(n) })
}

// ForceVersion снимает dirty-флаг, выставляя версию принудительно.
func (m *Migrator) ForceVersion(version uint) error {
	return m.run("force", func(mg *migrate.Migrate) error { return mg.Force(int(version)) })
}

// Version возвращает текущую версию схемы. Для пустой базы version=0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	mg, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(mg)

	version, dirty, err = mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) run(action string, fn func(mg *migrate.Migrate) error) error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer closeMigrator(mg)

	if err := fn(mg); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Str("action", action).Msg("database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to %s migrations: %w", action, err)
	}

	version, dirty, _ := mg.Version()
	log.Info().Str("action", action).Uint("version", version).Bool("dirty", dirty).Msg("database migrations finished")
	return nil
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	db := stdlib.OpenDBFromPool(m.pool)

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:       m.config.MigrationsTable,
		MigrationsTableQuoted: true,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(m.config.MigrationsFS, m.config.MigrationsPath)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrations source: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	mg.LockTimeout = m.config.LockTimeout
	return mg, nil
}

func closeMigrator(mg *migrate.Migrate) {
	srcErr, dbErr := mg.Close()
	if srcErr != nil || dbErr != nil {
		log.Warn().AnErr("source_error", srcErr).AnErr("db_error", dbErr).Msg("failed to close migrator")
	}
}
