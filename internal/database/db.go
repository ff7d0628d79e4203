package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reading-platform/internal/config"
	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/avast/retry-go/v4"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	connectAttempts = 10
	connectDelay    = 3 * time.Second
	pingTimeout     = 5 * time.Second

	// DefaultListLimit и MaxListLimit ограничивают размер страниц списков.
	DefaultListLimit = 20
	MaxListLimit     = 100

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// NewPool создает пул соединений и ждет, пока PostgreSQL станет доступен.
func NewPool(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var pool *pgxpool.Pool
	err = retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()

			p, err := pgxpool.NewWithConfig(attemptCtx, poolConfig)
			if err != nil {
				return fmt.Errorf("failed to create connection pool: %w", err)
			}
			if err := p.Ping(attemptCtx); err != nil {
				p.Close()
				return fmt.Errorf("failed to ping database: %w", err)
			}
			pool = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Database is not ready, retrying",
				zap.Uint("attempt", n+1),
				zap.Int("max_attempts", connectAttempts),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return pool, nil
}

// TxManager выполняет функции в транзакции пула.
type TxManager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ interfaces.TxManager = (*TxManager)(nil)

func NewTxManager(pool *pgxpool.Pool, logger *zap.Logger) *TxManager {
	return &TxManager{pool: pool, logger: logger.Named("TxManager")}
}

// WithTx коммитит транзакцию, если fn вернула nil. При ошибке или панике транзакция откатывается,
// паника пробрасывается дальше.
func (m *TxManager) WithTx(ctx context.Context, fn func(tx interfaces.DBTX) error) (err error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			m.rollback(tx)
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		m.rollback(tx)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

func (m *TxManager) rollback(tx pgx.Tx) {
	// Контекст запроса мог быть отменен, откат должен пройти все равно.
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		m.logger.Error("Failed to rollback tx", zap.Error(err))
	}
}

// wrapNotFound переводит pgx.ErrNoRows в models.ErrNotFound.
func wrapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || pgxscan.NotFound(err) {
		return models.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// SanitizeLimit приводит limit к диапазону [1, MaxListLimit], 0 и отрицательные значения дают DefaultListLimit.
func SanitizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

// SanitizeOffset не допускает отрицательных смещений.
func SanitizeOffset(offset int) int {
	return max(offset, 0)
}
