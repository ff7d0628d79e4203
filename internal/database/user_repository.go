package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ interfaces.UserRepository = (*PgUserRepository)(nil)

const (
	createUserQuery = `
        INSERT INTO users (id, email, password_hash, full_name, is_active)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at`
	userColumns         = `id, email, password_hash, full_name, is_active, created_at, updated_at`
	getUserByIDQuery    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
)

type PgUserRepository struct {
	logger *zap.Logger
}

func NewPgUserRepository(logger *zap.Logger) *PgUserRepository {
	return &PgUserRepository{logger: logger.Named("PgUserRepo")}
}

// Create сохраняет пользователя. Email приводится к нижнему регистру.
func (r *PgUserRepository) Create(ctx context.Context, querier interfaces.DBTX, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	logFields := []zap.Field{zap.String("userID", user.ID.String())}

	err := querier.QueryRow(ctx, createUserQuery, user.ID, user.Email, user.PasswordHash, user.FullName, user.IsActive).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Warn("User with this email already exists", logFields...)
			return models.ErrUserAlreadyExists
		}
		r.logger.Error("Failed to create user", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create user: %w", err)
	}
	r.logger.Info("User created", logFields...)
	return nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := pgxscan.Get(ctx, querier, &user, getUserByIDQuery, id); err != nil {
		return nil, r.getError(err, zap.String("userID", id.String()))
	}
	return &user, nil
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, querier interfaces.DBTX, email string) (*models.User, error) {
	var user models.User
	if err := pgxscan.Get(ctx, querier, &user, getUserByEmailQuery, strings.ToLower(strings.TrimSpace(email))); err != nil {
		// Email в лог не пишем.
		return nil, r.getError(err)
	}
	return &user, nil
}

func (r *PgUserRepository) getError(err error, fields ...zap.Field) error {
	err = wrapNotFound(err)
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Debug("User not found", fields...)
		return err
	}
	r.logger.Error("Failed to get user", append(fields, zap.Error(err))...)
	return fmt.Errorf("failed to get user: %w", err)
}
