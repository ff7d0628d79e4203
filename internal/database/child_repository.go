package database

import (
	"context"
	"errors"
	"fmt"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var _ interfaces.ChildRepository = (*PgChildRepository)(nil)

const childColumns = `id, parent_id, name, age, language, reading_level, interests, reading_level_score,
        total_stories_completed, total_reading_seconds, total_words_read, vocabulary_words_learned,
        current_streak_days, longest_streak_days, last_active_at, is_active, created_at, updated_at`

const (
	createChildQuery = `
        INSERT INTO children (id, parent_id, name, age, language, reading_level, interests, reading_level_score)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING is_active, created_at, updated_at`
	getChildByIDQuery       = `SELECT ` + childColumns + ` FROM children WHERE id = $1 AND is_active`
	listChildrenByParentSQL = `SELECT ` + childColumns + ` FROM children WHERE parent_id = $1 AND is_active ORDER BY created_at`
	updateChildQuery        = `
        UPDATE children
        SET name = $2, age = $3, language = $4, reading_level = $5, interests = $6, reading_level_score = $7
        WHERE id = $1 AND is_active
        RETURNING updated_at`
	deactivateChildQuery = `UPDATE children SET is_active = FALSE WHERE id = $1 AND parent_id = $2 AND is_active`

	// Серия считается по календарным дням: тот же день не меняет серию, следующий день продлевает,
	// пропуск начинает заново. Выражение повторяется в longest_streak_days, потому что SET видит
	// старые значения строки.
	streakExpr = `CASE
            WHEN last_active_at IS NULL THEN 1
            WHEN last_active_at::date >= ($6::timestamptz)::date THEN GREATEST(current_streak_days, 1)
            WHEN last_active_at::date = ($6::timestamptz)::date - 1 THEN current_streak_days + 1
            ELSE 1
        END`
	applyReadingTotalsQuery = `
        UPDATE children SET
            total_stories_completed = total_stories_completed + $2,
            total_reading_seconds = total_reading_seconds + $3,
            total_words_read = total_words_read + $4,
            vocabulary_words_learned = vocabulary_words_learned + $5,
            current_streak_days = ` + streakExpr + `,
            longest_streak_days = GREATEST(longest_streak_days, ` + streakExpr + `),
            last_active_at = GREATEST(COALESCE(last_active_at, $6::timestamptz), $6::timestamptz)
        WHERE id = $1`
)

type PgChildRepository struct {
	logger *zap.Logger
}

func NewPgChildRepository(logger *zap.Logger) *PgChildRepository {
	return &PgChildRepository{logger: logger.Named("PgChildRepo")}
}

func (r *PgChildRepository) Create(ctx context.Context, querier interfaces.DBTX, child *models.Child) error {
	if child.ID == uuid.Nil {
		child.ID = uuid.New()
	}
	if child.Interests == nil {
		child.Interests = []string{}
	}
	logFields := []zap.Field{zap.String("childID", child.ID.String()), zap.String("parentID", child.ParentID.String())}

	err := querier.QueryRow(ctx, createChildQuery,
		child.ID, child.ParentID, child.Name, child.Age, child.Language, child.ReadingLevel,
		pq.Array(child.Interests), child.ReadingLevelScore,
	).Scan(&child.IsActive, &child.CreatedAt, &child.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create child profile", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create child profile: %w", err)
	}
	r.logger.Info("Child profile created", logFields...)
	return nil
}

func (r *PgChildRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Child, error) {
	var child models.Child
	if err := pgxscan.Get(ctx, querier, &child, getChildByIDQuery, id); err != nil {
		err = wrapNotFound(err)
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		r.logger.Error("Failed to get child profile", zap.String("childID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get child %s: %w", id, err)
	}
	return &child, nil
}

func (r *PgChildRepository) ListByParent(ctx context.Context, querier interfaces.DBTX, parentID uuid.UUID) ([]*models.Child, error) {
	children := make([]*models.Child, 0)
	if err := pgxscan.Select(ctx, querier, &children, listChildrenByParentSQL, parentID); err != nil {
		r.logger.Error("Failed to list children", zap.String("parentID", parentID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return children, nil
}

func (r *PgChildRepository) Update(ctx context.Context, querier interfaces.DBTX, child *models.Child) error {
	if child.Interests == nil {
		child.Interests = []string{}
	}
	err := querier.QueryRow(ctx, updateChildQuery,
		child.ID, child.Name, child.Age, child.Language, child.ReadingLevel, pq.Array(child.Interests), child.ReadingLevelScore,
	).Scan(&child.UpdatedAt)
	if err != nil {
		err = wrapNotFound(err)
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		r.logger.Error("Failed to update child profile", zap.String("childID", child.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to update child %s: %w", child.ID, err)
	}
	return nil
}

// Delete деактивирует профиль. Чужой или уже удаленный профиль дает models.ErrNotFound.
func (r *PgChildRepository) Delete(ctx context.Context, querier interfaces.DBTX, id, parentID uuid.UUID) error {
	tag, err := querier.Exec(ctx, deactivateChildQuery, id, parentID)
	if err != nil {
		r.logger.Error("Failed to deactivate child profile", zap.String("childID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to deactivate child %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Child profile deactivated", zap.String("childID", id.String()))
	return nil
}

func (r *PgChildRepository) ApplyReadingTotals(ctx context.Context, querier interfaces.DBTX, childID uuid.UUID, delta models.ReadingTotalsDelta) error {
	tag, err := querier.Exec(ctx, applyReadingTotalsQuery,
		childID, delta.StoriesCompleted, delta.ReadingSeconds, delta.WordsRead, delta.VocabularyWords, delta.ActiveAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to apply reading totals", zap.String("childID", childID.String()), zap.Error(err))
		return fmt.Errorf("failed to apply reading totals for child %s: %w", childID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
