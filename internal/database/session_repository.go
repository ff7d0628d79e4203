package database

import (
	"context"
	"errors"
	"fmt"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ interfaces.SessionRepository = (*PgSessionRepository)(nil)

const sessionColumns = `id, child_id, story_id, current_chapter, choices_made, completion_percentage, is_completed,
        is_bookmarked, reading_duration_seconds, words_read, reading_speed_wpm, pause_count, started_at,
        last_accessed_at, completed_at`

const (
	createSessionQuery = `
        INSERT INTO story_sessions (id, child_id, story_id, current_chapter, choices_made, completion_percentage)
        VALUES ($1, $2, $3, $4, '[]'::jsonb, $5)
        ON CONFLICT (child_id, story_id) WHERE NOT is_completed DO NOTHING
        RETURNING ` + sessionColumns
	getSessionByIDQuery = `SELECT ` + sessionColumns + ` FROM story_sessions WHERE id = $1`
	getActiveSessionSQL = `SELECT ` + sessionColumns + ` FROM story_sessions WHERE child_id = $1 AND story_id = $2 AND NOT is_completed`
	listSessionsSQL     = `SELECT ` + sessionColumns + ` FROM story_sessions WHERE child_id = $1 ORDER BY last_accessed_at DESC LIMIT $2`

	// Процент только растет, завершение необратимо.
	advanceSessionQuery = `
        UPDATE story_sessions SET
            choices_made = choices_made || $2::jsonb,
            current_chapter = $4,
            completion_percentage = GREATEST(completion_percentage, $5),
            is_completed = is_completed OR $6,
            completed_at = CASE WHEN $6 AND completed_at IS NULL THEN NOW() ELSE completed_at END,
            last_accessed_at = NOW()
        WHERE id = $1 AND NOT is_completed AND current_chapter = $3
        RETURNING ` + sessionColumns
	updateProgressQuery = `
        UPDATE story_sessions SET
            words_read = GREATEST(words_read, $2),
            reading_duration_seconds = GREATEST(reading_duration_seconds, $3),
            pause_count = GREATEST(pause_count, $4),
            reading_speed_wpm = $5,
            last_accessed_at = NOW()
        WHERE id = $1
        RETURNING ` + sessionColumns
	setBookmarkQuery = `
        UPDATE story_sessions SET is_bookmarked = $2, last_accessed_at = NOW()
        WHERE id = $1
        RETURNING ` + sessionColumns
	completeSessionQuery = `
        UPDATE story_sessions SET
            is_completed = TRUE,
            completion_percentage = 100,
            completed_at = COALESCE(completed_at, NOW()),
            last_accessed_at = NOW()
        WHERE id = $1
        RETURNING ` + sessionColumns
)

type PgSessionRepository struct {
	logger *zap.Logger
}

func NewPgSessionRepository(logger *zap.Logger) *PgSessionRepository {
	return &PgSessionRepository{logger: logger.Named("PgSessionRepo")}
}

func (r *PgSessionRepository) Create(ctx context.Context, querier interfaces.DBTX, session *models.StorySession) (bool, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CurrentChapter < 1 {
		session.CurrentChapter = 1
	}
	logFields := []zap.Field{zap.String("childID", session.ChildID.String()), zap.String("storyID", session.StoryID.String())}

	var created models.StorySession
	err := pgxscan.Get(ctx, querier, &created, createSessionQuery,
		session.ID, session.ChildID, session.StoryID, session.CurrentChapter, session.CompletionPercentage,
	)
	if err != nil {
		if errors.Is(wrapNotFound(err), models.ErrNotFound) {
			r.logger.Debug("Active session already exists", logFields...)
			return false, nil
		}
		r.logger.Error("Failed to create session", append(logFields, zap.Error(err))...)
		return false, fmt.Errorf("failed to create session: %w", err)
	}
	*session = created
	r.logger.Info("Session created", append(logFields, zap.String("sessionID", session.ID.String()))...)
	return true, nil
}

func (r *PgSessionRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StorySession, error) {
	return r.getOne(ctx, querier, "get session", getSessionByIDQuery, id)
}

func (r *PgSessionRepository) GetActive(ctx context.Context, querier interfaces.DBTX, childID, storyID uuid.UUID) (*models.StorySession, error) {
	return r.getOne(ctx, querier, "get active session", getActiveSessionSQL, childID, storyID)
}

func (r *PgSessionRepository) ListByChild(ctx context.Context, querier interfaces.DBTX, childID uuid.UUID, limit int) ([]*models.StorySession, error) {
	sessions := make([]*models.StorySession, 0)
	if err := pgxscan.Select(ctx, querier, &sessions, listSessionsSQL, childID, SanitizeLimit(limit)); err != nil {
		r.logger.Error("Failed to list sessions", zap.String("childID", childID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *PgSessionRepository) Advance(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, record models.ChoiceRecord,
	fromChapter, toChapter, completion int, completed bool,
) (*models.StorySession, error) {
	return r.getOne(ctx, querier, "advance session", advanceSessionQuery,
		id, []models.ChoiceRecord{record}, fromChapter, toChapter, completion, completed,
	)
}

func (r *PgSessionRepository) UpdateProgress(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, progress models.ReadingProgress, wpm float64) (*models.StorySession, error) {
	return r.getOne(ctx, querier, "update reading progress", updateProgressQuery,
		id, progress.WordsRead, progress.ReadingDurationSeconds, progress.PauseCount, wpm,
	)
}

func (r *PgSessionRepository) SetBookmark(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, bookmarked bool) (*models.StorySession, error) {
	return r.getOne(ctx, querier, "set bookmark", setBookmarkQuery, id, bookmarked)
}

func (r *PgSessionRepository) Complete(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StorySession, error) {
	return r.getOne(ctx, querier, "complete session", completeSessionQuery, id)
}

func (r *PgSessionRepository) getOne(ctx context.Context, querier interfaces.DBTX, op, query string, args ...interface{}) (*models.StorySession, error) {
	var session models.StorySession
	if err := pgxscan.Get(ctx, querier, &session, query, args...); err != nil {
		err = wrapNotFound(err)
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		r.logger.Error("Failed to "+op, zap.Any("args", args[:1]), zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	if session.ChoicesMade == nil {
		session.ChoicesMade = []models.ChoiceRecord{}
	}
	return &session, nil
}
