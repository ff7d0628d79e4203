package database

import (
	"context"
	"fmt"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ interfaces.AnalyticsRepository = (*PgAnalyticsRepository)(nil)

const (
	// Повторным визитом считается сессия, к которой вернулись в другой день.
	periodStatsQuery = `
        SELECT
            COUNT(*) AS sessions_count,
            COUNT(*) FILTER (WHERE is_completed) AS completed_count,
            COALESCE(SUM(reading_duration_seconds), 0) AS total_seconds,
            COALESCE(SUM(words_read), 0) AS total_words,
            COALESCE(AVG(reading_speed_wpm) FILTER (WHERE reading_speed_wpm > 0), 0)::float8 AS average_wpm,
            COUNT(*) FILTER (WHERE last_accessed_at::date > started_at::date) AS return_visit_sessions
        FROM story_sessions
        WHERE child_id = $1 AND started_at >= $2`
	favoriteThemesQuery = `
        SELECT t.theme, COUNT(*) AS count
        FROM story_sessions s
        JOIN stories st ON st.id = s.story_id
        CROSS JOIN LATERAL unnest(st.themes) AS t(theme)
        WHERE s.child_id = $1 AND s.started_at >= $2
        GROUP BY t.theme
        ORDER BY count DESC, t.theme
        LIMIT $3`
	weeklySummariesQuery = `
        SELECT
            c.id AS child_id,
            c.name,
            COUNT(s.id) FILTER (WHERE s.is_completed AND s.completed_at >= $2) AS stories_completed,
            (COALESCE(SUM(s.reading_duration_seconds) FILTER (WHERE s.last_accessed_at >= $2), 0) / 60)::int AS reading_minutes,
            c.current_streak_days AS streak_days
        FROM children c
        LEFT JOIN story_sessions s ON s.child_id = c.id
        WHERE c.parent_id = $1 AND c.is_active
        GROUP BY c.id
        ORDER BY c.created_at`
)

// PgAnalyticsRepository считает агрегаты чтения прямо по story_sessions.
type PgAnalyticsRepository struct {
	logger *zap.Logger
}

func NewPgAnalyticsRepository(logger *zap.Logger) *PgAnalyticsRepository {
	return &PgAnalyticsRepository{logger: logger.Named("PgAnalyticsRepo")}
}

func (r *PgAnalyticsRepository) PeriodStats(ctx context.Context, querier interfaces.DBTX, childID uuid.UUID, since time.Time) (*models.PeriodStats, error) {
	var stats models.PeriodStats
	if err := pgxscan.Get(ctx, querier, &stats, periodStatsQuery, childID, since.UTC()); err != nil {
		r.logger.Error("Failed to compute period stats", zap.String("childID", childID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to compute period stats: %w", err)
	}
	return &stats, nil
}

func (r *PgAnalyticsRepository) FavoriteThemes(ctx context.Context, querier interfaces.DBTX, childID uuid.UUID, since time.Time, limit int) ([]models.ThemeCount, error) {
	themes := make([]models.ThemeCount, 0)
	if err := pgxscan.Select(ctx, querier, &themes, favoriteThemesQuery, childID, since.UTC(), SanitizeLimit(limit)); err != nil {
		r.logger.Error("Failed to compute favourite themes", zap.String("childID", childID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to compute favourite themes: %w", err)
	}
	return themes, nil
}

func (r *PgAnalyticsRepository) WeeklySummaries(ctx context.Context, querier interfaces.DBTX, parentID uuid.UUID, since time.Time) ([]models.ChildWeeklySummary, error) {
	summaries := make([]models.ChildWeeklySummary, 0)
	if err := pgxscan.Select(ctx, querier, &summaries, weeklySummariesQuery, parentID, since.UTC()); err != nil {
		r.logger.Error("Failed to compute weekly summaries", zap.String("parentID", parentID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to compute weekly summaries: %w", err)
	}
	return summaries, nil
}
