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
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var _ interfaces.StoryRepository = (*PgStoryRepository)(nil)

const storyColumns = `id, owner_id, title, description, language, difficulty_level, themes, target_age_min, target_age_max,
        total_chapters, has_choices, safety_score, is_published, is_ai_generated, estimated_reading_time, created_at, updated_at`

const (
	createStoryQuery = `
        INSERT INTO stories (id, owner_id, title, description, language, difficulty_level, themes, target_age_min,
            target_age_max, total_chapters, has_choices, safety_score, is_published, is_ai_generated, estimated_reading_time)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING created_at, updated_at`
	getStoryByIDQuery = `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`

	// Сначала истории с наибольшим пересечением тем и интересов, затем подходящие по уровню чтения.
	listRecommendedStoriesQuery = `
        SELECT ` + storyColumns + `
        FROM stories
        WHERE is_published
          AND language = $1
          AND target_age_min <= $2 AND target_age_max >= $2
        ORDER BY cardinality(ARRAY(SELECT unnest(themes) INTERSECT SELECT unnest($3::text[]))) DESC,
                 (difficulty_level = $4) DESC,
                 safety_score DESC,
                 created_at DESC
        LIMIT $5`
)

type PgStoryRepository struct {
	logger *zap.Logger
}

func NewPgStoryRepository(logger *zap.Logger) *PgStoryRepository {
	return &PgStoryRepository{logger: logger.Named("PgStoryRepo")}
}

func (r *PgStoryRepository) Create(ctx context.Context, querier interfaces.DBTX, story *models.Story) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	if story.Themes == nil {
		story.Themes = []string{}
	}
	logFields := []zap.Field{zap.String("storyID", story.ID.String()), zap.String("language", story.Language)}
	r.logger.Debug("Creating story", logFields...)

	err := querier.QueryRow(ctx, createStoryQuery,
		story.ID, story.OwnerID, story.Title, story.Description, story.Language, story.DifficultyLevel,
		pq.Array(story.Themes), story.TargetAgeMin, story.TargetAgeMax, story.TotalChapters, story.HasChoices,
		story.SafetyScore, story.IsPublished, story.IsAIGenerated, story.EstimatedReadingTime,
	).Scan(&story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create story", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create story: %w", err)
	}
	r.logger.Info("Story created", logFields...)
	return nil
}

func (r *PgStoryRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Story, error) {
	var story models.Story
	if err := pgxscan.Get(ctx, querier, &story, getStoryByIDQuery, id); err != nil {
		err = wrapNotFound(err)
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		r.logger.Error("Failed to get story", zap.String("storyID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}
	return &story, nil
}

// ListPublished возвращает опубликованные истории по фильтру, самые безопасные и новые первыми.
// Возрастной фильтр оставляет истории, чей диапазон пересекается с [MinAge, MaxAge].
func (r *PgStoryRepository) ListPublished(ctx context.Context, querier interfaces.DBTX, filter models.StoryFilter) ([]*models.Story, error) {
	query, args := buildListPublishedQuery(filter)

	stories := make([]*models.Story, 0)
	if err := pgxscan.Select(ctx, querier, &stories, query, args...); err != nil {
		r.logger.Error("Failed to list published stories", zap.Any("filter", filter), zap.Error(err))
		return nil, fmt.Errorf("failed to list published stories: %w", err)
	}
	return stories, nil
}

func buildListPublishedQuery(filter models.StoryFilter) (string, []interface{}) {
	conditions := []string{"is_published"}
	args := make([]interface{}, 0, 7)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Language != "" {
		conditions = append(conditions, "language = "+arg(filter.Language))
	}
	if filter.Theme != "" {
		conditions = append(conditions, arg(filter.Theme)+" = ANY(themes)")
	}
	if filter.DifficultyLevel != "" {
		conditions = append(conditions, "difficulty_level = "+arg(filter.DifficultyLevel))
	}
	if filter.MinAge > 0 {
		conditions = append(conditions, "target_age_max >= "+arg(filter.MinAge))
	}
	if filter.MaxAge > 0 {
		conditions = append(conditions, "target_age_min <= "+arg(filter.MaxAge))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(storyColumns)
	b.WriteString(" FROM stories WHERE ")
	b.WriteString(strings.Join(conditions, " AND "))
	b.WriteString(" ORDER BY safety_score DESC, created_at DESC, id")
	b.WriteString(" LIMIT " + arg(SanitizeLimit(filter.Limit)))
	b.WriteString(" OFFSET " + arg(SanitizeOffset(filter.Offset)))
	return b.String(), args
}

func (r *PgStoryRepository) ListRecommended(ctx context.Context, querier interfaces.DBTX, child *models.Child, limit int) ([]*models.Story, error) {
	interests := child.Interests
	if interests == nil {
		interests = []string{}
	}
	stories := make([]*models.Story, 0)
	err := pgxscan.Select(ctx, querier, &stories, listRecommendedStoriesQuery,
		child.Language, child.Age, pq.Array(interests), child.ReadingLevel, SanitizeLimit(limit),
	)
	if err != nil {
		r.logger.Error("Failed to list recommended stories", zap.String("childID", child.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list recommended stories: %w", err)
	}
	return stories, nil
}
