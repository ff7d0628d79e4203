package database

import (
	"context"
	"errors"
	"fmt"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.ChapterRepository = (*PgChapterRepository)(nil)

const (
	chapterColumns = `id, story_id, chapter_number, title, content, is_ending, estimated_reading_time, word_count, safety_score, created_at`
	choiceColumns  = `id, story_id, chapter_number, question, options, created_at`
	branchColumns  = `id, story_id, choice_id, option_index, leads_to_chapter, is_ending, content, created_at`
)

const (
	insertChapterQuery = `
        INSERT INTO chapters (id, story_id, chapter_number, title, content, is_ending, estimated_reading_time, word_count, safety_score)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (story_id, chapter_number) DO NOTHING
        RETURNING created_at`
	getChapterQuery         = `SELECT ` + chapterColumns + ` FROM chapters WHERE story_id = $1 AND chapter_number = $2`
	listChaptersQuery       = `SELECT ` + chapterColumns + ` FROM chapters WHERE story_id = $1 ORDER BY chapter_number`
	listChaptersBeforeQuery = `SELECT ` + chapterColumns + ` FROM chapters WHERE story_id = $1 AND chapter_number < $2 ORDER BY chapter_number`
	insertChoiceQuery       = `
        INSERT INTO choices (id, story_id, chapter_number, question, options)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (story_id, chapter_number) DO NOTHING
        RETURNING created_at`
	getChoiceByIDQuery      = `SELECT ` + choiceColumns + ` FROM choices WHERE id = $1`
	getChoiceByChapterQuery = `SELECT ` + choiceColumns + ` FROM choices WHERE story_id = $1 AND chapter_number = $2`
	insertBranchQuery       = `
        INSERT INTO branches (id, story_id, choice_id, option_index, leads_to_chapter, is_ending)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (choice_id, option_index) DO NOTHING`
	getBranchQuery        = `SELECT ` + branchColumns + ` FROM branches WHERE choice_id = $1 AND option_index = $2`
	setBranchContentQuery = `UPDATE branches SET content = $2 WHERE id = $1 AND content IS NULL`
)

// PgChapterRepository хранит главы, точки выбора и ветки.
// Повторная вставка того же номера главы не ошибка: вызывающий получает created=false и перечитывает строку.
type PgChapterRepository struct {
	logger *zap.Logger
}

func NewPgChapterRepository(logger *zap.Logger) *PgChapterRepository {
	return &PgChapterRepository{logger: logger.Named("PgChapterRepo")}
}

func (r *PgChapterRepository) InsertChapter(ctx context.Context, querier interfaces.DBTX, chapter *models.Chapter) (bool, error) {
	if chapter.ID == uuid.Nil {
		chapter.ID = uuid.New()
	}
	logFields := []zap.Field{zap.String("storyID", chapter.StoryID.String()), zap.Int("chapter", chapter.ChapterNumber)}

	err := querier.QueryRow(ctx, insertChapterQuery,
		chapter.ID, chapter.StoryID, chapter.ChapterNumber, chapter.Title, chapter.Content, chapter.IsEnding,
		chapter.EstimatedReadingTime, chapter.WordCount, chapter.SafetyScore,
	).Scan(&chapter.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Info("Chapter already exists, keeping the stored one", logFields...)
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert chapter", append(logFields, zap.Error(err))...)
		return false, fmt.Errorf("failed to insert chapter: %w", err)
	}
	r.logger.Debug("Chapter inserted", logFields...)
	return true, nil
}

func (r *PgChapterRepository) GetChapter(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID, chapterNumber int) (*models.Chapter, error) {
	var chapter models.Chapter
	if err := pgxscan.Get(ctx, querier, &chapter, getChapterQuery, storyID, chapterNumber); err != nil {
		return nil, r.readError("chapter", err, zap.String("storyID", storyID.String()), zap.Int("chapter", chapterNumber))
	}
	return &chapter, nil
}

func (r *PgChapterRepository) ListChapters(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) ([]*models.Chapter, error) {
	chapters := make([]*models.Chapter, 0)
	if err := pgxscan.Select(ctx, querier, &chapters, listChaptersQuery, storyID); err != nil {
		return nil, r.readError("chapters", err, zap.String("storyID", storyID.String()))
	}
	return chapters, nil
}

func (r *PgChapterRepository) ListChaptersBefore(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID, beforeChapter int) ([]*models.Chapter, error) {
	chapters := make([]*models.Chapter, 0)
	if err := pgxscan.Select(ctx, querier, &chapters, listChaptersBeforeQuery, storyID, beforeChapter); err != nil {
		return nil, r.readError("chapters", err, zap.String("storyID", storyID.String()), zap.Int("before", beforeChapter))
	}
	return chapters, nil
}

func (r *PgChapterRepository) InsertChoice(ctx context.Context, querier interfaces.DBTX, choice *models.Choice) (bool, error) {
	if choice.ID == uuid.Nil {
		choice.ID = uuid.New()
	}
	if choice.Options == nil {
		choice.Options = []models.ChoiceOption{}
	}
	logFields := []zap.Field{zap.String("storyID", choice.StoryID.String()), zap.Int("chapter", choice.ChapterNumber)}

	err := querier.QueryRow(ctx, insertChoiceQuery,
		choice.ID, choice.StoryID, choice.ChapterNumber, choice.Question, choice.Options,
	).Scan(&choice.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Info("Choice point already exists", logFields...)
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert choice point", append(logFields, zap.Error(err))...)
		return false, fmt.Errorf("failed to insert choice: %w", err)
	}
	return true, nil
}

func (r *PgChapterRepository) GetChoiceByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Choice, error) {
	var choice models.Choice
	if err := pgxscan.Get(ctx, querier, &choice, getChoiceByIDQuery, id); err != nil {
		return nil, r.readError("choice", err, zap.String("choiceID", id.String()))
	}
	return &choice, nil
}

func (r *PgChapterRepository) GetChoiceByChapter(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID, chapterNumber int) (*models.Choice, error) {
	var choice models.Choice
	if err := pgxscan.Get(ctx, querier, &choice, getChoiceByChapterQuery, storyID, chapterNumber); err != nil {
		return nil, r.readError("choice", err, zap.String("storyID", storyID.String()), zap.Int("chapter", chapterNumber))
	}
	return &choice, nil
}

// InsertBranches вставляет ветки одним батчем. Уже существующие ветки пропускаются.
func (r *PgChapterRepository) InsertBranches(ctx context.Context, querier interfaces.DBTX, branches []*models.Branch) error {
	if len(branches) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range branches {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		batch.Queue(insertBranchQuery, b.ID, b.StoryID, b.ChoiceID, b.OptionIndex, b.LeadsToChapter, b.IsEnding)
	}

	sender, ok := querier.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		for _, b := range branches {
			if _, err := querier.Exec(ctx, insertBranchQuery, b.ID, b.StoryID, b.ChoiceID, b.OptionIndex, b.LeadsToChapter, b.IsEnding); err != nil {
				return r.branchError(err, b.ChoiceID)
			}
		}
		return nil
	}

	results := sender.SendBatch(ctx, batch)
	defer results.Close()
	for range branches {
		if _, err := results.Exec(); err != nil {
			return r.branchError(err, branches[0].ChoiceID)
		}
	}
	return nil
}

func (r *PgChapterRepository) branchError(err error, choiceID uuid.UUID) error {
	r.logger.Error("Failed to insert branches", zap.String("choiceID", choiceID.String()), zap.Error(err))
	return fmt.Errorf("failed to insert branches: %w", err)
}

func (r *PgChapterRepository) GetBranch(ctx context.Context, querier interfaces.DBTX, choiceID uuid.UUID, optionIndex int) (*models.Branch, error) {
	var branch models.Branch
	if err := pgxscan.Get(ctx, querier, &branch, getBranchQuery, choiceID, optionIndex); err != nil {
		return nil, r.readError("branch", err, zap.String("choiceID", choiceID.String()), zap.Int("option", optionIndex))
	}
	return &branch, nil
}

func (r *PgChapterRepository) SetBranchContent(ctx context.Context, querier interfaces.DBTX, branchID uuid.UUID, content string) (bool, error) {
	tag, err := querier.Exec(ctx, setBranchContentQuery, branchID, content)
	if err != nil {
		r.logger.Error("Failed to set branch content", zap.String("branchID", branchID.String()), zap.Error(err))
		return false, fmt.Errorf("failed to set branch content: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgChapterRepository) readError(entity string, err error, fields ...zap.Field) error {
	err = wrapNotFound(err)
	if errors.Is(err, models.ErrNotFound) {
		return err
	}
	r.logger.Error("Failed to read "+entity, append(fields, zap.Error(err))...)
	return fmt.Errorf("failed to read %s: %w", entity, err)
}
