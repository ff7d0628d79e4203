package interfaces

import (
	"context"
	"time"

	"reading-platform/internal/models"

	"github.com/google/uuid"
)

// UserRepository - хранилище родительских аккаунтов.
type UserRepository interface {
	// Create возвращает models.ErrUserAlreadyExists при дубликате email.
	Create(ctx context.Context, querier DBTX, user *models.User) error
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, querier DBTX, email string) (*models.User, error)
}

type ChildRepository interface {
	Create(ctx context.Context, querier DBTX, child *models.Child) error
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Child, error)
	ListByParent(ctx context.Context, querier DBTX, parentID uuid.UUID) ([]*models.Child, error)
	Update(ctx context.Context, querier DBTX, child *models.Child) error
	// Delete деактивирует профиль (мягкое удаление).
	Delete(ctx context.Context, querier DBTX, id, parentID uuid.UUID) error
	// ApplyReadingTotals прибавляет дельты к агрегатам и пересчитывает серию дней чтения.
	ApplyReadingTotals(ctx context.Context, querier DBTX, childID uuid.UUID, delta models.ReadingTotalsDelta) error
}

type StoryRepository interface {
	Create(ctx context.Context, querier DBTX, story *models.Story) error
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Story, error)
	ListPublished(ctx context.Context, querier DBTX, filter models.StoryFilter) ([]*models.Story, error)
	// ListRecommended сортирует по пересечению тем с интересами ребенка.
	ListRecommended(ctx context.Context, querier DBTX, child *models.Child, limit int) ([]*models.Story, error)
}

// ChapterRepository хранит граф истории: главы, точки выбора и ветки.
// Все вставки идемпотентны и опираются на уникальные ограничения.
type ChapterRepository interface {
	// InsertChapter возвращает created=false, если глава с таким номером уже существует.
	InsertChapter(ctx context.Context, querier DBTX, chapter *models.Chapter) (created bool, err error)
	GetChapter(ctx context.Context, querier DBTX, storyID uuid.UUID, chapterNumber int) (*models.Chapter, error)
	ListChapters(ctx context.Context, querier DBTX, storyID uuid.UUID) ([]*models.Chapter, error)
	ListChaptersBefore(ctx context.Context, querier DBTX, storyID uuid.UUID, beforeChapter int) ([]*models.Chapter, error)

	InsertChoice(ctx context.Context, querier DBTX, choice *models.Choice) (created bool, err error)
	GetChoiceByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Choice, error)
	GetChoiceByChapter(ctx context.Context, querier DBTX, storyID uuid.UUID, chapterNumber int) (*models.Choice, error)

	InsertBranches(ctx context.Context, querier DBTX, branches []*models.Branch) error
	GetBranch(ctx context.Context, querier DBTX, choiceID uuid.UUID, optionIndex int) (*models.Branch, error)
	// SetBranchContent записывает контент только если он еще не задан.
	SetBranchContent(ctx context.Context, querier DBTX, branchID uuid.UUID, content string) (updated bool, err error)
}

type SessionRepository interface {
	// Create возвращает created=false, если у ребенка уже есть незавершенная сессия по истории.
	Create(ctx context.Context, querier DBTX, session *models.StorySession) (created bool, err error)
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.StorySession, error)
	GetActive(ctx context.Context, querier DBTX, childID, storyID uuid.UUID) (*models.StorySession, error)
	ListByChild(ctx context.Context, querier DBTX, childID uuid.UUID, limit int) ([]*models.StorySession, error)
	// Advance добавляет запись в журнал, переводит указатель с fromChapter на toChapter и монотонно
	// обновляет процент. Если сессия завершена или уже ушла с fromChapter, возвращает models.ErrNotFound.
	Advance(ctx context.Context, querier DBTX, id uuid.UUID, record models.ChoiceRecord, fromChapter, toChapter, completion int, completed bool) (*models.StorySession, error)
	UpdateProgress(ctx context.Context, querier DBTX, id uuid.UUID, progress models.ReadingProgress, wpm float64) (*models.StorySession, error)
	SetBookmark(ctx context.Context, querier DBTX, id uuid.UUID, bookmarked bool) (*models.StorySession, error)
	Complete(ctx context.Context, querier DBTX, id uuid.UUID) (*models.StorySession, error)
}

type AnalyticsRepository interface {
	PeriodStats(ctx context.Context, querier DBTX, childID uuid.UUID, since time.Time) (*models.PeriodStats, error)
	FavoriteThemes(ctx context.Context, querier DBTX, childID uuid.UUID, since time.Time, limit int) ([]models.ThemeCount, error)
	WeeklySummaries(ctx context.Context, querier DBTX, parentID uuid.UUID, since time.Time) ([]models.ChildWeeklySummary, error)
}
