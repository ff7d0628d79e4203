package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reading-platform/internal/generation"
	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoryGenerator - точка входа в оркестратор генерации. *generation.Orchestrator ее реализует.
type StoryGenerator interface {
	RunWithEvents(ctx context.Context, req models.GenerationRequest, sink generation.EventSink) (*models.GenerationResult, error)
}

var _ StoryGenerator = (*generation.Orchestrator)(nil)

// loadOwnedChild возвращает активный профиль ребенка, если он принадлежит родителю.
func loadOwnedChild(ctx context.Context, repo interfaces.ChildRepository, querier interfaces.DBTX, parentID, childID uuid.UUID) (*models.Child, error) {
	child, err := repo.GetByID(ctx, querier, childID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrChildNotFound
		}
		return nil, fmt.Errorf("failed to load child %s: %w", childID, err)
	}
	if child.ParentID != parentID {
		return nil, models.ErrForbidden
	}
	return child, nil
}

func loadStory(ctx context.Context, repo interfaces.StoryRepository, querier interfaces.DBTX, storyID uuid.UUID) (*models.Story, error) {
	story, err := repo.GetByID(ctx, querier, storyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrStoryNotFound
		}
		return nil, fmt.Errorf("failed to load story %s: %w", storyID, err)
	}
	return story, nil
}

// publishAll отправляет события после коммита. Ошибка публикации не откатывает
// уже сохраненное состояние, поэтому только логируется.
func publishAll(ctx context.Context, publisher interfaces.EventPublisher, logger *zap.Logger, events ...models.DomainEvent) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		if err := publisher.Publish(ctx, event); err != nil {
			logger.Error("Failed to publish domain event",
				zap.String("type", event.Type),
				zap.Stringer("childID", event.ChildID),
				zap.Error(err),
			)
		}
	}
}

// storyTheme - тема для промпта: темы истории через запятую или, если их нет, название.
func storyTheme(story *models.Story) string {
	if len(story.Themes) > 0 {
		return strings.Join(story.Themes, ", ")
	}
	return story.Title
}

func totalChapters(story *models.Story) int {
	if story.TotalChapters < 1 {
		return models.DefaultTotalChapters
	}
	return story.TotalChapters
}

// completionFor возвращает процент прочтения после перехода на главу target.
func completionFor(target, total int, ending bool) (int, bool) {
	if ending || target >= total {
		return 100, true
	}
	if target < 1 {
		return 0, false
	}
	return (target - 1) * 100 / total, false
}

// newChapterGraph строит главу, точку выбора и ветки из результата генерации.
// Для финальной главы точка выбора не создается.
func newChapterGraph(storyID uuid.UUID, number, total int, ending bool, result *models.GenerationResult) (*models.Chapter, *models.Choice, []*models.Branch) {
	chapter := &models.Chapter{
		ID:                   uuid.New(),
		StoryID:              storyID,
		ChapterNumber:        number,
		Title:                chapterTitle(number, result.Title),
		Content:              result.StoryText,
		IsEnding:             ending,
		EstimatedReadingTime: result.EstimatedReadingMinutes,
		WordCount:            result.WordCount,
		SafetyScore:          result.SafetyScore,
	}
	if ending || len(result.Choices) == 0 {
		return chapter, nil, nil
	}

	choice := &models.Choice{
		ID:            uuid.New(),
		StoryID:       storyID,
		ChapterNumber: number,
		Question:      result.ChoiceQuestion,
		Options:       result.Choices,
	}
	next := number + 1
	branches := make([]*models.Branch, 0, len(result.Choices))
	for i := range result.Choices {
		branches = append(branches, &models.Branch{
			ID:             uuid.New(),
			StoryID:        storyID,
			ChoiceID:       choice.ID,
			OptionIndex:    i,
			LeadsToChapter: next,
			IsEnding:       next >= total,
		})
	}
	return chapter, choice, branches
}

func chapterTitle(number int, generated string) string {
	if number == 1 && strings.TrimSpace(generated) != "" {
		return strings.TrimSpace(generated)
	}
	return fmt.Sprintf("Chapter %d", number)
}

// persistChapterGraph вставляет главу и, для новой главы, ее точку выбора с ветками.
// Если глава уже существует, возвращает сохраненную версию и created=false.
func persistChapterGraph(ctx context.Context, repo interfaces.ChapterRepository, q interfaces.DBTX, chapter *models.Chapter, choice *models.Choice, branches []*models.Branch) (*models.Chapter, bool, error) {
	created, err := repo.InsertChapter(ctx, q, chapter)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert chapter %d: %w", chapter.ChapterNumber, err)
	}
	if !created {
		existing, err := repo.GetChapter(ctx, q, chapter.StoryID, chapter.ChapterNumber)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read concurrent chapter %d: %w", chapter.ChapterNumber, err)
		}
		return existing, false, nil
	}
	if choice == nil {
		return chapter, true, nil
	}

	choiceCreated, err := repo.InsertChoice(ctx, q, choice)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert choice for chapter %d: %w", chapter.ChapterNumber, err)
	}
	if choiceCreated {
		if err := repo.InsertBranches(ctx, q, branches); err != nil {
			return nil, false, fmt.Errorf("failed to insert branches for chapter %d: %w", chapter.ChapterNumber, err)
		}
	}
	return chapter, true, nil
}
