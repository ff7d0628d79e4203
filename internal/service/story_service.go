package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"reading-platform/internal/generation"
	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"
	"reading-platform/internal/safety"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxThemeLength   = 100
	maxTitleLength   = 200
	maxStoryChapters = 10
	minTargetAge     = 3
	maxTargetAge     = 18
	targetAgeSpread  = 2
	maxSafetyText    = 20000

	safetyReportTTL = 10 * time.Minute
)

// GenerateStoryRequest - запрос на новую историю для ребенка.
type GenerateStoryRequest struct {
	ChildID       uuid.UUID `json:"child_id" binding:"required"`
	Theme         string    `json:"theme" binding:"required"`
	Title         string    `json:"title,omitempty"`
	TotalChapters int       `json:"total_chapters,omitempty"`
}

// GeneratedStory - сохраненная история с первой главой.
type GeneratedStory struct {
	Story      *models.Story            `json:"story"`
	Chapter    *models.Chapter          `json:"chapter"`
	Choice     *models.Choice           `json:"choice,omitempty"`
	Generation *models.GenerationResult `json:"generation"`
}

// StoryCompleteData - данные события complete потоковой генерации.
type StoryCompleteData struct {
	StoryID     uuid.UUID `json:"story_id"`
	ChapterID   uuid.UUID `json:"chapter_id"`
	Title       string    `json:"title"`
	SafetyScore float64   `json:"safety_score"`
}

// SafetyCheckRequest - разовая проверка произвольного текста.
type SafetyCheckRequest struct {
	Text     string `json:"text" binding:"required"`
	ChildAge int    `json:"child_age" binding:"required"`
	Language string `json:"language,omitempty"`
	Context  string `json:"context,omitempty"`
}

// StoryService - каталог историй, рекомендации и генерация новых историй.
type StoryService interface {
	ListStories(ctx context.Context, filter models.StoryFilter) ([]*models.Story, error)
	ListChildStories(ctx context.Context, parentID, childID uuid.UUID, theme string, limit, offset int) ([]*models.Story, error)
	GetRecommendations(ctx context.Context, parentID, childID uuid.UUID, limit int) ([]*models.Story, error)
	GetStory(ctx context.Context, parentID, storyID uuid.UUID) (*models.StoryWithChapters, error)
	GenerateStory(ctx context.Context, parentID uuid.UUID, req GenerateStoryRequest) (*GeneratedStory, error)
	// GenerateStoryStream отправляет события генерации в sink. complete или error
	// уходят последними, complete - только после сохранения истории.
	GenerateStoryStream(ctx context.Context, parentID uuid.UUID, req GenerateStoryRequest, sink generation.EventSink) (*GeneratedStory, error)
	SafetyCheck(ctx context.Context, req SafetyCheckRequest) (*safety.Report, error)
}

type StoryServiceConfig struct {
	DefaultTotalChapters int
	RecommendationsTTL   time.Duration
}

type storyServiceImpl struct {
	db          interfaces.DBTX
	tx          interfaces.TxManager
	childRepo   interfaces.ChildRepository
	storyRepo   interfaces.StoryRepository
	chapterRepo interfaces.ChapterRepository
	generator   StoryGenerator
	checker     generation.SafetyChecker
	cache       interfaces.Cache
	publisher   interfaces.EventPublisher
	cfg         StoryServiceConfig
	logger      *zap.Logger
}

func NewStoryService(
	db interfaces.DBTX,
	tx interfaces.TxManager,
	childRepo interfaces.ChildRepository,
	storyRepo interfaces.StoryRepository,
	chapterRepo interfaces.ChapterRepository,
	generator StoryGenerator,
	checker generation.SafetyChecker,
	cache interfaces.Cache,
	publisher interfaces.EventPublisher,
	cfg StoryServiceConfig,
	logger *zap.Logger,
) StoryService {
	if cfg.DefaultTotalChapters < 1 {
		cfg.DefaultTotalChapters = models.DefaultTotalChapters
	}
	if cfg.RecommendationsTTL <= 0 {
		cfg.RecommendationsTTL = 30 * time.Minute
	}
	return &storyServiceImpl{
		db:          db,
		tx:          tx,
		childRepo:   childRepo,
		storyRepo:   storyRepo,
		chapterRepo: chapterRepo,
		generator:   generator,
		checker:     checker,
		cache:       cache,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger.Named("StoryService"),
	}
}

func (s *storyServiceImpl) ListStories(ctx context.Context, filter models.StoryFilter) ([]*models.Story, error) {
	stories, err := s.storyRepo.ListPublished(ctx, s.db, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// ListChildStories - опубликованные истории на языке ребенка, подходящие по возрасту.
func (s *storyServiceImpl) ListChildStories(ctx context.Context, parentID, childID uuid.UUID, theme string, limit, offset int) ([]*models.Story, error) {
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
	if err != nil {
		return nil, err
	}
	return s.ListStories(ctx, models.StoryFilter{
		Language: child.Language,
		Theme:    strings.TrimSpace(theme),
		MinAge:   child.Age,
		MaxAge:   child.Age,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetRecommendations подбирает истории по интересам ребенка. Результат кэшируется.
func (s *storyServiceImpl) GetRecommendations(ctx context.Context, parentID, childID uuid.UUID, limit int) ([]*models.Story, error) {
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
	if err != nil {
		return nil, err
	}
	key := models.RecommendationsCacheKey(childID, limit)
	log := s.logger.With(zap.Stringer("childID", childID), zap.String("cacheKey", key))

	var cached []*models.Story
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn("Failed to read recommendations cache", zap.Error(err))
	} else if found {
		return cached, nil
	}

	stories, err := s.storyRepo.ListRecommended(ctx, s.db, child, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	if err := s.cache.Set(ctx, key, stories, s.cfg.RecommendationsTTL); err != nil {
		log.Warn("Failed to cache recommendations", zap.Error(err))
	}
	return stories, nil
}

// GetStory возвращает историю со списком глав. Неопубликованную историю видит только владелец.
func (s *storyServiceImpl) GetStory(ctx context.Context, parentID, storyID uuid.UUID) (*models.StoryWithChapters, error) {
	story, err := loadStory(ctx, s.storyRepo, s.db, storyID)
	if err != nil {
		return nil, err
	}
	if !story.IsPublished && (story.OwnerID == nil || *story.OwnerID != parentID) {
		return nil, models.ErrStoryNotFound
	}
	chapters, err := s.chapterRepo.ListChapters(ctx, s.db, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	return &models.StoryWithChapters{Story: story, Chapters: chapters}, nil
}

func (s *storyServiceImpl) GenerateStory(ctx context.Context, parentID uuid.UUID, req GenerateStoryRequest) (*GeneratedStory, error) {
	return s.generateStory(ctx, parentID, req, nil)
}

func (s *storyServiceImpl) GenerateStoryStream(ctx context.Context, parentID uuid.UUID, req GenerateStoryRequest, sink generation.EventSink) (*GeneratedStory, error) {
	if sink == nil {
		return s.GenerateStory(ctx, parentID, req)
	}
	out, err := s.generateStory(ctx, parentID, req, sink)
	if err != nil {
		sink.Emit(generation.Event{Type: generation.EventError, Data: streamError(err)})
		return nil, err
	}
	sink.Emit(generation.Event{Type: generation.EventComplete, Data: StoryCompleteData{
		StoryID:     out.Story.ID,
		ChapterID:   out.Chapter.ID,
		Title:       out.Story.Title,
		SafetyScore: out.Story.SafetyScore,
	}})
	return out, nil
}

// generateStory генерирует первую главу и сохраняет историю, главу и точку выбора одной транзакцией.
func (s *storyServiceImpl) generateStory(ctx context.Context, parentID uuid.UUID, req GenerateStoryRequest, sink generation.EventSink) (*GeneratedStory, error) {
	req.Theme = strings.TrimSpace(req.Theme)
	req.Title = strings.TrimSpace(req.Title)
	if req.Theme == "" || utf8.RuneCountInString(req.Theme) > maxThemeLength {
		return nil, fmt.Errorf("%w: theme must be 1-%d characters", models.ErrBadRequest, maxThemeLength)
	}
	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title must be at most %d characters", models.ErrBadRequest, maxTitleLength)
	}
	total := req.TotalChapters
	if total == 0 {
		total = s.cfg.DefaultTotalChapters
	}
	if total < 1 || total > maxStoryChapters {
		return nil, fmt.Errorf("%w: total_chapters must be 1-%d", models.ErrBadRequest, maxStoryChapters)
	}

	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, req.ChildID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.Stringer("childID", child.ID), zap.String("theme", req.Theme))

	result, err := s.generator.RunWithEvents(ctx, models.GenerationRequest{
		Theme:          req.Theme,
		ChapterNumber:  1,
		TotalChapters:  total,
		IsFinalChapter: total == 1,
		Child:          *child,
	}, sink)
	if err != nil {
		log.Error("Story generation failed", zap.Error(err))
		return nil, fmt.Errorf("failed to generate story: %w", err)
	}

	story := &models.Story{
		ID:                   uuid.New(),
		OwnerID:              &parentID,
		Title:                storyTitle(req.Title, result.Title, req.Theme),
		Description:          generation.SummarizeChapter(result.StoryText),
		Language:             child.Language,
		DifficultyLevel:      child.ReadingLevel,
		Themes:               []string{req.Theme},
		TargetAgeMin:         min(max(child.Age-targetAgeSpread, minTargetAge), maxTargetAge),
		TargetAgeMax:         min(max(child.Age+targetAgeSpread, minTargetAge), maxTargetAge),
		TotalChapters:        total,
		HasChoices:           total > 1 && len(result.Choices) > 0,
		SafetyScore:          result.SafetyScore,
		IsPublished:          result.Approved,
		IsAIGenerated:        true,
		EstimatedReadingTime: result.EstimatedReadingMinutes * total,
	}
	chapter, choice, branches := newChapterGraph(story.ID, 1, total, total == 1, result)

	err = s.tx.WithTx(ctx, func(q interfaces.DBTX) error {
		if err := s.storyRepo.Create(ctx, q, story); err != nil {
			return fmt.Errorf("failed to create story: %w", err)
		}
		_, _, err := persistChapterGraph(ctx, s.chapterRepo, q, chapter, choice, branches)
		return err
	})
	if err != nil {
		log.Error("Failed to persist generated story", zap.Error(err))
		return nil, fmt.Errorf("failed to save generated story: %w", err)
	}

	publishAll(ctx, s.publisher, log, models.DomainEvent{
		Type:          models.EventChapterGenerated,
		ChildID:       child.ID,
		StoryID:       story.ID,
		ChapterNumber: 1,
		Generated:     true,
	})
	log.Info("Story generated",
		zap.Stringer("storyID", story.ID),
		zap.Int("totalChapters", total),
		zap.Float64("safetyScore", result.SafetyScore),
	)
	return &GeneratedStory{Story: story, Chapter: chapter, Choice: choice, Generation: result}, nil
}

// SafetyCheck прогоняет произвольный текст через проверку безопасности.
func (s *storyServiceImpl) SafetyCheck(ctx context.Context, req SafetyCheckRequest) (*safety.Report, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" || utf8.RuneCountInString(text) > maxSafetyText {
		return nil, fmt.Errorf("%w: text must be 1-%d characters", models.ErrBadRequest, maxSafetyText)
	}
	if req.ChildAge < minTargetAge || req.ChildAge > maxTargetAge {
		return nil, fmt.Errorf("%w: child_age must be %d-%d", models.ErrBadRequest, minTargetAge, maxTargetAge)
	}
	contextTag := req.Context
	switch contextTag {
	case "":
		contextTag = safety.ContextGeneral
	case safety.ContextStory, safety.ContextChoice, safety.ContextGeneral:
	default:
		return nil, fmt.Errorf("%w: unknown context %q", models.ErrBadRequest, req.Context)
	}
	language := req.Language
	if language == "" {
		language = models.LanguageEnglish
	}

	input := safety.Input{
		Text:     text,
		ChildAge: req.ChildAge,
		Language: language,
		Context:  contextTag,
	}
	key, keyErr := safetyCacheKey(input)
	if keyErr != nil {
		s.logger.Warn("Failed to build safety cache key", zap.Error(keyErr))
	} else {
		var cached safety.Report
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("Failed to read safety report cache", zap.String("cacheKey", key), zap.Error(err))
		} else if found {
			return &cached, nil
		}
	}

	report := s.checker.Evaluate(ctx, input)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if keyErr == nil {
		if err := s.cache.Set(ctx, key, report, safetyReportTTL); err != nil {
			s.logger.Warn("Failed to cache safety report", zap.String("cacheKey", key), zap.Error(err))
		}
	}
	return &report, nil
}

func storyTitle(requested, generated, theme string) string {
	switch {
	case requested != "":
		return requested
	case strings.TrimSpace(generated) != "":
		return strings.TrimSpace(generated)
	default:
		return "A " + theme + " story"
	}
}

// streamError переводит ошибку генерации в событие error для клиента.
func streamError(err error) generation.ErrorEventData {
	switch {
	case errors.Is(err, models.ErrSafetyRejected):
		return generation.ErrorEventData{Code: models.ErrCodeSafetyRejected, Message: "Generated content did not pass safety checks"}
	case errors.Is(err, models.ErrGenerationParse):
		return generation.ErrorEventData{Code: models.ErrCodeGenerationFail, Message: "Story generation returned unreadable content"}
	case errors.Is(err, models.ErrBadRequest):
		return generation.ErrorEventData{Code: models.ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrChildNotFound):
		return generation.ErrorEventData{Code: models.ErrCodeNotFound, Message: models.ErrChildNotFound.Error()}
	case errors.Is(err, models.ErrForbidden):
		return generation.ErrorEventData{Code: models.ErrCodeForbidden, Message: models.ErrForbidden.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return generation.ErrorEventData{Code: models.ErrCodeGenerationFail, Message: "Story generation was cancelled"}
	default:
		return generation.ErrorEventData{Code: models.ErrCodeInternal, Message: "Story generation failed"}
	}
}
