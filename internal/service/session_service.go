package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reading-platform/internal/generation"
	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	sessionHistoryLimit = 50
	// sharedGenerationTimeout ограничивает общую генерацию главы, которая не зависит от отмены запросов.
	sharedGenerationTimeout = 5 * time.Minute
)

var sessionAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reading_platform_session_advances_total",
	Help: "Session advances by how the target chapter was resolved.",
}, []string{"source"})

// errSessionMoved - сессию изменил параллельный запрос между чтением и записью.
var errSessionMoved = errors.New("session changed concurrently")

// Selection - выбор читателя в конце главы. Заполняется ровно один вариант:
// ChoiceID с OptionIndex, Continue или CustomText.
type Selection struct {
	ChoiceID    *uuid.UUID `json:"choice_id,omitempty"`
	OptionIndex int        `json:"option_index"`
	Continue    bool       `json:"continue,omitempty"`
	CustomText  string     `json:"custom_text,omitempty"`
}

// SessionService ведет ребенка по графу истории.
type SessionService interface {
	StartSession(ctx context.Context, parentID, childID, storyID uuid.UUID) (*models.StorySession, error)
	Advance(ctx context.Context, parentID, sessionID uuid.UUID, sel Selection) (*models.AdvanceResult, error)
	GetSession(ctx context.Context, parentID, sessionID uuid.UUID) (*models.StorySession, error)
	GetCurrentChapter(ctx context.Context, parentID, sessionID uuid.UUID) (*models.ChapterView, error)
	ListChildSessions(ctx context.Context, parentID, childID uuid.UUID, limit int) ([]*models.StorySession, error)
	UpdateReadingProgress(ctx context.Context, parentID, sessionID uuid.UUID, progress models.ReadingProgress) (*models.StorySession, error)
	BookmarkSession(ctx context.Context, parentID, sessionID uuid.UUID, bookmarked bool) (*models.StorySession, error)
	CompleteSession(ctx context.Context, parentID, sessionID uuid.UUID) (*models.StorySession, error)
	GetSessionAnalytics(ctx context.Context, parentID, sessionID uuid.UUID) (*models.SessionAnalytics, error)
}

type sessionServiceImpl struct {
	db          interfaces.DBTX
	tx          interfaces.TxManager
	childRepo   interfaces.ChildRepository
	storyRepo   interfaces.StoryRepository
	chapterRepo interfaces.ChapterRepository
	sessionRepo interfaces.SessionRepository
	generator   StoryGenerator
	publisher   interfaces.EventPublisher
	inflight    singleflight.Group
	now         func() time.Time
	logger      *zap.Logger
}

func NewSessionService(
	db interfaces.DBTX,
	tx interfaces.TxManager,
	childRepo interfaces.ChildRepository,
	storyRepo interfaces.StoryRepository,
	chapterRepo interfaces.ChapterRepository,
	sessionRepo interfaces.SessionRepository,
	generator StoryGenerator,
	publisher interfaces.EventPublisher,
	logger *zap.Logger,
) SessionService {
	return &sessionServiceImpl{
		db:          db,
		tx:          tx,
		childRepo:   childRepo,
		storyRepo:   storyRepo,
		chapterRepo: chapterRepo,
		sessionRepo: sessionRepo,
		generator:   generator,
		publisher:   publisher,
		now:         time.Now,
		logger:      logger.Named("SessionService"),
	}
}

// StartSession возвращает незавершенную сессию ребенка по истории или создает новую на первой главе.
func (s *sessionServiceImpl) StartSession(ctx context.Context, parentID, childID, storyID uuid.UUID) (*models.StorySession, error) {
	log := s.logger.With(zap.Stringer("childID", childID), zap.Stringer("storyID", storyID))

	if _, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID); err != nil {
		return nil, err
	}
	story, err := loadStory(ctx, s.storyRepo, s.db, storyID)
	if err != nil {
		return nil, err
	}
	if !story.IsPublished {
		return nil, models.ErrStoryNotPublished
	}

	existing, err := s.sessionRepo.GetActive(ctx, s.db, childID, storyID)
	if err == nil {
		log.Info("Resuming reading session", zap.Stringer("sessionID", existing.ID))
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}

	session := &models.StorySession{
		ID:             uuid.New(),
		ChildID:        childID,
		StoryID:        storyID,
		CurrentChapter: 1,
		ChoicesMade:    []models.ChoiceRecord{},
	}
	created, err := s.sessionRepo.Create(ctx, s.db, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if !created {
		// Параллельный запрос успел создать сессию первым.
		winner, err := s.sessionRepo.GetActive(ctx, s.db, childID, storyID)
		if err != nil {
			return nil, fmt.Errorf("failed to read concurrently created session: %w", err)
		}
		return winner, nil
	}

	log.Info("Reading session started", zap.Stringer("sessionID", session.ID))
	return session, nil
}

type advanceStep struct {
	record models.ChoiceRecord
	branch *models.Branch
	target int
	ending bool
}

// Advance записывает выбор, находит или генерирует следующую главу и двигает указатель сессии.
// Все записи делаются в одной транзакции; ошибка генерации состояние не меняет.
func (s *sessionServiceImpl) Advance(ctx context.Context, parentID, sessionID uuid.UUID, sel Selection) (*models.AdvanceResult, error) {
	session, child, err := s.getOwnedSession(ctx, parentID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted {
		return nil, models.ErrSessionCompleted
	}
	story, err := loadStory(ctx, s.storyRepo, s.db, session.StoryID)
	if err != nil {
		return nil, err
	}
	if !story.IsPublished {
		return nil, models.ErrStoryNotPublished
	}

	total := totalChapters(story)
	current := session.CurrentChapter
	log := s.logger.With(
		zap.Stringer("sessionID", session.ID),
		zap.Stringer("storyID", story.ID),
		zap.Int("chapter", current),
	)

	step, err := s.resolveStep(ctx, story, current, total, sel)
	if err != nil {
		return nil, err
	}
	if current >= total {
		return s.completeAtLastChapter(ctx, session, story, step)
	}

	var (
		pending  *models.Chapter
		choice   *models.Choice
		branches []*models.Branch
		result   *models.GenerationResult
		source   = "reused"
	)
	existing, err := s.chapterRepo.GetChapter(ctx, s.db, story.ID, step.target)
	customIgnored := false
	switch {
	case err == nil:
		// Глава уже есть и общая для всех читателей, свой текст ее не меняет.
		if step.record.CustomText != "" {
			customIgnored = true
			log.Info("Custom input not applied, next chapter already exists", zap.Int("target", step.target))
		}
	case errors.Is(err, models.ErrNotFound):
		if step.branch != nil && step.branch.Content != nil {
			pending = chapterFromContent(story.ID, step.target, step.ending, *step.branch.Content, child)
			source = "branch"
		} else {
			result, err = s.generate(ctx, session, child, story, step, total)
			if err != nil {
				log.Error("Failed to generate chapter", zap.Int("target", step.target), zap.Error(err))
				return nil, fmt.Errorf("failed to generate chapter %d: %w", step.target, err)
			}
			pending, choice, branches = newChapterGraph(story.ID, step.target, total, step.ending, result)
			source = "generated"
		}
	default:
		return nil, fmt.Errorf("failed to look up chapter %d: %w", step.target, err)
	}

	var (
		chapter    = existing
		created    bool
		nextChoice *models.Choice
		updated    *models.StorySession
		ending     bool
		completed  bool
	)
	err = s.tx.WithTx(ctx, func(q interfaces.DBTX) error {
		if pending != nil {
			var err error
			chapter, created, err = persistChapterGraph(ctx, s.chapterRepo, q, pending, choice, branches)
			if err != nil {
				return err
			}
		}
		if step.branch != nil && step.branch.Content == nil {
			if _, err := s.chapterRepo.SetBranchContent(ctx, q, step.branch.ID, chapter.Content); err != nil {
				return fmt.Errorf("failed to memoize branch content: %w", err)
			}
		}

		ending = step.ending || chapter.IsEnding
		if !ending {
			c, err := s.chapterRepo.GetChoiceByChapter(ctx, q, story.ID, chapter.ChapterNumber)
			switch {
			case err == nil:
				nextChoice = c
			case !errors.Is(err, models.ErrNotFound):
				return fmt.Errorf("failed to load next choice: %w", err)
			}
		}

		var completion int
		completion, completed = completionFor(chapter.ChapterNumber, total, ending)
		var err error
		updated, err = s.sessionRepo.Advance(ctx, q, session.ID, step.record, current, chapter.ChapterNumber, completion, completed)
		if errors.Is(err, models.ErrNotFound) {
			return errSessionMoved
		}
		return err
	})
	if err != nil {
		if errors.Is(err, errSessionMoved) {
			return nil, s.sessionConflict(ctx, session.ID)
		}
		log.Error("Failed to persist session advance", zap.Int("target", step.target), zap.Error(err))
		return nil, fmt.Errorf("failed to advance session: %w", err)
	}
	if pending != nil && !created {
		source = "concurrent"
	}
	sessionAdvances.WithLabelValues(source).Inc()

	events := make([]models.DomainEvent, 0, 2)
	if created && result != nil {
		events = append(events, models.DomainEvent{
			Type:          models.EventChapterGenerated,
			ChildID:       session.ChildID,
			StoryID:       story.ID,
			SessionID:     session.ID,
			ChapterNumber: chapter.ChapterNumber,
			Generated:     true,
		})
	}
	if updated.IsCompleted {
		events = append(events, s.completedEvent(updated, result))
	}
	publishAll(ctx, s.publisher, log, events...)

	log.Info("Session advanced",
		zap.Int("target", chapter.ChapterNumber),
		zap.String("source", source),
		zap.Int("completion", updated.CompletionPercentage),
		zap.Bool("completed", updated.IsCompleted),
	)

	out := &models.AdvanceResult{
		SessionID:            updated.ID,
		CurrentChapter:       updated.CurrentChapter,
		Content:              chapter.Content,
		Choices:              []models.ChoiceOption{},
		IsEnding:             ending,
		CompletionPercentage: updated.CompletionPercentage,
		IsCompleted:          updated.IsCompleted,
		Generated:            created && result != nil,
		CustomInputIgnored:   customIgnored,
	}
	if nextChoice != nil && !ending {
		out.ChoiceID = &nextChoice.ID
		out.ChoiceQuestion = nextChoice.Question
		out.Choices = nextChoice.Options
	}
	return out, nil
}

// resolveStep проверяет выбор и определяет целевую главу.
func (s *sessionServiceImpl) resolveStep(ctx context.Context, story *models.Story, current, total int, sel Selection) (*advanceStep, error) {
	step := &advanceStep{
		record: models.ChoiceRecord{Chapter: current, MadeAt: s.now().UTC()},
		target: current + 1,
	}

	switch {
	case strings.TrimSpace(sel.CustomText) != "":
		step.record.ChoiceID = models.ChoiceTagCustom
		step.record.CustomText = strings.TrimSpace(sel.CustomText)
		choice, err := s.chapterRepo.GetChoiceByChapter(ctx, s.db, story.ID, current)
		switch {
		case err == nil:
			step.record.Question = choice.Question
		case !errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("failed to load current choice: %w", err)
		}

	case sel.ChoiceID != nil:
		choice, err := s.chapterRepo.GetChoiceByID(ctx, s.db, *sel.ChoiceID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrInvalidChoice
			}
			return nil, fmt.Errorf("failed to load choice: %w", err)
		}
		if choice.StoryID != story.ID || choice.ChapterNumber != current {
			return nil, models.ErrInvalidChoice
		}
		if sel.OptionIndex < 0 || sel.OptionIndex >= len(choice.Options) {
			return nil, models.ErrInvalidChoice
		}
		step.record.ChoiceID = choice.ID.String()
		step.record.OptionIndex = sel.OptionIndex
		step.record.Question = choice.Question
		step.record.ChosenOption = choice.Options[sel.OptionIndex].Text

		branch, err := s.chapterRepo.GetBranch(ctx, s.db, choice.ID, sel.OptionIndex)
		switch {
		case err == nil:
			step.branch = branch
			if branch.LeadsToChapter > current {
				step.target = branch.LeadsToChapter
			}
			step.ending = branch.IsEnding
		case !errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("failed to load branch: %w", err)
		}

	case sel.Continue:
		step.record.ChoiceID = models.ChoiceTagContinue

	default:
		return nil, fmt.Errorf("%w: selection must name a choice, continue or custom text", models.ErrBadRequest)
	}

	step.ending = step.ending || step.target >= total
	return step, nil
}

// completeAtLastChapter завершает сессию, стоящую на последней главе, без генерации.
func (s *sessionServiceImpl) completeAtLastChapter(ctx context.Context, session *models.StorySession, story *models.Story, step *advanceStep) (*models.AdvanceResult, error) {
	current := session.CurrentChapter
	var updated *models.StorySession
	err := s.tx.WithTx(ctx, func(q interfaces.DBTX) error {
		var err error
		updated, err = s.sessionRepo.Advance(ctx, q, session.ID, step.record, current, current, 100, true)
		if errors.Is(err, models.ErrNotFound) {
			return errSessionMoved
		}
		return err
	})
	if err != nil {
		if errors.Is(err, errSessionMoved) {
			return nil, s.sessionConflict(ctx, session.ID)
		}
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	sessionAdvances.WithLabelValues("final").Inc()
	publishAll(ctx, s.publisher, s.logger, s.completedEvent(updated, nil))

	content := ""
	if chapter, err := s.chapterRepo.GetChapter(ctx, s.db, story.ID, current); err == nil {
		content = chapter.Content
	}
	return &models.AdvanceResult{
		SessionID:            updated.ID,
		CurrentChapter:       updated.CurrentChapter,
		Content:              content,
		Choices:              []models.ChoiceOption{},
		IsEnding:             true,
		CompletionPercentage: updated.CompletionPercentage,
		IsCompleted:          updated.IsCompleted,
	}, nil
}

// generate запускает оркестратор. Параллельные генерации одной главы истории в процессе схлопываются.
func (s *sessionServiceImpl) generate(ctx context.Context, session *models.StorySession, child *models.Child, story *models.Story, step *advanceStep, total int) (*models.GenerationResult, error) {
	previous, err := s.chapterRepo.ListChaptersBefore(ctx, s.db, story.ID, step.target)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous chapters: %w", err)
	}
	req := models.GenerationRequest{
		Theme:            storyTheme(story),
		ChapterNumber:    step.target,
		TotalChapters:    total,
		IsFinalChapter:   step.ending,
		PreviousChapters: lo.Map(previous, func(c *models.Chapter, _ int) string { return c.Content }),
		PreviousChoice:   latestChoice(session.ChoicesMade, step.record),
		CustomInput:      step.record.CustomText,
		Child:            *child,
	}

	// Генерация общая для всех ждущих: отключение одного клиента ее не прерывает.
	key := fmt.Sprintf("%s:%d", story.ID, step.target)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedGenerationTimeout)
		defer cancel()
		return s.generator.RunWithEvents(genCtx, req, nil)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("Chapter generation shared with a concurrent request", zap.String("key", key))
		}
		return res.Val.(*models.GenerationResult), nil
	}
}

// latestChoice - последний осмысленный выбор для контекста, начиная с текущего.
func latestChoice(history []models.ChoiceRecord, current models.ChoiceRecord) *models.PreviousChoice {
	if current.ChosenOption != "" {
		return &models.PreviousChoice{Question: current.Question, Chosen: current.ChosenOption}
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ChosenOption != "" {
			return &models.PreviousChoice{Question: history[i].Question, Chosen: history[i].ChosenOption}
		}
	}
	return nil
}

// chapterFromContent собирает главу из готового текста ветки. Текст здесь не проверялся,
// поэтому SafetyScore остается 0 (оценка неизвестна).
func chapterFromContent(storyID uuid.UUID, number int, ending bool, content string, child *models.Child) *models.Chapter {
	words := generation.CountWords(content)
	return &models.Chapter{
		ID:                   uuid.New(),
		StoryID:              storyID,
		ChapterNumber:        number,
		Title:                chapterTitle(number, ""),
		Content:              content,
		IsEnding:             ending,
		EstimatedReadingTime: generation.EstimateReadingMinutes(words, child.Age, child.ReadingLevel),
		WordCount:            words,
	}
}

// sessionConflict объясняет, почему условная запись сессии не прошла.
func (s *sessionServiceImpl) sessionConflict(ctx context.Context, sessionID uuid.UUID) error {
	fresh, err := s.sessionRepo.GetByID(ctx, s.db, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrSessionNotFound
		}
		return fmt.Errorf("failed to reload session: %w", err)
	}
	if fresh.IsCompleted {
		return models.ErrSessionCompleted
	}
	return models.ErrInvalidChoice
}

func (s *sessionServiceImpl) completedEvent(session *models.StorySession, result *models.GenerationResult) models.DomainEvent {
	event := models.DomainEvent{
		Type:          models.EventSessionCompleted,
		ChildID:       session.ChildID,
		StoryID:       session.StoryID,
		SessionID:     session.ID,
		ChapterNumber: session.CurrentChapter,
	}
	if result != nil {
		event.VocabularyWords = len(result.VocabularyWords)
	}
	return event
}

func (s *sessionServiceImpl) GetSession(ctx context.Context, parentID, sessionID uuid.UUID) (*models.StorySession, error) {
	session, _, err := s.getOwnedSession(ctx, parentID, sessionID)
	return session, err
}

// GetCurrentChapter возвращает главу, на которой стоит указатель сессии, с вариантами выбора.
func (s *sessionServiceImpl) GetCurrentChapter(ctx context.Context, parentID, sessionID uuid.UUID) (*models.ChapterView, error) {
	session, _, err := s.getOwnedSession(ctx, parentID, sessionID)
	if err != nil {
		return nil, err
	}
	story, err := loadStory(ctx, s.storyRepo, s.db, session.StoryID)
	if err != nil {
		return nil, err
	}
	chapter, err := s.chapterRepo.GetChapter(ctx, s.db, story.ID, session.CurrentChapter)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrChapterNotFound
		}
		return nil, fmt.Errorf("failed to load chapter: %w", err)
	}

	total := totalChapters(story)
	view := &models.ChapterView{
		SessionID:     session.ID,
		StoryID:       story.ID,
		ChapterNumber: chapter.ChapterNumber,
		TotalChapters: total,
		Title:         chapter.Title,
		Content:       chapter.Content,
		IsEnding:      chapter.IsEnding || chapter.ChapterNumber >= total,
		Choices:       []models.ChoiceOption{},
	}
	if view.IsEnding {
		return view, nil
	}
	choice, err := s.chapterRepo.GetChoiceByChapter(ctx, s.db, story.ID, chapter.ChapterNumber)
	switch {
	case err == nil:
		view.ChoiceID = &choice.ID
		view.ChoiceQuestion = choice.Question
		view.Choices = choice.Options
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("failed to load choice: %w", err)
	}
	return view, nil
}

// ListChildSessions - история чтения ребенка, новые сессии первыми.
func (s *sessionServiceImpl) ListChildSessions(ctx context.Context, parentID, childID uuid.UUID, limit int) ([]*models.StorySession, error) {
	if _, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > sessionHistoryLimit {
		limit = sessionHistoryLimit
	}
	sessions, err := s.sessionRepo.ListByChild(ctx, s.db, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateReadingProgress принимает накопленные клиентом значения. Итоги сессии не уменьшаются,
// в событие уходят только приращения.
func (s *sessionServiceImpl) UpdateReadingProgress(ctx context.Context, parentID, sessionID uuid.UUID, progress models.ReadingProgress) (*models.StorySession, error) {
	if progress.WordsRead < 0 || progress.ReadingDurationSeconds < 0 || progress.PauseCount < 0 {
		return nil, fmt.Errorf("%w: reading progress values must not be negative", models.ErrBadRequest)
	}
	session, _, err := s.getOwnedSession(ctx, parentID, sessionID)
	if err != nil {
		return nil, err
	}

	words := max(progress.WordsRead, session.WordsRead)
	seconds := max(progress.ReadingDurationSeconds, session.ReadingDurationSeconds)
	wpm := session.ReadingSpeedWPM
	if seconds > 0 {
		wpm = float64(words) * 60 / float64(seconds)
	}

	updated, err := s.sessionRepo.UpdateProgress(ctx, s.db, session.ID, progress, wpm)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update reading progress: %w", err)
	}

	wordsDelta := updated.WordsRead - session.WordsRead
	secondsDelta := updated.ReadingDurationSeconds - session.ReadingDurationSeconds
	if wordsDelta > 0 || secondsDelta > 0 {
		publishAll(ctx, s.publisher, s.logger, models.DomainEvent{
			Type:           models.EventReadingProgress,
			ChildID:        updated.ChildID,
			StoryID:        updated.StoryID,
			SessionID:      updated.ID,
			ChapterNumber:  updated.CurrentChapter,
			WordsRead:      max(wordsDelta, 0),
			ReadingSeconds: max(secondsDelta, 0),
		})
	}
	return updated, nil
}

func (s *sessionServiceImpl) BookmarkSession(ctx context.Context, parentID, sessionID uuid.UUID, bookmarked bool) (*models.StorySession, error) {
	if _, _, err := s.getOwnedSession(ctx, parentID, sessionID); err != nil {
		return nil, err
	}
	updated, err := s.sessionRepo.SetBookmark(ctx, s.db, sessionID, bookmarked)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update bookmark: %w", err)
	}
	return updated, nil
}

// CompleteSession помечает сессию прочитанной. Повторный вызов возвращает сессию без изменений.
func (s *sessionServiceImpl) CompleteSession(ctx context.Context, parentID, sessionID uuid.UUID) (*models.StorySession, error) {
	session, _, err := s.getOwnedSession(ctx, parentID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted {
		return session, nil
	}
	updated, err := s.sessionRepo.Complete(ctx, s.db, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	publishAll(ctx, s.publisher, s.logger, s.completedEvent(updated, nil))
	s.logger.Info("Session completed manually", zap.Stringer("sessionID", sessionID))
	return updated, nil
}

func (s *sessionServiceImpl) GetSessionAnalytics(ctx context.Context, parentID, sessionID uuid.UUID) (*models.SessionAnalytics, error) {
	session, _, err := s.getOwnedSession(ctx, parentID, sessionID)
	if err != nil {
		return nil, err
	}
	story, err := loadStory(ctx, s.storyRepo, s.db, session.StoryID)
	if err != nil {
		return nil, err
	}

	custom := lo.CountBy(session.ChoicesMade, func(r models.ChoiceRecord) bool {
		return r.ChoiceID == models.ChoiceTagCustom
	})
	decisions := lo.CountBy(session.ChoicesMade, func(r models.ChoiceRecord) bool {
		return r.ChoiceID != models.ChoiceTagContinue
	})
	return &models.SessionAnalytics{
		SessionID:            session.ID,
		StoryTitle:           story.Title,
		CompletionPercentage: session.CompletionPercentage,
		ChaptersRead:         session.CurrentChapter,
		ChoicesMade:          decisions,
		CustomChoices:        custom,
		ReadingMinutes:       float64(session.ReadingDurationSeconds) / 60,
		WordsRead:            session.WordsRead,
		ReadingSpeedWPM:      session.ReadingSpeedWPM,
		PauseCount:           session.PauseCount,
		IsCompleted:          session.IsCompleted,
	}, nil
}

// getOwnedSession загружает сессию и проверяет, что ребенок принадлежит родителю.
func (s *sessionServiceImpl) getOwnedSession(ctx context.Context, parentID, sessionID uuid.UUID) (*models.StorySession, *models.Child, error) {
	session, err := s.sessionRepo.GetByID(ctx, s.db, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, session.ChildID)
	if err != nil {
		if errors.Is(err, models.ErrChildNotFound) {
			return nil, nil, models.ErrSessionNotFound
		}
		return nil, nil, err
	}
	return session, child, nil
}
