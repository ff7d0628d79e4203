package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	maxChildNameLength = 50
	dashboardSessions  = 5
	dashboardWindow    = 7 * 24 * time.Hour
)

// Базовый балл чтения для каждого уровня.
var levelBaseScores = map[string]int{
	models.ReadingLevelBeginner:     30,
	models.ReadingLevelIntermediate: 60,
	models.ReadingLevelAdvanced:     85,
}

// CreateChildRequest - данные нового профиля.
type CreateChildRequest struct {
	Name         string   `json:"name" binding:"required"`
	Age          int      `json:"age" binding:"required"`
	Language     string   `json:"language,omitempty"`
	ReadingLevel string   `json:"reading_level,omitempty"`
	Interests    []string `json:"interests,omitempty"`
}

// AssessmentRequest - результаты теста на чтение.
type AssessmentRequest struct {
	CorrectAnswers int `json:"correct_answers"`
	TotalQuestions int `json:"total_questions" binding:"required"`
}

// ChildService управляет профилями детей родителя.
type ChildService interface {
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error)
	CreateChild(ctx context.Context, parentID uuid.UUID, req CreateChildRequest) (*models.Child, error)
	GetChild(ctx context.Context, parentID, childID uuid.UUID) (*models.Child, error)
	UpdateChild(ctx context.Context, parentID, childID uuid.UUID, update models.ChildUpdate) (*models.Child, error)
	DeleteChild(ctx context.Context, parentID, childID uuid.UUID) error
	AssessReading(ctx context.Context, parentID, childID uuid.UUID, req AssessmentRequest) (*models.ReadingAssessment, error)
	GetDashboard(ctx context.Context, parentID, childID uuid.UUID) (*models.ChildDashboard, error)
}

type childServiceImpl struct {
	db            interfaces.DBTX
	childRepo     interfaces.ChildRepository
	sessionRepo   interfaces.SessionRepository
	analyticsRepo interfaces.AnalyticsRepository
	cache         interfaces.Cache
	now           func() time.Time
	logger        *zap.Logger
}

func NewChildService(
	db interfaces.DBTX,
	childRepo interfaces.ChildRepository,
	sessionRepo interfaces.SessionRepository,
	analyticsRepo interfaces.AnalyticsRepository,
	cache interfaces.Cache,
	logger *zap.Logger,
) ChildService {
	return &childServiceImpl{
		db:            db,
		childRepo:     childRepo,
		sessionRepo:   sessionRepo,
		analyticsRepo: analyticsRepo,
		cache:         cache,
		now:           time.Now,
		logger:        logger.Named("ChildService"),
	}
}

func (s *childServiceImpl) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error) {
	children, err := s.childRepo.ListByParent(ctx, s.db, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return children, nil
}

func (s *childServiceImpl) CreateChild(ctx context.Context, parentID uuid.UUID, req CreateChildRequest) (*models.Child, error) {
	child := &models.Child{
		ID:           uuid.New(),
		ParentID:     parentID,
		Name:         strings.TrimSpace(req.Name),
		Age:          req.Age,
		Language:     lo.Ternary(req.Language == "", models.LanguageEnglish, req.Language),
		ReadingLevel: lo.Ternary(req.ReadingLevel == "", models.ReadingLevelBeginner, req.ReadingLevel),
		Interests:    normalizeInterests(req.Interests),
		IsActive:     true,
	}
	if err := validateChild(child); err != nil {
		return nil, err
	}
	child.ReadingLevelScore = InitialReadingScore(child.ReadingLevel, child.Age, len(child.Interests))

	if err := s.childRepo.Create(ctx, s.db, child); err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}
	s.dropParentCache(ctx, parentID)
	s.logger.Info("Child profile created",
		zap.Stringer("parentID", parentID),
		zap.Stringer("childID", child.ID),
		zap.Int("readingScore", child.ReadingLevelScore),
	)
	return child, nil
}

func (s *childServiceImpl) GetChild(ctx context.Context, parentID, childID uuid.UUID) (*models.Child, error) {
	return loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
}

// UpdateChild применяет частичное обновление. При смене уровня балл чтения пересчитывается от новой базы.
func (s *childServiceImpl) UpdateChild(ctx context.Context, parentID, childID uuid.UUID, update models.ChildUpdate) (*models.Child, error) {
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
	if err != nil {
		return nil, err
	}
	previousLevel := child.ReadingLevel

	if update.Name != nil {
		child.Name = strings.TrimSpace(*update.Name)
	}
	if update.Age != nil {
		child.Age = *update.Age
	}
	if update.Language != nil {
		child.Language = *update.Language
	}
	if update.ReadingLevel != nil {
		child.ReadingLevel = *update.ReadingLevel
	}
	if update.Interests != nil {
		child.Interests = normalizeInterests(*update.Interests)
	}
	if err := validateChild(child); err != nil {
		return nil, err
	}
	if child.ReadingLevel != previousLevel {
		child.ReadingLevelScore = RebaseReadingScore(child.ReadingLevelScore, previousLevel, child.ReadingLevel)
	}

	if err := s.childRepo.Update(ctx, s.db, child); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrChildNotFound
		}
		return nil, fmt.Errorf("failed to update child: %w", err)
	}
	s.dropChildCache(ctx, child)
	return child, nil
}

func (s *childServiceImpl) DeleteChild(ctx context.Context, parentID, childID uuid.UUID) error {
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
	if err != nil {
		return err
	}
	if err := s.childRepo.Delete(ctx, s.db, childID, parentID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrChildNotFound
		}
		return fmt.Errorf("failed to delete child: %w", err)
	}
	s.dropChildCache(ctx, child)
	s.logger.Info("Child profile deactivated", zap.Stringer("parentID", parentID), zap.Stringer("childID", childID))
	return nil
}

// AssessReading переводит результат теста в уровень чтения. Пороги растут на 5 за каждый год старше 7 лет.
func (s *childServiceImpl) AssessReading(ctx context.Context, parentID, childID uuid.UUID, req AssessmentRequest) (*models.ReadingAssessment, error) {
	if req.TotalQuestions <= 0 || req.CorrectAnswers < 0 || req.CorrectAnswers > req.TotalQuestions {
		return nil, fmt.Errorf("%w: correct_answers must be within 0..total_questions", models.ErrBadRequest)
	}
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
	if err != nil {
		return nil, err
	}

	percentage := float64(req.CorrectAnswers) / float64(req.TotalQuestions) * 100
	newLevel := LevelFromAssessment(percentage, child.Age)
	assessment := &models.ReadingAssessment{
		ChildID:        child.ID,
		CorrectAnswers: req.CorrectAnswers,
		TotalQuestions: req.TotalQuestions,
		Percentage:     percentage,
		PreviousLevel:  child.ReadingLevel,
		NewLevel:       newLevel,
		NewLevelScore:  child.ReadingLevelScore,
		AssessedAt:     s.now().UTC(),
	}
	if newLevel == child.ReadingLevel {
		return assessment, nil
	}

	child.ReadingLevelScore = RebaseReadingScore(child.ReadingLevelScore, child.ReadingLevel, newLevel)
	child.ReadingLevel = newLevel
	if err := s.childRepo.Update(ctx, s.db, child); err != nil {
		return nil, fmt.Errorf("failed to save assessment: %w", err)
	}
	s.dropChildCache(ctx, child)

	assessment.NewLevelScore = child.ReadingLevelScore
	assessment.LevelChanged = true
	s.logger.Info("Reading level changed after assessment",
		zap.Stringer("childID", child.ID),
		zap.String("from", assessment.PreviousLevel),
		zap.String("to", newLevel),
	)
	return assessment, nil
}

func (s *childServiceImpl) GetDashboard(ctx context.Context, parentID, childID uuid.UUID) (*models.ChildDashboard, error) {
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
	if err != nil {
		return nil, err
	}
	recent, err := s.sessionRepo.ListByChild(ctx, s.db, childID, dashboardSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent sessions: %w", err)
	}
	weekly, err := s.analyticsRepo.PeriodStats(ctx, s.db, childID, s.now().Add(-dashboardWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly stats: %w", err)
	}
	return &models.ChildDashboard{
		Child:                child,
		RecentSessions:       recent,
		WeeklyStoriesRead:    weekly.CompletedCount,
		WeeklyReadingMinutes: weekly.TotalSeconds / 60,
		TotalStoriesRead:     child.TotalStoriesCompleted,
		TotalReadingMinutes:  child.TotalReadingSeconds / 60,
		CurrentStreakDays:    child.CurrentStreakDays,
	}, nil
}

func (s *childServiceImpl) dropChildCache(ctx context.Context, child *models.Child) {
	for _, prefix := range []string{models.ChildAnalyticsCachePrefix(child.ID), models.RecommendationsCachePrefix(child.ID)} {
		if err := s.cache.DeleteByPrefix(ctx, prefix); err != nil {
			s.logger.Warn("Failed to drop child cache", zap.String("prefix", prefix), zap.Error(err))
		}
	}
	s.dropParentCache(ctx, child.ParentID)
}

func (s *childServiceImpl) dropParentCache(ctx context.Context, parentID uuid.UUID) {
	if err := s.cache.Delete(ctx, models.ParentDashboardCacheKey(parentID)); err != nil {
		s.logger.Warn("Failed to drop parent dashboard cache", zap.Stringer("parentID", parentID), zap.Error(err))
	}
}

// InitialReadingScore - стартовый балл: база уровня, +5 за каждый год старше 7 лет, +2 за интерес (не больше 10).
func InitialReadingScore(level string, age, interests int) int {
	score := baseScore(level)
	score += max(0, (age-models.MinChildAge)*5)
	score += min(10, interests*2)
	return min(100, score)
}

// RebaseReadingScore переносит отклонение балла от базы старого уровня на базу нового.
func RebaseReadingScore(current int, oldLevel, newLevel string) int {
	return max(0, min(100, baseScore(newLevel)+current-baseScore(oldLevel)))
}

// LevelFromAssessment выбирает уровень по проценту верных ответов.
func LevelFromAssessment(percentage float64, age int) string {
	adjustment := float64((age - models.MinChildAge) * 5)
	switch {
	case percentage < 40+adjustment:
		return models.ReadingLevelBeginner
	case percentage < 70+adjustment:
		return models.ReadingLevelIntermediate
	default:
		return models.ReadingLevelAdvanced
	}
}

func baseScore(level string) int {
	if score, ok := levelBaseScores[level]; ok {
		return score
	}
	return levelBaseScores[models.ReadingLevelBeginner]
}

func normalizeInterests(interests []string) []string {
	out := make([]string, 0, len(interests))
	for _, interest := range interests {
		if v := strings.ToLower(strings.TrimSpace(interest)); v != "" {
			out = append(out, v)
		}
	}
	return lo.Uniq(out)
}

func validateChild(child *models.Child) error {
	if child.Name == "" || utf8.RuneCountInString(child.Name) > maxChildNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", models.ErrBadRequest, maxChildNameLength)
	}
	if child.Age < models.MinChildAge || child.Age > models.MaxChildAge {
		return fmt.Errorf("%w: age must be between %d and %d", models.ErrBadRequest, models.MinChildAge, models.MaxChildAge)
	}
	if child.Language != models.LanguageEnglish && child.Language != models.LanguageHebrew {
		return fmt.Errorf("%w: unsupported language %q", models.ErrBadRequest, child.Language)
	}
	if _, ok := levelBaseScores[child.ReadingLevel]; !ok {
		return fmt.Errorf("%w: unsupported reading level %q", models.ErrBadRequest, child.ReadingLevel)
	}
	if unknown, _ := lo.Difference(child.Interests, models.AllowedInterests); len(unknown) > 0 {
		return fmt.Errorf("%w: unsupported interests %s", models.ErrBadRequest, strings.Join(unknown, ", "))
	}
	return nil
}
