package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	maxAnalyticsDays     = 365
	favoriteThemesLimit  = 5
	weeklyWindow         = 7 * 24 * time.Hour
	storyActivityMinutes = 10 // вес прочитанной истории при выборе самого активного ребенка
)

// AnalyticsService строит сводки для родителя и ребенка. Результаты кэшируются и сбрасываются потребителем событий.
type AnalyticsService interface {
	GetParentDashboard(ctx context.Context, parentID uuid.UUID) (*models.ParentDashboard, error)
	GetChildAnalytics(ctx context.Context, parentID, childID uuid.UUID, days int) (*models.ChildAnalytics, error)
}

type analyticsServiceImpl struct {
	db            interfaces.DBTX
	childRepo     interfaces.ChildRepository
	analyticsRepo interfaces.AnalyticsRepository
	cache         interfaces.Cache
	cacheTTL      time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func NewAnalyticsService(
	db interfaces.DBTX,
	childRepo interfaces.ChildRepository,
	analyticsRepo interfaces.AnalyticsRepository,
	cache interfaces.Cache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) AnalyticsService {
	return &analyticsServiceImpl{
		db:            db,
		childRepo:     childRepo,
		analyticsRepo: analyticsRepo,
		cache:         cache,
		cacheTTL:      cacheTTL,
		now:           time.Now,
		logger:        logger.Named("AnalyticsService"),
	}
}

func (s *analyticsServiceImpl) GetParentDashboard(ctx context.Context, parentID uuid.UUID) (*models.ParentDashboard, error) {
	key := models.ParentDashboardCacheKey(parentID)
	var cached models.ParentDashboard
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	children, err := s.childRepo.ListByParent(ctx, s.db, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	weekly, err := s.analyticsRepo.WeeklySummaries(ctx, s.db, parentID, s.now().Add(-weeklyWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly summaries: %w", err)
	}

	dashboard := &models.ParentDashboard{Children: weekly}
	for _, child := range children {
		dashboard.TotalStoriesCompleted += child.TotalStoriesCompleted
		dashboard.TotalReadingMinutes += child.TotalReadingSeconds / 60
		dashboard.FamilyStreakDays = max(dashboard.FamilyStreakDays, child.CurrentStreakDays)
	}

	bestActivity := 0
	for _, summary := range weekly {
		dashboard.WeeklyStoriesCompleted += summary.StoriesCompleted
		dashboard.WeeklyReadingMinutes += summary.ReadingMinutes
		if activity := summary.ReadingMinutes + summary.StoriesCompleted*storyActivityMinutes; activity > bestActivity {
			bestActivity = activity
			id := summary.ChildID
			dashboard.MostActiveChildID = &id
		}
	}

	s.toCache(ctx, key, dashboard)
	return dashboard, nil
}

func (s *analyticsServiceImpl) GetChildAnalytics(ctx context.Context, parentID, childID uuid.UUID, days int) (*models.ChildAnalytics, error) {
	if days < 1 || days > maxAnalyticsDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", models.ErrBadRequest, maxAnalyticsDays)
	}
	child, err := loadOwnedChild(ctx, s.childRepo, s.db, parentID, childID)
	if err != nil {
		return nil, err
	}

	key := models.ChildAnalyticsCacheKey(childID, days)
	var cached models.ChildAnalytics
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	now := s.now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := s.analyticsRepo.PeriodStats(ctx, s.db, childID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load period stats: %w", err)
	}
	themes, err := s.analyticsRepo.FavoriteThemes(ctx, s.db, childID, since, favoriteThemesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorite themes: %w", err)
	}

	averageSession := 0.0
	if stats.SessionsCount > 0 {
		averageSession = roundTenth(float64(stats.TotalSeconds) / 60 / float64(stats.SessionsCount))
	}
	analytics := &models.ChildAnalytics{
		ChildID:    child.ID,
		ChildName:  child.Name,
		PeriodDays: days,
		ReadingMetrics: models.ReadingMetrics{
			TotalReadingMinutes:   stats.TotalSeconds / 60,
			StoriesCompleted:      stats.CompletedCount,
			AverageSessionMinutes: averageSession,
			WordsRead:             stats.TotalWords,
			AverageReadingSpeed:   roundTenth(stats.AverageWPM),
		},
		Engagement: models.EngagementMetrics{
			CompletionRate:       percentOf(stats.CompletedCount, stats.SessionsCount),
			ReturnVisitRate:      percentOf(stats.ReturnVisitSessions, stats.SessionsCount),
			AverageAttentionSpan: averageSession,
			SessionsStarted:      stats.SessionsCount,
		},
		FavoriteThemes: lo.Ternary(themes == nil, []models.ThemeCount{}, themes),
		ReadingLevel:   child.ReadingLevel,
		ReadingScore:   child.ReadingLevelScore,
		GeneratedAt:    now,
	}

	s.toCache(ctx, key, analytics)
	return analytics, nil
}

// Ошибки кэша не ломают ответ: аналитика просто считается заново.
func (s *analyticsServiceImpl) fromCache(ctx context.Context, key string, dest interface{}) bool {
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("Analytics cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return found
}

func (s *analyticsServiceImpl) toCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("Analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func percentOf(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return roundTenth(float64(part) * 100 / float64(total))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
