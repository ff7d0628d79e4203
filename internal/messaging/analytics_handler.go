package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"go.uber.org/zap"
)

// processedEventTTL - сколько помнить обработанные события для отсева повторных доставок.
const processedEventTTL = 24 * time.Hour

// AnalyticsHandler переносит события чтения в агрегаты профиля ребенка и сбрасывает кэш аналитики.
type AnalyticsHandler struct {
	db        interfaces.DBTX
	childRepo interfaces.ChildRepository
	cache     interfaces.Cache
	logger    *zap.Logger
}

var _ interfaces.EventHandler = (*AnalyticsHandler)(nil)

func NewAnalyticsHandler(db interfaces.DBTX, childRepo interfaces.ChildRepository, cache interfaces.Cache, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		db:        db,
		childRepo: childRepo,
		cache:     cache,
		logger:    logger.Named("AnalyticsHandler"),
	}
}

func (h *AnalyticsHandler) Handle(ctx context.Context, event models.DomainEvent) error {
	logFields := []zap.Field{
		zap.String("type", event.Type),
		zap.String("eventID", event.EventID),
		zap.String("childID", event.ChildID.String()),
	}

	delta, ok := totalsDelta(event)
	if !ok {
		h.logger.Debug("Event does not affect reading totals", logFields...)
		return nil
	}

	if event.EventID != "" {
		var seen bool
		found, err := h.cache.Get(ctx, models.ProcessedEventCacheKey(event.EventID), &seen)
		if err != nil {
			h.logger.Warn("Failed to check processed events, handling anyway", append(logFields, zap.Error(err))...)
		} else if found {
			h.logger.Info("Duplicate event skipped", logFields...)
			return nil
		}
	}

	child, err := h.childRepo.GetByID(ctx, h.db, event.ChildID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Профиль удален, события по нему больше не нужны.
			h.logger.Warn("Event for unknown child dropped", logFields...)
			return nil
		}
		return fmt.Errorf("failed to load child for event %s: %w", event.EventID, err)
	}

	if err := h.childRepo.ApplyReadingTotals(ctx, h.db, event.ChildID, delta); err != nil {
		return fmt.Errorf("failed to apply event %s: %w", event.EventID, err)
	}

	if event.EventID != "" {
		if err := h.cache.Set(ctx, models.ProcessedEventCacheKey(event.EventID), true, processedEventTTL); err != nil {
			h.logger.Warn("Failed to remember processed event", append(logFields, zap.Error(err))...)
		}
	}
	h.invalidate(ctx, child, logFields)

	h.logger.Info("Reading totals updated", append(logFields,
		zap.Int("stories", delta.StoriesCompleted),
		zap.Int("seconds", delta.ReadingSeconds),
		zap.Int("words", delta.WordsRead),
	)...)
	return nil
}

func (h *AnalyticsHandler) invalidate(ctx context.Context, child *models.Child, logFields []zap.Field) {
	if err := h.cache.DeleteByPrefix(ctx, models.ChildAnalyticsCachePrefix(child.ID)); err != nil {
		h.logger.Warn("Failed to drop child analytics cache", append(logFields, zap.Error(err))...)
	}
	if err := h.cache.Delete(ctx, models.ParentDashboardCacheKey(child.ParentID)); err != nil {
		h.logger.Warn("Failed to drop parent dashboard cache", append(logFields, zap.Error(err))...)
	}
}

// totalsDelta возвращает приращения агрегатов для события. ok=false для событий, которые агрегаты не меняют.
func totalsDelta(event models.DomainEvent) (models.ReadingTotalsDelta, bool) {
	activeAt := event.OccurredAt
	if activeAt.IsZero() {
		activeAt = time.Now().UTC()
	}
	switch event.Type {
	case models.EventSessionCompleted:
		return models.ReadingTotalsDelta{
			StoriesCompleted: 1,
			VocabularyWords:  max(event.VocabularyWords, 0),
			ActiveAt:         activeAt,
		}, true
	case models.EventReadingProgress:
		if event.WordsRead <= 0 && event.ReadingSeconds <= 0 {
			return models.ReadingTotalsDelta{}, false
		}
		return models.ReadingTotalsDelta{
			ReadingSeconds: max(event.ReadingSeconds, 0),
			WordsRead:      max(event.WordsRead, 0),
			ActiveAt:       activeAt,
		}, true
	default:
		return models.ReadingTotalsDelta{}, false
	}
}
