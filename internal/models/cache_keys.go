package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Ключи кэша. Префикс аналитики ребенка общий для всех периодов, чтобы сбрасывать их разом.

func ChildAnalyticsCachePrefix(childID uuid.UUID) string {
	return fmt.Sprintf("analytics:child:%s:", childID)
}

func ChildAnalyticsCacheKey(childID uuid.UUID, days int) string {
	return fmt.Sprintf("%s%d", ChildAnalyticsCachePrefix(childID), days)
}

func ParentDashboardCacheKey(parentID uuid.UUID) string {
	return fmt.Sprintf("analytics:parent:%s", parentID)
}

func RecommendationsCachePrefix(childID uuid.UUID) string {
	return fmt.Sprintf("recommendations:%s:", childID)
}

func RecommendationsCacheKey(childID uuid.UUID, limit int) string {
	return fmt.Sprintf("%s%d", RecommendationsCachePrefix(childID), limit)
}

func ProcessedEventCacheKey(eventID string) string {
	return "events:processed:" + eventID
}

// SafetyReportCacheKey принимает hex-дайджест входа проверки.
func SafetyReportCacheKey(digest string) string {
	return "safety:report:" + digest
}
