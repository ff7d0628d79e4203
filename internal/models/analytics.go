package models

import (
	"time"

	"github.com/google/uuid"
)

// ChildDashboard - сводка для экрана ребенка.
type ChildDashboard struct {
	Child                *Child          `json:"child"`
	RecentSessions       []*StorySession `json:"recent_sessions"`
	WeeklyStoriesRead    int             `json:"weekly_stories_read"`
	WeeklyReadingMinutes int             `json:"weekly_reading_minutes"`
	TotalStoriesRead     int             `json:"total_stories_read"`
	TotalReadingMinutes  int             `json:"total_reading_minutes"`
	CurrentStreakDays    int             `json:"current_streak_days"`
}

// ReadingAssessment - результат оценки чтения.
type ReadingAssessment struct {
	ChildID        uuid.UUID `json:"child_id"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     float64   `json:"percentage"`
	PreviousLevel  string    `json:"previous_level"`
	NewLevel       string    `json:"new_level"`
	NewLevelScore  int       `json:"new_level_score"`
	LevelChanged   bool      `json:"level_changed"`
	AssessedAt     time.Time `json:"assessed_at"`
}

// PeriodStats - агрегаты сессий ребенка за период. Заполняется репозиторием.
type PeriodStats struct {
	SessionsCount       int     `db:"sessions_count"`
	CompletedCount      int     `db:"completed_count"`
	TotalSeconds        int     `db:"total_seconds"`
	TotalWords          int     `db:"total_words"`
	AverageWPM          float64 `db:"average_wpm"`
	ReturnVisitSessions int     `db:"return_visit_sessions"`
}

// ThemeCount - сколько раз тема встречалась в прочитанных историях.
type ThemeCount struct {
	Theme string `json:"theme" db:"theme"`
	Count int    `json:"count" db:"count"`
}

// ReadingMetrics - метрики чтения ребенка за период.
type ReadingMetrics struct {
	TotalReadingMinutes   int     `json:"total_reading_minutes"`
	StoriesCompleted      int     `json:"stories_completed"`
	AverageSessionMinutes float64 `json:"average_session_minutes"`
	WordsRead             int     `json:"words_read"`
	AverageReadingSpeed   float64 `json:"average_reading_speed"`
}

// EngagementMetrics - вовлеченность ребенка за период.
type EngagementMetrics struct {
	CompletionRate       float64 `json:"completion_rate"`
	ReturnVisitRate      float64 `json:"return_visit_rate"`
	AverageAttentionSpan float64 `json:"average_attention_span"`
	SessionsStarted      int     `json:"sessions_started"`
}

// ChildAnalytics - ответ GET /analytics/children/:id.
type ChildAnalytics struct {
	ChildID        uuid.UUID         `json:"child_id"`
	ChildName      string            `json:"child_name"`
	PeriodDays     int               `json:"period_days"`
	ReadingMetrics ReadingMetrics    `json:"reading_metrics"`
	Engagement     EngagementMetrics `json:"engagement"`
	FavoriteThemes []ThemeCount      `json:"favorite_themes"`
	ReadingLevel   string            `json:"reading_level"`
	ReadingScore   int               `json:"reading_score"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// ChildWeeklySummary - недельная сводка по одному ребенку.
type ChildWeeklySummary struct {
	ChildID          uuid.UUID `json:"child_id"`
	Name             string    `json:"name"`
	StoriesCompleted int       `json:"stories_completed"`
	ReadingMinutes   int       `json:"reading_minutes"`
	StreakDays       int       `json:"streak_days"`
}

// ParentDashboard - семейная сводка для родителя.
type ParentDashboard struct {
	Children               []ChildWeeklySummary `json:"children"`
	TotalStoriesCompleted  int                  `json:"total_stories_completed"`
	TotalReadingMinutes    int                  `json:"total_reading_minutes"`
	WeeklyStoriesCompleted int                  `json:"weekly_stories_completed"`
	WeeklyReadingMinutes   int                  `json:"weekly_reading_minutes"`
	MostActiveChildID      *uuid.UUID           `json:"most_active_child_id,omitempty"`
	FamilyStreakDays       int                  `json:"family_streak_days"`
}

// SessionAnalytics - аналитика одной сессии чтения.
type SessionAnalytics struct {
	SessionID            uuid.UUID `json:"session_id"`
	StoryTitle           string    `json:"story_title"`
	CompletionPercentage int       `json:"completion_percentage"`
	ChaptersRead         int       `json:"chapters_read"`
	ChoicesMade          int       `json:"choices_made"`
	CustomChoices        int       `json:"custom_choices"`
	ReadingMinutes       float64   `json:"reading_minutes"`
	WordsRead            int       `json:"words_read"`
	ReadingSpeedWPM      float64   `json:"reading_speed_wpm"`
	PauseCount           int       `json:"pause_count"`
	IsCompleted          bool      `json:"is_completed"`
}
