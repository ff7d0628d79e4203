package models

import (
	"time"

	"github.com/google/uuid"
)

// Поддерживаемые языки.
const (
	LanguageEnglish = "english"
	LanguageHebrew  = "hebrew"
)

// Уровни чтения.
const (
	ReadingLevelBeginner     = "beginner"
	ReadingLevelIntermediate = "intermediate"
	ReadingLevelAdvanced     = "advanced"
)

const (
	MinChildAge = 7
	MaxChildAge = 12
)

// AllowedInterests - интересы, которые можно указать в профиле ребенка.
var AllowedInterests = []string{
	"animals", "adventure", "fantasy", "science", "mystery",
	"friendship", "family", "sports", "music", "art", "nature",
}

// Child - профиль ребенка. Ядро генерации читает его, но никогда не изменяет.
type Child struct {
	ID                     uuid.UUID  `json:"id" db:"id"`
	ParentID               uuid.UUID  `json:"parent_id" db:"parent_id"`
	Name                   string     `json:"name" db:"name"`
	Age                    int        `json:"age" db:"age"`
	Language               string     `json:"language" db:"language"`
	ReadingLevel           string     `json:"reading_level" db:"reading_level"`
	Interests              []string   `json:"interests" db:"interests"`
	ReadingLevelScore      int        `json:"reading_level_score" db:"reading_level_score"`
	TotalStoriesCompleted  int        `json:"total_stories_completed" db:"total_stories_completed"`
	TotalReadingSeconds    int        `json:"total_reading_seconds" db:"total_reading_seconds"`
	TotalWordsRead         int        `json:"total_words_read" db:"total_words_read"`
	VocabularyWordsLearned int        `json:"vocabulary_words_learned" db:"vocabulary_words_learned"`
	CurrentStreakDays      int        `json:"current_streak_days" db:"current_streak_days"`
	LongestStreakDays      int        `json:"longest_streak_days" db:"longest_streak_days"`
	LastActiveAt           *time.Time `json:"last_active_at,omitempty" db:"last_active_at"`
	IsActive               bool       `json:"is_active" db:"is_active"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
}

// ChildUpdate - частичное обновление профиля. nil означает "не менять".
type ChildUpdate struct {
	Name         *string   `json:"name,omitempty"`
	Age          *int      `json:"age,omitempty"`
	Language     *string   `json:"language,omitempty"`
	ReadingLevel *string   `json:"reading_level,omitempty"`
	Interests    *[]string `json:"interests,omitempty"`
}

// ReadingTotalsDelta - приращения агрегатов чтения, применяемые потребителем событий.
type ReadingTotalsDelta struct {
	StoriesCompleted int
	ReadingSeconds   int
	WordsRead        int
	VocabularyWords  int
	ActiveAt         time.Time
}
