package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultTotalChapters = 3

// Story - интерактивная история. OwnerID равен nil для историй из общего каталога.
type Story struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	OwnerID              *uuid.UUID `json:"owner_id,omitempty" db:"owner_id"`
	Title                string     `json:"title" db:"title"`
	Description          string     `json:"description" db:"description"`
	Language             string     `json:"language" db:"language"`
	DifficultyLevel      string     `json:"difficulty_level" db:"difficulty_level"`
	Themes               []string   `json:"themes" db:"themes"`
	TargetAgeMin         int        `json:"target_age_min" db:"target_age_min"`
	TargetAgeMax         int        `json:"target_age_max" db:"target_age_max"`
	TotalChapters        int        `json:"total_chapters" db:"total_chapters"`
	HasChoices           bool       `json:"has_choices" db:"has_choices"`
	SafetyScore          float64    `json:"safety_score" db:"safety_score"`
	IsPublished          bool       `json:"is_published" db:"is_published"`
	IsAIGenerated        bool       `json:"is_ai_generated" db:"is_ai_generated"`
	EstimatedReadingTime int        `json:"estimated_reading_time" db:"estimated_reading_time"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// Chapter неизменяема после создания. Номер главы уникален в пределах истории.
type Chapter struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	StoryID              uuid.UUID `json:"story_id" db:"story_id"`
	ChapterNumber        int       `json:"chapter_number" db:"chapter_number"`
	Title                string    `json:"title" db:"title"`
	Content              string    `json:"content" db:"content"`
	IsEnding             bool      `json:"is_ending" db:"is_ending"`
	EstimatedReadingTime int       `json:"estimated_reading_time" db:"estimated_reading_time"`
	WordCount            int       `json:"word_count" db:"word_count"`
	SafetyScore          float64   `json:"safety_score" db:"safety_score"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// ChoiceOption - один вариант выбора. Индекс варианта в срезе стабилен.
type ChoiceOption struct {
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

// Choice - точка выбора в конце главы (одна на главу).
type Choice struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	StoryID       uuid.UUID      `json:"story_id" db:"story_id"`
	ChapterNumber int            `json:"chapter_number" db:"chapter_number"`
	Question      string         `json:"question" db:"question"`
	Options       []ChoiceOption `json:"options" db:"options"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// Branch связывает вариант выбора с главой, к которой он ведет.
// Content заполняется один раз и больше не меняется.
type Branch struct {
	ID             uuid.UUID `json:"id" db:"id"`
	StoryID        uuid.UUID `json:"story_id" db:"story_id"`
	ChoiceID       uuid.UUID `json:"choice_id" db:"choice_id"`
	OptionIndex    int       `json:"option_index" db:"option_index"`
	LeadsToChapter int       `json:"leads_to_chapter" db:"leads_to_chapter"`
	IsEnding       bool      `json:"is_ending" db:"is_ending"`
	Content        *string   `json:"content,omitempty" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// StoryFilter - параметры выборки опубликованных историй.
type StoryFilter struct {
	Language        string
	Theme           string
	DifficultyLevel string
	MinAge          int
	MaxAge          int
	Limit           int
	Offset          int
}

// StoryWithChapters используется в ответе GET /stories/:id.
type StoryWithChapters struct {
	Story    *Story     `json:"story"`
	Chapters []*Chapter `json:"chapters"`
}
