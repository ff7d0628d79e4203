package models

import (
	"time"

	"github.com/google/uuid"
)

// Синтетические идентификаторы выбора в журнале сессии.
const (
	ChoiceTagContinue = "continue"
	ChoiceTagCustom   = "custom"
)

// ChoiceRecord - запись журнала выборов сессии.
type ChoiceRecord struct {
	ChoiceID     string    `json:"choice_id"`
	OptionIndex  int       `json:"option_index"`
	Chapter      int       `json:"chapter"`
	Question     string    `json:"question,omitempty"`
	ChosenOption string    `json:"chosen_option,omitempty"`
	CustomText   string    `json:"custom_text,omitempty"`
	MadeAt       time.Time `json:"made_at"`
}

// StorySession - прогресс ребенка по одной истории.
// CompletionPercentage не убывает, IsCompleted выставляется один раз.
type StorySession struct {
	ID                     uuid.UUID      `json:"id" db:"id"`
	ChildID                uuid.UUID      `json:"child_id" db:"child_id"`
	StoryID                uuid.UUID      `json:"story_id" db:"story_id"`
	CurrentChapter         int            `json:"current_chapter" db:"current_chapter"`
	ChoicesMade            []ChoiceRecord `json:"choices_made" db:"choices_made"`
	CompletionPercentage   int            `json:"completion_percentage" db:"completion_percentage"`
	IsCompleted            bool           `json:"is_completed" db:"is_completed"`
	IsBookmarked           bool           `json:"is_bookmarked" db:"is_bookmarked"`
	ReadingDurationSeconds int            `json:"reading_duration_seconds" db:"reading_duration_seconds"`
	WordsRead              int            `json:"words_read" db:"words_read"`
	ReadingSpeedWPM        float64        `json:"reading_speed_wpm" db:"reading_speed_wpm"`
	PauseCount             int            `json:"pause_count" db:"pause_count"`
	StartedAt              time.Time      `json:"started_at" db:"started_at"`
	LastAccessedAt         time.Time      `json:"last_accessed_at" db:"last_accessed_at"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// ReadingProgress - данные о чтении, присылаемые клиентом.
type ReadingProgress struct {
	WordsRead              int `json:"words_read"`
	ReadingDurationSeconds int `json:"reading_duration_seconds"`
	PauseCount             int `json:"pause_count"`
}

// ChapterView - текущая глава сессии вместе с вариантами выбора.
type ChapterView struct {
	SessionID      uuid.UUID      `json:"session_id"`
	StoryID        uuid.UUID      `json:"story_id"`
	ChapterNumber  int            `json:"chapter_number"`
	TotalChapters  int            `json:"total_chapters"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	IsEnding       bool           `json:"is_ending"`
	ChoiceID       *uuid.UUID     `json:"choice_id,omitempty"`
	ChoiceQuestion string         `json:"choice_question,omitempty"`
	Choices        []ChoiceOption `json:"choices"`
}

// AdvanceResult - результат перехода сессии к следующей главе.
type AdvanceResult struct {
	SessionID            uuid.UUID      `json:"session_id"`
	CurrentChapter       int            `json:"current_chapter"`
	Content              string         `json:"content"`
	ChoiceID             *uuid.UUID     `json:"choice_id,omitempty"`
	ChoiceQuestion       string         `json:"choice_question,omitempty"`
	Choices              []ChoiceOption `json:"choices"`
	IsEnding             bool           `json:"is_ending"`
	CompletionPercentage int            `json:"completion_percentage"`
	IsCompleted          bool           `json:"is_completed"`
	Generated            bool           `json:"generated"`

	// CustomInputIgnored - свой текст читателя не учтен, потому что следующая глава уже была написана.
	CustomInputIgnored bool `json:"custom_input_ignored,omitempty"`
}
