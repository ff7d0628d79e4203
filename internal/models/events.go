package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы доменных событий.
const (
	EventChapterGenerated = "chapter.generated"
	EventSessionCompleted = "session.completed"
	EventReadingProgress  = "reading.progress"
)

// DomainEvent публикуется после коммита транзакции.
// Для reading.progress поля WordsRead/ReadingSeconds содержат приращения, а не итоговые значения.
type DomainEvent struct {
	EventID         string    `json:"event_id"`
	Type            string    `json:"type"`
	ChildID         uuid.UUID `json:"child_id"`
	StoryID         uuid.UUID `json:"story_id"`
	SessionID       uuid.UUID `json:"session_id,omitempty"`
	ChapterNumber   int       `json:"chapter_number,omitempty"`
	WordsRead       int       `json:"words_read,omitempty"`
	ReadingSeconds  int       `json:"reading_seconds,omitempty"`
	VocabularyWords int       `json:"vocabulary_words,omitempty"`
	Generated       bool      `json:"generated,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
