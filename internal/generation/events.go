package generation

import (
	"strings"

	"reading-platform/internal/models"
)

// Типы событий потока генерации.
const (
	EventNodeStatus  = "node_event"
	EventContent     = "content"
	EventSafetyCheck = "safety_check"
	EventMetadata    = "metadata"
	EventComplete    = "complete"
	EventError       = "error"
)

// Статусы узлов.
const (
	NodeStarted   = "started"
	NodeCompleted = "completed"
)

// Event - одно событие потока. Сериализуется как {"type": ..., "data": ...}.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type NodeEventData struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

type ContentEventData struct {
	Chunk      string `json:"chunk"`
	Index      int    `json:"index"`
	IsComplete bool   `json:"is_complete"`
}

type SafetyEventData struct {
	Approved bool                 `json:"approved"`
	Score    float64              `json:"score"`
	Issues   []models.SafetyIssue `json:"issues"`
	Decision string               `json:"decision"`
}

type MetadataEventData struct {
	EstimatedReadingTime int                   `json:"estimated_reading_time"`
	VocabularyLevel      string                `json:"vocabulary_level"`
	EducationalElements  []string              `json:"educational_elements"`
	VocabularyWords      []string              `json:"vocabulary_words"`
	ChoiceQuestion       string                `json:"choice_question"`
	Choices              []models.ChoiceOption `json:"choices"`
	Regenerations        int                   `json:"regenerations"`
	Enhancements         int                   `json:"enhancements"`
}

type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventSink получает события прогона. Оркестратор отправляет события узлов,
// фрагменты текста, результат проверки и метаданные; complete и error
// отправляет вызывающая сторона после сохранения результата.
type EventSink interface {
	Emit(event Event)
}

// SinkFunc позволяет использовать функцию как EventSink.
type SinkFunc func(event Event)

func (f SinkFunc) Emit(event Event) { f(event) }

// Paragraphs делит текст на абзацы по пустым строкам.
func Paragraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = append(out, strings.TrimSpace(text))
	}
	return out
}
