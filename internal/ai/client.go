package ai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrAIGenerationFailed - ошибка при генерации текста AI
var ErrAIGenerationFailed = errors.New("AI generation failed")

// ErrModerationUnavailable - модерация не настроена или недоступна.
var ErrModerationUnavailable = errors.New("moderation backend unavailable")

// GenerationParams - параметры генерации. Указатели позволяют отличить 0 от "не задано".
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// Float64 и Int - помощники для заполнения GenerationParams.
func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }

// JSONSchema описывает ожидаемую структуру ответа модели.
type JSONSchema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Client генерирует текст по системному и пользовательскому промптам.
type Client interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error)
	ModelName() string
}

// StructuredGenerator возвращает JSON-объект, соответствующий схеме.
// Реализуется бэкендами, поддерживающими structured output.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema JSONSchema, params GenerationParams) (json.RawMessage, error)
}

// ModerationResult - ответ сервиса модерации.
type ModerationResult struct {
	Flagged    bool
	Categories []string
	Scores     map[string]float64
}

// Moderator проверяет текст сервисом модерации. Мягкая зависимость:
// вызывающая сторона обязана переживать ошибку.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationResult, error)
}

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_platform_ai_requests_total",
			Help: "Total number of requests to the AI backend.",
		},
		[]string{"model", "kind", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reading_platform_ai_request_duration_seconds",
			Help:    "Histogram of AI backend request durations.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
		[]string{"model", "kind"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reading_platform_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reading_platform_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model"},
	)
	aiRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_platform_ai_retries_total",
			Help: "Retried AI backend calls.",
		},
		[]string{"model", "kind"},
	)
)

func observeUsage(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		aiPromptTokens.WithLabelValues(model).Observe(float64(promptTokens))
	}
	if completionTokens > 0 {
		aiCompletionTokens.WithLabelValues(model).Observe(float64(completionTokens))
	}
}
