package ai

import (
	"fmt"

	"reading-platform/internal/config"

	"go.uber.org/zap"
)

// Backend - набор AI-зависимостей, собранный из конфигурации.
// Structured и Moderator могут быть nil.
type Backend struct {
	Client     Client
	Structured StructuredGenerator
	Moderator  Moderator
}

// NewBackend выбирает реализацию по AI_CLIENT_TYPE. Модерация требует ключ OpenAI
// и отключается (с предупреждением), если ключа нет.
func NewBackend(cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	retryCfg := RetryConfig{Attempts: cfg.AIMaxAttempts}
	backend := &Backend{}

	var openAI *OpenAIClient
	if cfg.OpenAIAPIKey != "" {
		var err error
		openAI, err = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.AITimeout,
			Retry:   retryCfg,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
	}

	switch cfg.AIClientType {
	case "openai":
		if openAI == nil {
			return nil, fmt.Errorf("AI_CLIENT_TYPE=openai requires OPENAI_API_KEY")
		}
		backend.Client = openAI
		if cfg.AIStructuredOutput {
			backend.Structured = openAI
		}
	case "ollama":
		ollama, err := NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaBaseURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.AITimeout,
			Retry:   retryCfg,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		backend.Client = ollama
		if cfg.AIStructuredOutput {
			backend.Structured = ollama
		}
	default:
		return nil, fmt.Errorf("unsupported AI client type: %s", cfg.AIClientType)
	}

	if cfg.ModerationEnabled {
		if openAI != nil {
			backend.Moderator = openAI
		} else {
			logger.Warn("Moderation enabled but OPENAI_API_KEY is empty, moderation sub-check disabled")
		}
	}

	logger.Info("AI backend initialised",
		zap.String("type", cfg.AIClientType),
		zap.String("model", backend.Client.ModelName()),
		zap.Bool("structuredOutput", backend.Structured != nil),
		zap.Bool("moderation", backend.Moderator != nil),
	)
	return backend, nil
}
