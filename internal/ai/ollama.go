package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaConfig - настройки локального Ollama сервера.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   RetryConfig
}

// OllamaClient реализует Client и StructuredGenerator (поле format в /api/chat).
type OllamaClient struct {
	client *api.Client
	cfg    OllamaConfig
	logger *zap.Logger
}

var (
	_ Client              = (*OllamaClient)(nil)
	_ StructuredGenerator = (*OllamaClient)(nil)
)

// NewOllamaClient создает клиента Ollama. Суффикс /v1 в адресе отбрасывается:
// нативный API живет в корне сервера.
func NewOllamaClient(cfg OllamaConfig, logger *zap.Logger) (*OllamaClient, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	parsedURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	return &OllamaClient{
		client: api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout}),
		cfg:    cfg,
		logger: logger.Named("OllamaClient"),
	}, nil
}

func (c *OllamaClient) ModelName() string { return c.cfg.Model }

func (c *OllamaClient) chat(ctx context.Context, kind, systemPrompt, userPrompt string, format json.RawMessage, params GenerationParams) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	messages := make([]api.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: userPrompt})

	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   &stream,
		Format:   format,
		Options:  options,
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.cfg.Retry, c.logger, c.cfg.Model, kind,
		func(ctx context.Context) (api.ChatResponse, error) {
			var last api.ChatResponse
			err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
				last = r
				return nil
			})
			return last, err
		})
	aiRequestDuration.WithLabelValues(c.cfg.Model, kind).Observe(time.Since(start).Seconds())
	if err != nil {
		aiRequestsTotal.WithLabelValues(c.cfg.Model, kind, "error").Inc()
		c.logger.Error("Ollama chat failed", zap.String("kind", kind), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	aiRequestsTotal.WithLabelValues(c.cfg.Model, kind, "success").Inc()
	observeUsage(c.cfg.Model, resp.PromptEvalCount, resp.EvalCount)

	c.logger.Debug("Ollama chat finished",
		zap.String("kind", kind),
		zap.Int("promptTokens", resp.PromptEvalCount),
		zap.Int("completionTokens", resp.EvalCount),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Message.Content, nil
}

// GenerateText реализует Client.
func (c *OllamaClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error) {
	return c.chat(ctx, "text", systemPrompt, userPrompt, nil, params)
}

// GenerateStructured реализует StructuredGenerator: JSON-схема передается в поле format.
func (c *OllamaClient) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema JSONSchema, params GenerationParams) (json.RawMessage, error) {
	content, err := c.chat(ctx, "structured", systemPrompt, userPrompt, schema.Schema, params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(strings.TrimSpace(content)), nil
}
