package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig - настройки OpenAI-совместимого бэкенда.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	ModerationModel string
	Timeout         time.Duration
	Retry           RetryConfig
}

// OpenAIClient реализует Client, StructuredGenerator и Moderator.
type OpenAIClient struct {
	client *openaigo.Client
	cfg    OpenAIConfig
	logger *zap.Logger
}

var (
	_ Client              = (*OpenAIClient)(nil)
	_ StructuredGenerator = (*OpenAIClient)(nil)
	_ Moderator           = (*OpenAIClient)(nil)
)

// NewOpenAIClient создает клиента OpenAI API (или совместимого сервера, если задан BaseURL).
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openaigo.GPT4oMini
	}
	clientConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openaigo.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger.Named("OpenAIClient"),
	}, nil
}

func (c *OpenAIClient) ModelName() string { return c.cfg.Model }

func (c *OpenAIClient) buildRequest(systemPrompt, userPrompt string, params GenerationParams) openaigo.ChatCompletionRequest {
	messages := make([]openaigo.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: userPrompt})

	req := openaigo.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: messages,
	}
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = float32(*params.TopP)
	}
	return req
}

func (c *OpenAIClient) chat(ctx context.Context, kind string, req openaigo.ChatCompletionRequest) (string, error) {
	start := time.Now()
	resp, err := doWithRetry(ctx, c.cfg.Retry, c.logger, c.cfg.Model, kind,
		func(ctx context.Context) (openaigo.ChatCompletionResponse, error) {
			return c.client.CreateChatCompletion(ctx, req)
		})
	aiRequestDuration.WithLabelValues(c.cfg.Model, kind).Observe(time.Since(start).Seconds())
	if err != nil {
		aiRequestsTotal.WithLabelValues(c.cfg.Model, kind, "error").Inc()
		c.logger.Error("OpenAI chat completion failed", zap.String("kind", kind), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		aiRequestsTotal.WithLabelValues(c.cfg.Model, kind, "empty").Inc()
		return "", fmt.Errorf("%w: empty response from model %s", ErrAIGenerationFailed, c.cfg.Model)
	}
	aiRequestsTotal.WithLabelValues(c.cfg.Model, kind, "success").Inc()
	observeUsage(c.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	c.logger.Debug("OpenAI chat completion finished",
		zap.String("kind", kind),
		zap.Int("promptTokens", resp.Usage.PromptTokens),
		zap.Int("completionTokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

// GenerateText реализует Client.
func (c *OpenAIClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	return c.chat(ctx, "text", c.buildRequest(systemPrompt, userPrompt, params))
}

// GenerateStructured реализует StructuredGenerator через response_format json_schema.
func (c *OpenAIClient) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema JSONSchema, params GenerationParams) (json.RawMessage, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	req := c.buildRequest(systemPrompt, userPrompt, params)
	req.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
		Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
			Name:        schema.Name,
			Description: schema.Description,
			Schema:      schema.Schema,
			Strict:      true,
		},
	}
	content, err := c.chat(ctx, "structured", req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(strings.TrimSpace(content)), nil
}

// Moderate реализует Moderator через /v1/moderations.
func (c *OpenAIClient) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	model := c.cfg.ModerationModel
	if model == "" {
		model = openaigo.ModerationOmniLatest
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.cfg.Retry, c.logger, model, "moderation",
		func(ctx context.Context) (openaigo.ModerationResponse, error) {
			return c.client.Moderations(ctx, openaigo.ModerationRequest{Input: text, Model: model})
		})
	aiRequestDuration.WithLabelValues(model, "moderation").Observe(time.Since(start).Seconds())
	if err != nil {
		aiRequestsTotal.WithLabelValues(model, "moderation", "error").Inc()
		return ModerationResult{}, fmt.Errorf("%w: %v", ErrModerationUnavailable, err)
	}
	aiRequestsTotal.WithLabelValues(model, "moderation", "success").Inc()
	if len(resp.Results) == 0 {
		return ModerationResult{}, fmt.Errorf("%w: empty moderation response", ErrModerationUnavailable)
	}

	r := resp.Results[0]
	result := ModerationResult{Flagged: r.Flagged, Scores: map[string]float64{}}
	for _, cat := range []struct {
		name    string
		flagged bool
		score   float32
	}{
		{"hate", r.Categories.Hate, r.CategoryScores.Hate},
		{"hate/threatening", r.Categories.HateThreatening, r.CategoryScores.HateThreatening},
		{"harassment", r.Categories.Harassment, r.CategoryScores.Harassment},
		{"harassment/threatening", r.Categories.HarassmentThreatening, r.CategoryScores.HarassmentThreatening},
		{"self-harm", r.Categories.SelfHarm, r.CategoryScores.SelfHarm},
		{"self-harm/intent", r.Categories.SelfHarmIntent, r.CategoryScores.SelfHarmIntent},
		{"self-harm/instructions", r.Categories.SelfHarmInstructions, r.CategoryScores.SelfHarmInstructions},
		{"sexual", r.Categories.Sexual, r.CategoryScores.Sexual},
		{"sexual/minors", r.Categories.SexualMinors, r.CategoryScores.SexualMinors},
		{"violence", r.Categories.Violence, r.CategoryScores.Violence},
		{"violence/graphic", r.Categories.ViolenceGraphic, r.CategoryScores.ViolenceGraphic},
	} {
		result.Scores[cat.name] = float64(cat.score)
		if cat.flagged {
			result.Categories = append(result.Categories, cat.name)
		}
	}
	return result, nil
}
