package mocks

import (
	"context"
	"encoding/json"

	"reading-platform/internal/ai"

	"github.com/stretchr/testify/mock"
)

// Client - мок ai.Client
type Client struct {
	mock.Mock
}

func (m *Client) GenerateText(ctx context.Context, systemPrompt, userPrompt string, params ai.GenerationParams) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, params)
	return args.String(0), args.Error(1)
}

func (m *Client) ModelName() string {
	return "mock-model"
}

// StructuredGenerator - мок ai.StructuredGenerator
type StructuredGenerator struct {
	mock.Mock
}

func (m *StructuredGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema ai.JSONSchema, params ai.GenerationParams) (json.RawMessage, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, schema, params)
	var raw json.RawMessage
	if v := args.Get(0); v != nil {
		raw = v.(json.RawMessage)
	}
	return raw, args.Error(1)
}

// Moderator - мок ai.Moderator
type Moderator struct {
	mock.Mock
}

func (m *Moderator) Moderate(ctx context.Context, text string) (ai.ModerationResult, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(ai.ModerationResult), args.Error(1)
}
