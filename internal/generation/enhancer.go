package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reading-platform/internal/ai"
	"reading-platform/internal/models"

	"go.uber.org/zap"
)

const (
	enhancerSystemPrompt = "You are a content safety specialist for children's educational materials."
	enhancerTemperature  = 0.3
)

// Enhancer делает одну попытку переписать пограничный текст.
type Enhancer struct {
	client  ai.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewEnhancer(client ai.Client, timeout time.Duration, logger *zap.Logger) *Enhancer {
	return &Enhancer{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("Enhancer"),
	}
}

// Enhance возвращает переписанный текст. При ошибке модели возвращается
// исходный текст вместе с ошибкой.
func (e *Enhancer) Enhance(ctx context.Context, text string, issues []models.SafetyIssue, childAge int) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	enhanced, err := e.client.GenerateText(ctx, enhancerSystemPrompt, buildEnhancePrompt(text, issues, childAge),
		ai.GenerationParams{Temperature: ai.Float64(enhancerTemperature)})
	if err != nil {
		e.logger.Error("Content enhancement failed, keeping original text", zap.Error(err))
		return text, err
	}
	enhanced = strings.TrimSpace(enhanced)
	if enhanced == "" {
		e.logger.Warn("Content enhancement returned empty text, keeping original text")
		return text, fmt.Errorf("%w: empty enhancement", ai.ErrAIGenerationFailed)
	}
	return enhanced, nil
}

func buildEnhancePrompt(text string, issues []models.SafetyIssue, childAge int) string {
	var b strings.Builder
	b.WriteString("Rewrite the children's story passage below so it is safe and suitable for the reader.\n\n")
	b.WriteString("PASSAGE:\n")
	b.WriteString(text)
	b.WriteString("\n\nPROBLEMS FOUND:\n")
	if len(issues) == 0 {
		b.WriteString("- General tone is not suitable enough for a child\n")
	}
	for _, issue := range issues {
		fmt.Fprintf(&b, "- [%s] %s\n", issue.Severity, issue.Description)
	}
	fmt.Fprintf(&b, "\nREADER AGE: %d\n\n", childAge)
	b.WriteString("Soften or remove anything problematic, keep the language right for this age, ")
	b.WriteString("keep what makes the passage fun and educational, and leave the plot and the decision point unchanged.\n")
	b.WriteString("Reply with the rewritten passage only.")
	return b.String()
}
