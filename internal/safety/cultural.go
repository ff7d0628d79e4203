package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"reading-platform/internal/ai"
	"reading-platform/internal/models"

	"go.uber.org/zap"
)

const (
	culturalSystemPrompt = "You are a cultural sensitivity expert for children's educational content."
	culturalTemperature  = 0.2

	culturalUnparsedScore = 0.8
	culturalFailedScore   = 0.7

	recCulturalManualReview = "Manual cultural sensitivity review recommended"
	recAnalysisFailed       = "Manual review recommended due to analysis failure"
)

type culturalOutcome struct {
	score           float64
	issues          []models.SafetyIssue
	recommendations []string
}

type culturalAnswer struct {
	Score           *float64          `json:"score"`
	Issues          []json.RawMessage `json:"issues"`
	Recommendations []json.RawMessage `json:"recommendations"`
}

func (e *Evaluator) analyzeCultural(ctx context.Context, in Input) culturalOutcome {
	failed := culturalOutcome{
		score: culturalFailedScore,
		issues: []models.SafetyIssue{{
			Type:        IssueCultural,
			Description: "Cultural analysis failed",
			Severity:    models.SeverityLow,
		}},
		recommendations: []string{recAnalysisFailed},
	}
	if e.client == nil {
		safetySubcheckFailures.WithLabelValues("cultural").Inc()
		return failed
	}

	answer, err := e.client.GenerateText(ctx, culturalSystemPrompt, buildCulturalPrompt(in),
		ai.GenerationParams{Temperature: ai.Float64(culturalTemperature)})
	if err != nil {
		e.logger.Warn("Cultural sensitivity analysis failed", zap.Error(err))
		safetySubcheckFailures.WithLabelValues("cultural").Inc()
		return failed
	}

	outcome, ok := parseCulturalAnswer(answer)
	if !ok {
		e.logger.Warn("Cultural sensitivity answer is not valid JSON", zap.Int("answerLength", len(answer)))
		return culturalOutcome{
			score:           culturalUnparsedScore,
			recommendations: []string{recCulturalManualReview},
		}
	}
	return outcome
}

func buildCulturalPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Review this text written for a child. Judge cultural sensitivity and inclusiveness.\n\n")
	fmt.Fprintf(&b, "TEXT:\n%s\n\n", in.Text)
	fmt.Fprintf(&b, "READER AGE: %d\nLANGUAGE: %s\n\n", in.ChildAge, in.Language)
	b.WriteString("Look for stereotypes or bias, check that different cultures are shown with respect, ")
	b.WriteString("and check that the wording is sensitive for this age.\n")
	b.WriteString(`Answer with JSON only: {"score": <0..1, 1 is fully sensitive and inclusive>, "issues": ["..."], "recommendations": ["..."]}`)
	return b.String()
}

// parseCulturalAnswer разбирает ответ модели. Отсутствующая оценка считается 0.8.
func parseCulturalAnswer(answer string) (culturalOutcome, bool) {
	answer = strings.TrimSpace(answer)
	first := strings.Index(answer, "{")
	last := strings.LastIndex(answer, "}")
	if first < 0 || last <= first {
		return culturalOutcome{}, false
	}
	var parsed culturalAnswer
	if err := json.Unmarshal([]byte(answer[first:last+1]), &parsed); err != nil {
		return culturalOutcome{}, false
	}

	outcome := culturalOutcome{score: culturalUnparsedScore}
	if parsed.Score != nil {
		outcome.score = clamp01(*parsed.Score)
	}
	for _, raw := range parsed.Issues {
		if text := textOf(raw); text != "" {
			outcome.issues = append(outcome.issues, models.SafetyIssue{
				Type:        IssueCultural,
				Description: text,
				Severity:    models.SeverityMedium,
			})
		}
	}
	for _, raw := range parsed.Recommendations {
		if text := textOf(raw); text != "" {
			outcome.recommendations = append(outcome.recommendations, text)
		}
	}
	return outcome, true
}

// textOf принимает строку или объект с полем issue/description/text.
func textOf(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]interface{}
	if json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	for _, key := range []string{"issue", "description", "text", "recommendation"} {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
