package safety

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"reading-platform/internal/ai"
	"reading-platform/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Контекст проверяемого текста.
const (
	ContextStory   = "story"
	ContextChoice  = "choice"
	ContextGeneral = "general"
)

// Типы замечаний.
const (
	IssueInappropriateContent = "inappropriate_content"
	IssueComplexity           = "complexity"
	IssueCultural             = "cultural"
	IssueModeration           = "moderation"
)

const (
	DefaultThreshold = 0.5
	ReviewThreshold  = 0.8

	weightModeration  = 0.4
	weightAge         = 0.3
	weightCultural    = 0.2
	weightEducational = 0.1

	moderationFallbackScore = 0.8
)

const (
	recModerationUnavailable = "Manual review recommended: moderation unavailable"
	recSignificantRevision   = "Content requires significant revision before approval"
	recNeedsImprovement      = "Content needs improvement in multiple areas"
)

var (
	safetyScoreHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reading_platform_safety_score",
			Help:    "Distribution of overall safety scores.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"context"},
	)
	safetySubcheckFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_platform_safety_subcheck_failures_total",
			Help: "Safety sub-checks that degraded to a fallback score.",
		},
		[]string{"check"},
	)
)

// Input - текст на проверку и профиль читателя.
type Input struct {
	Text     string
	ChildAge int
	Language string
	Context  string
}

// SubScores - оценки отдельных проверок. Moderation == nil, если модерация не настроена.
type SubScores struct {
	Moderation          *float64 `json:"moderation,omitempty"`
	AgeAppropriateness  float64  `json:"age_appropriateness"`
	CulturalSensitivity float64  `json:"cultural_sensitivity"`
	EducationalValue    float64  `json:"educational_value"`
}

// Report - итог проверки безопасности.
// Approved == (Score >= порог), NeedsReview == (Score < 0.8).
type Report struct {
	Score               float64              `json:"overall_score"`
	Approved            bool                 `json:"approved"`
	NeedsReview         bool                 `json:"needs_review"`
	Issues              []models.SafetyIssue `json:"issues"`
	Recommendations     []string             `json:"recommendations"`
	SubScores           SubScores            `json:"sub_scores"`
	EducationalElements []string             `json:"educational_elements"`
	FlaggedCategories   []string             `json:"flagged_categories,omitempty"`
}

// Config - настройки проверки.
type Config struct {
	Threshold float64
	Timeout   time.Duration
}

// Evaluator считает взвешенную оценку безопасности текста для ребенка.
type Evaluator struct {
	moderator ai.Moderator
	client    ai.Client
	cfg       Config
	logger    *zap.Logger
}

// NewEvaluator создает Evaluator. moderator и client могут быть nil:
// без модерации ее вес перераспределяется, без client культурная проверка деградирует.
func NewEvaluator(cfg Config, moderator ai.Moderator, client ai.Client, logger *zap.Logger) *Evaluator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Evaluator{
		moderator: moderator,
		client:    client,
		cfg:       cfg,
		logger:    logger.Named("SafetyEvaluator"),
	}
}

// Threshold возвращает порог одобрения.
func (e *Evaluator) Threshold() float64 { return e.cfg.Threshold }

type moderationOutcome struct {
	score      float64
	flagged    []string
	recs       []string
	configured bool
}

// Evaluate выполняет все проверки. Сбой внешней проверки не прерывает оценку,
// а заменяет ее оценку нейтральной с рекомендацией ручной проверки.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) Report {
	if in.Context == "" {
		in.Context = ContextStory
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	var (
		g          errgroup.Group
		moderation moderationOutcome
		cultural   culturalOutcome
	)
	g.Go(func() error {
		moderation = e.moderate(ctx, in.Text)
		return nil
	})
	g.Go(func() error {
		cultural = e.analyzeCultural(ctx, in)
		return nil
	})

	ageScore, ageIssues := AgeAppropriateness(in.Text, in.ChildAge)
	eduScore, eduElements, eduRecs := EducationalValue(in.Text)
	_ = g.Wait()

	report := Report{
		SubScores: SubScores{
			AgeAppropriateness:  ageScore,
			CulturalSensitivity: cultural.score,
			EducationalValue:    eduScore,
		},
		EducationalElements: eduElements,
		FlaggedCategories:   moderation.flagged,
	}
	if moderation.configured {
		report.SubScores.Moderation = &moderation.score
	}
	report.Score = combineScores(report.SubScores)
	report.Approved = report.Score >= e.cfg.Threshold
	report.NeedsReview = report.Score < ReviewThreshold

	issues := make([]models.SafetyIssue, 0, len(ageIssues)+len(cultural.issues)+len(moderation.flagged))
	issues = append(issues, ageIssues...)
	issues = append(issues, cultural.issues...)
	for _, category := range moderation.flagged {
		issues = append(issues, models.SafetyIssue{
			Type:        IssueModeration,
			Description: fmt.Sprintf("Content flagged by moderation: %s", category),
			Severity:    models.SeverityHigh,
		})
	}
	report.Issues = sortIssues(issues)

	var recs []string
	recs = append(recs, moderation.recs...)
	recs = append(recs, cultural.recommendations...)
	recs = append(recs, eduRecs...)
	for _, category := range moderation.flagged {
		recs = append(recs, fmt.Sprintf("Address %s content flagged by moderation", category))
	}
	switch {
	case report.Score < 0.5:
		recs = append(recs, recSignificantRevision)
	case report.Score < 0.7:
		recs = append(recs, recNeedsImprovement)
	}
	report.Recommendations = lo.Uniq(recs)

	safetyScoreHistogram.WithLabelValues(in.Context).Observe(report.Score)
	e.logger.Debug("Safety evaluation finished",
		zap.String("context", in.Context),
		zap.Int("childAge", in.ChildAge),
		zap.Float64("score", report.Score),
		zap.Bool("approved", report.Approved),
		zap.Int("issues", len(report.Issues)),
	)
	return report
}

func (e *Evaluator) moderate(ctx context.Context, text string) moderationOutcome {
	if e.moderator == nil {
		return moderationOutcome{}
	}
	result, err := e.moderator.Moderate(ctx, text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn("Moderation check failed, using neutral score", zap.Error(err))
		}
		safetySubcheckFailures.WithLabelValues("moderation").Inc()
		return moderationOutcome{
			score:      moderationFallbackScore,
			recs:       []string{recModerationUnavailable},
			configured: true,
		}
	}
	if result.Flagged {
		return moderationOutcome{score: 0, flagged: result.Categories, configured: true}
	}
	return moderationOutcome{score: 1, configured: true}
}

// combineScores - взвешенное среднее. Образовательная оценка работает как бонус:
// если она снижает итог, итог считается без нее.
func combineScores(s SubScores) float64 {
	type part struct{ score, weight float64 }
	parts := make([]part, 0, 4)
	if s.Moderation != nil {
		parts = append(parts, part{*s.Moderation, weightModeration})
	}
	parts = append(parts,
		part{s.AgeAppropriateness, weightAge},
		part{s.CulturalSensitivity, weightCultural},
	)

	mean := func(ps []part) float64 {
		var sum, weights float64
		for _, p := range ps {
			sum += p.score * p.weight
			weights += p.weight
		}
		if weights == 0 {
			return 0
		}
		return sum / weights
	}

	core := mean(parts)
	withEducational := mean(append(parts, part{s.EducationalValue, weightEducational}))
	return roundScore(math.Max(core, withEducational))
}

func roundScore(v float64) float64 {
	return clamp01(math.Round(v*1000) / 1000)
}

var severityRank = map[string]int{
	models.SeverityHigh:   0,
	models.SeverityMedium: 1,
	models.SeverityLow:    2,
}

func sortIssues(issues []models.SafetyIssue) []models.SafetyIssue {
	sort.SliceStable(issues, func(i, j int) bool {
		return rank(issues[i].Severity) < rank(issues[j].Severity)
	})
	return issues
}

func rank(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return len(severityRank)
}
