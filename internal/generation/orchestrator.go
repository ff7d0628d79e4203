package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reading-platform/internal/models"
	"reading-platform/internal/safety"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Узлы машины состояний.
const (
	NodeGenerateContent  = "generate_content"
	NodeSafetyCheck      = "safety_check"
	NodeEnhanceContent   = "enhance_content"
	NodeCalculateMetrics = "calculate_metrics"
)

// Decision - переход после проверки безопасности.
type Decision int

const (
	DecisionFinalize Decision = iota
	DecisionRegenerate
	DecisionEnhance
)

func (d Decision) String() string {
	switch d {
	case DecisionFinalize:
		return "finalize"
	case DecisionRegenerate:
		return "regenerate"
	case DecisionEnhance:
		return "enhance"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// RegenerateAtOrBelow - оценка, при которой текст не исправляют, а пишут заново.
const RegenerateAtOrBelow = 0.3

const DefaultMaxRegenerations = 2

// Decide выбирает переход по отчету проверки.
func Decide(report safety.Report) Decision {
	switch {
	case report.Approved:
		return DecisionFinalize
	case report.Score <= RegenerateAtOrBelow:
		return DecisionRegenerate
	default:
		return DecisionEnhance
	}
}

var (
	generationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_platform_generation_runs_total",
			Help: "Orchestrator runs by outcome.",
		},
		[]string{"outcome"},
	)
	generationNodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reading_platform_generation_node_duration_seconds",
			Help:    "Duration of orchestrator nodes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node"},
	)
	generationRegenerationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reading_platform_generation_regenerations_total",
		Help: "Chapters regenerated after a failed safety check.",
	})
	generationEnhancementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reading_platform_generation_enhancements_total",
		Help: "Enhancement attempts on borderline chapters.",
	})
)

// ChapterGenerator пишет черновик главы.
type ChapterGenerator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*Draft, error)
}

// SafetyChecker оценивает безопасность текста.
type SafetyChecker interface {
	Evaluate(ctx context.Context, in safety.Input) safety.Report
}

// ContentEnhancer переписывает пограничный текст.
type ContentEnhancer interface {
	Enhance(ctx context.Context, text string, issues []models.SafetyIssue, childAge int) (string, error)
}

// SafetyRejectedError возвращается, когда лимит перегенераций исчерпан без одобрения.
type SafetyRejectedError struct {
	Report        safety.Report
	Regenerations int
}

func (e *SafetyRejectedError) Error() string {
	return fmt.Sprintf("%s: score %.3f after %d regenerations", models.ErrSafetyRejected, e.Report.Score, e.Regenerations)
}

func (e *SafetyRejectedError) Unwrap() error { return models.ErrSafetyRejected }

type OrchestratorConfig struct {
	MaxRegenerations int
}

// Orchestrator - машина состояний генерации главы. Создается один раз и
// разделяется между запросами: собственного изменяемого состояния не имеет.
type Orchestrator struct {
	generator ChapterGenerator
	checker   SafetyChecker
	enhancer  ContentEnhancer
	cfg       OrchestratorConfig
	logger    *zap.Logger
}

func NewOrchestrator(generator ChapterGenerator, checker SafetyChecker, enhancer ContentEnhancer, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if cfg.MaxRegenerations < 0 {
		cfg.MaxRegenerations = DefaultMaxRegenerations
	}
	return &Orchestrator{
		generator: generator,
		checker:   checker,
		enhancer:  enhancer,
		cfg:       cfg,
		logger:    logger.Named("Orchestrator"),
	}
}

// Run генерирует главу без потока событий.
func (o *Orchestrator) Run(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	return o.RunWithEvents(ctx, req, nil)
}

// RunWithEvents проходит машину состояний, отправляя события в sink (может быть nil).
// Возвращает только одобренный результат.
func (o *Orchestrator) RunWithEvents(ctx context.Context, req models.GenerationRequest, sink EventSink) (result *models.GenerationResult, err error) {
	log := o.logger.With(
		zap.Stringer("childID", req.Child.ID),
		zap.Int("chapterNumber", req.ChapterNumber),
	)
	emit := func(event Event) {
		if sink != nil {
			sink.Emit(event)
		}
	}
	defer func() {
		generationRunsTotal.WithLabelValues(runOutcome(err)).Inc()
	}()

	state := NewState(req)
	node := NodeGenerateContent
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		switch node {
		case NodeGenerateContent:
			update, err := o.timed(node, emit, func() (Update, error) {
				draft, err := o.generator.Generate(ctx, state.Request)
				if err != nil {
					return Update{}, err
				}
				return Update{Draft: draft, EnhancedThisAttempt: ptr(false)}, nil
			})
			if err != nil {
				log.Error("Chapter generation failed", zap.Int("attempt", state.Attempt), zap.Error(err))
				return nil, err
			}
			state = state.With(update)
			node = NodeSafetyCheck

		case NodeSafetyCheck:
			update, _ := o.timed(node, emit, func() (Update, error) {
				report := o.checker.Evaluate(ctx, safety.Input{
					Text:     state.StoryText,
					ChildAge: state.Request.Child.Age,
					Language: state.Request.Child.Language,
					Context:  safety.ContextStory,
				})
				return Update{Report: &report}, nil
			})
			state = state.With(update)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			decision := Decide(*state.Report)
			if decision == DecisionEnhance && state.EnhancedThisAttempt {
				decision = DecisionRegenerate
			}
			emit(Event{Type: EventSafetyCheck, Data: SafetyEventData{
				Approved: state.Report.Approved,
				Score:    state.Report.Score,
				Issues:   state.Report.Issues,
				Decision: decision.String(),
			}})

			switch decision {
			case DecisionFinalize:
				node = NodeCalculateMetrics
			case DecisionEnhance:
				node = NodeEnhanceContent
			case DecisionRegenerate:
				if state.Attempt >= o.cfg.MaxRegenerations {
					log.Warn("Safety check failed and regeneration limit reached",
						zap.Float64("score", state.Report.Score),
						zap.Int("regenerations", state.Attempt),
					)
					return nil, &SafetyRejectedError{Report: *state.Report, Regenerations: state.Attempt}
				}
				log.Info("Regenerating chapter after safety check",
					zap.Float64("score", state.Report.Score),
					zap.Int("attempt", state.Attempt+1),
				)
				generationRegenerationsTotal.Inc()
				state = state.With(Update{Attempt: ptr(state.Attempt + 1)})
				node = NodeGenerateContent
			default:
				return nil, fmt.Errorf("unknown decision %s", decision)
			}

		case NodeEnhanceContent:
			update, err := o.timed(node, emit, func() (Update, error) {
				text, err := o.enhancer.Enhance(ctx, state.StoryText, state.Report.Issues, state.Request.Child.Age)
				if err != nil && ctx.Err() != nil {
					return Update{}, ctx.Err()
				}
				return Update{
					StoryText:           &text,
					EnhancedThisAttempt: ptr(true),
					Enhancements:        ptr(state.Enhancements + 1),
				}, nil
			})
			if err != nil {
				return nil, err
			}
			generationEnhancementsTotal.Inc()
			state = state.With(update)
			node = NodeSafetyCheck

		case NodeCalculateMetrics:
			update, _ := o.timed(node, emit, func() (Update, error) {
				child := state.Request.Child
				words := CountWords(state.StoryText)
				return Update{
					WordCount:       ptr(words),
					ReadingMinutes:  ptr(EstimateReadingMinutes(words, child.Age, child.ReadingLevel)),
					VocabularyLevel: ptr(VocabularyLevel(child.ReadingLevel)),
				}, nil
			})
			state = state.With(update)
			result := state.Result()

			paragraphs := Paragraphs(result.StoryText)
			for i, paragraph := range paragraphs {
				emit(Event{Type: EventContent, Data: ContentEventData{
					Chunk:      paragraph,
					Index:      i,
					IsComplete: i == len(paragraphs)-1,
				}})
			}
			emit(Event{Type: EventMetadata, Data: MetadataEventData{
				EstimatedReadingTime: result.EstimatedReadingMinutes,
				VocabularyLevel:      result.VocabularyLevel,
				EducationalElements:  result.EducationalElements,
				VocabularyWords:      result.VocabularyWords,
				ChoiceQuestion:       result.ChoiceQuestion,
				Choices:              result.Choices,
				Regenerations:        result.Regenerations,
				Enhancements:         result.Enhancements,
			}})

			log.Info("Chapter generated",
				zap.Float64("safetyScore", result.SafetyScore),
				zap.Bool("needsReview", result.NeedsReview),
				zap.Int("words", result.WordCount),
				zap.Int("regenerations", result.Regenerations),
				zap.Int("enhancements", result.Enhancements),
			)
			return result, nil

		default:
			return nil, fmt.Errorf("unknown orchestrator node %q", node)
		}
	}
}

func (o *Orchestrator) timed(node string, emit func(Event), fn func() (Update, error)) (Update, error) {
	emit(Event{Type: EventNodeStatus, Data: NodeEventData{Node: node, Status: NodeStarted}})
	start := time.Now()
	update, err := fn()
	generationNodeDuration.WithLabelValues(node).Observe(time.Since(start).Seconds())
	if err == nil {
		emit(Event{Type: EventNodeStatus, Data: NodeEventData{Node: node, Status: NodeCompleted}})
	}
	return update, err
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return "finalized"
	case errors.Is(err, models.ErrSafetyRejected):
		return "rejected"
	case errors.Is(err, models.ErrGenerationParse):
		return "parse_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "failed"
	}
}
