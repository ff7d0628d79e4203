package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reading-platform/internal/ai"
	"reading-platform/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Draft - глава, полученная от модели и прошедшая разбор и нормализацию выборов.
type Draft struct {
	Title               string
	StoryText           string
	ChoiceQuestion      string
	Choices             []models.ChoiceOption
	EducationalElements []string
	VocabularyWords     []string
}

// GeneratorConfig - параметры вызова модели.
type GeneratorConfig struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Generator вызывает модель и разбирает ответ. Побочных эффектов не имеет.
type Generator struct {
	client     ai.Client
	structured ai.StructuredGenerator
	schema     *jsonschema.Schema
	builder    *ContextBuilder
	cfg        GeneratorConfig
	logger     *zap.Logger
}

// NewGenerator создает Generator. structured может быть nil, тогда используется
// разбор свободного ответа.
func NewGenerator(client ai.Client, structured ai.StructuredGenerator, builder *ContextBuilder, cfg GeneratorConfig, logger *zap.Logger) (*Generator, error) {
	if client == nil && structured == nil {
		return nil, errors.New("generator requires an AI client")
	}
	schema, err := CompileChapterSchema()
	if err != nil {
		return nil, err
	}
	return &Generator{
		client:     client,
		structured: structured,
		schema:     schema,
		builder:    builder,
		cfg:        cfg,
		logger:     logger.Named("Generator"),
	}, nil
}

func (g *Generator) params() ai.GenerationParams {
	params := ai.GenerationParams{Temperature: ai.Float64(g.cfg.Temperature)}
	if g.cfg.MaxTokens > 0 {
		params.MaxTokens = ai.Int(g.cfg.MaxTokens)
	}
	return params
}

// Generate пишет главу по запросу. Ошибка разбора ответа - models.ErrGenerationParse,
// ошибка модели оборачивает ai.ErrAIGenerationFailed.
func (g *Generator) Generate(ctx context.Context, req models.GenerationRequest) (*Draft, error) {
	prompt := g.builder.Build(req)
	log := g.logger.With(
		zap.Int("chapterNumber", req.ChapterNumber),
		zap.Stringer("childID", req.Child.ID),
		zap.Int("promptTokens", prompt.Tokens),
	)

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	var (
		parsed *ParsedChapter
		err    error
	)
	if g.structured != nil {
		raw, genErr := g.structured.GenerateStructured(ctx, prompt.System, prompt.User, ChapterSchema(), g.params())
		if genErr != nil {
			log.Error("Structured generation failed", zap.Error(genErr))
			return nil, genErr
		}
		parsed, err = ParseStructured(raw, g.schema)
	} else {
		content, genErr := g.client.GenerateText(ctx, prompt.System, prompt.User, g.params())
		if genErr != nil {
			log.Error("Text generation failed", zap.Error(genErr))
			return nil, genErr
		}
		parsed, err = ParseLegacy(content)
	}
	if err != nil {
		log.Warn("Failed to parse model response", zap.Error(err))
		return nil, err
	}

	choices, usedFallback := NormalizeChoices(parsed.Choices, req.Child.Age, req.Child.Language)
	if usedFallback {
		log.Warn("Model returned no usable choices, using fallback choices",
			zap.Int("rawChoices", len(parsed.Choices)))
	}

	draft := &Draft{
		Title:               parsed.Title,
		StoryText:           parsed.StoryText,
		ChoiceQuestion:      parsed.ChoiceQuestion,
		Choices:             choices,
		EducationalElements: parsed.EducationalElements,
		VocabularyWords:     parsed.VocabularyWords,
	}
	if draft.ChoiceQuestion == "" {
		draft.ChoiceQuestion = defaultChoiceQuestion
	}
	if len(draft.EducationalElements) == 0 {
		draft.EducationalElements = append([]string(nil), defaultEducationalElements...)
	}
	if draft.VocabularyWords == nil {
		draft.VocabularyWords = []string{}
	}
	if draft.Title == "" {
		draft.Title = fmt.Sprintf("Chapter %d", max(req.ChapterNumber, 1))
	}

	log.Debug("Chapter draft generated", zap.Int("words", CountWords(draft.StoryText)), zap.Int("choices", len(draft.Choices)))
	return draft, nil
}
