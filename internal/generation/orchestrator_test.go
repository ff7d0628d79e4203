package generation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"reading-platform/internal/ai/mocks"
	"reading-platform/internal/models"
	"reading-platform/internal/safety"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	mu    sync.Mutex
	calls int
	draft Draft
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, req models.GenerationRequest) (*Draft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	draft := g.draft
	return &draft, nil
}

// scriptedChecker возвращает отчеты по очереди, последний повторяется.
type scriptedChecker struct {
	mu      sync.Mutex
	reports []safety.Report
	texts   []string
}

func (c *scriptedChecker) Evaluate(ctx context.Context, in safety.Input) safety.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, in.Text)
	report := c.reports[0]
	if len(c.reports) > 1 {
		c.reports = c.reports[1:]
	}
	return report
}

type stubEnhancer struct {
	calls int
	text  string
	err   error
}

func (e *stubEnhancer) Enhance(ctx context.Context, text string, issues []models.SafetyIssue, childAge int) (string, error) {
	e.calls++
	if e.err != nil {
		return text, e.err
	}
	return e.text, nil
}

func approved(score float64) safety.Report {
	return safety.Report{Score: score, Approved: true, NeedsReview: score < safety.ReviewThreshold}
}

func rejected(score float64) safety.Report {
	return safety.Report{Score: score, NeedsReview: true}
}

func testRequest() models.GenerationRequest {
	return models.GenerationRequest{
		Theme:         "space adventure",
		ChapterNumber: 1,
		TotalChapters: 3,
		Child: models.Child{
			Age:          8,
			Language:     models.LanguageEnglish,
			ReadingLevel: models.ReadingLevelBeginner,
		},
	}
}

func testDraft() Draft {
	return Draft{
		Title:               "Chapter 1",
		StoryText:           "Mia looked at the stars.\n\nShe wanted to fly.",
		ChoiceQuestion:      "Where to?",
		Choices:             []models.ChoiceOption{{Text: "The moon"}, {Text: "Mars"}},
		EducationalElements: []string{"Astronomy"},
	}
}

func TestDecide(t *testing.T) {
	assert.Equal(t, DecisionFinalize, Decide(approved(0.6)))
	assert.Equal(t, DecisionRegenerate, Decide(rejected(0.2)))
	assert.Equal(t, DecisionRegenerate, Decide(rejected(RegenerateAtOrBelow)))
	assert.Equal(t, DecisionEnhance, Decide(rejected(0.45)))
}

func TestOrchestrator_ApprovedFirstTry(t *testing.T) {
	gen := &stubGenerator{draft: testDraft()}
	checker := &scriptedChecker{reports: []safety.Report{approved(0.9)}}
	enhancer := &stubEnhancer{}
	o := NewOrchestrator(gen, checker, enhancer, OrchestratorConfig{MaxRegenerations: 2}, zap.NewNop())

	var events []Event
	result, err := o.RunWithEvents(context.Background(), testRequest(), SinkFunc(func(e Event) { events = append(events, e) }))
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.Zero(t, enhancer.calls)
	assert.True(t, result.Approved)
	assert.Equal(t, 0.9, result.SafetyScore)
	assert.Equal(t, 1, result.EstimatedReadingMinutes)
	assert.Equal(t, models.ReadingLevelBeginner, result.VocabularyLevel)
	assert.Equal(t, 9, result.WordCount)

	var contents []string
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
		if e.Type == EventContent {
			contents = append(contents, e.Data.(ContentEventData).Chunk)
		}
	}
	assert.Equal(t, []string{"Mia looked at the stars.", "She wanted to fly."}, contents)
	assert.Contains(t, types, EventSafetyCheck)
	assert.Equal(t, EventMetadata, types[len(types)-1])
	assert.Equal(t, EventNodeStatus, types[0])
}

func TestOrchestrator_EnhanceThenApprove(t *testing.T) {
	gen := &stubGenerator{draft: testDraft()}
	checker := &scriptedChecker{reports: []safety.Report{rejected(0.45), approved(0.7)}}
	enhancer := &stubEnhancer{text: "Mia smiled at the friendly stars."}
	o := NewOrchestrator(gen, checker, enhancer, OrchestratorConfig{MaxRegenerations: 2}, zap.NewNop())

	result, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1, enhancer.calls)
	assert.Equal(t, 1, result.Enhancements)
	assert.Equal(t, "Mia smiled at the friendly stars.", result.StoryText)
	assert.Equal(t, []string{testDraft().StoryText, "Mia smiled at the friendly stars."}, checker.texts)
	assert.NotEmpty(t, result.Choices)
}

func TestOrchestrator_EnhanceFailureKeepsOriginalAndRechecks(t *testing.T) {
	gen := &stubGenerator{draft: testDraft()}
	checker := &scriptedChecker{reports: []safety.Report{rejected(0.45), approved(0.55)}}
	enhancer := &stubEnhancer{err: errors.New("model down")}
	o := NewOrchestrator(gen, checker, enhancer, OrchestratorConfig{MaxRegenerations: 2}, zap.NewNop())

	result, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, testDraft().StoryText, result.StoryText)
	assert.Len(t, checker.texts, 2)
}

func TestOrchestrator_RegeneratesLowScore(t *testing.T) {
	gen := &stubGenerator{draft: testDraft()}
	checker := &scriptedChecker{reports: []safety.Report{rejected(0.1), approved(0.8)}}
	o := NewOrchestrator(gen, checker, &stubEnhancer{}, OrchestratorConfig{MaxRegenerations: 2}, zap.NewNop())

	result, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, 1, result.Regenerations)
}

func TestOrchestrator_TerminatesOnAlwaysUnsafeContent(t *testing.T) {
	for _, score := range []float64{0.1, 0.45} {
		for _, maxRegenerations := range []int{0, 1, 2, 5} {
			gen := &stubGenerator{draft: testDraft()}
			checker := &scriptedChecker{reports: []safety.Report{rejected(score)}}
			enhancer := &stubEnhancer{text: "still unsafe"}
			o := NewOrchestrator(gen, checker, enhancer, OrchestratorConfig{MaxRegenerations: maxRegenerations}, zap.NewNop())

			result, err := o.Run(context.Background(), testRequest())

			assert.Nil(t, result)
			require.ErrorIs(t, err, models.ErrSafetyRejected)
			var rejectedErr *SafetyRejectedError
			require.True(t, errors.As(err, &rejectedErr))
			assert.Equal(t, maxRegenerations, rejectedErr.Regenerations)
			assert.Equal(t, maxRegenerations+1, gen.calls)
			assert.LessOrEqual(t, enhancer.calls, maxRegenerations+1)
			assert.LessOrEqual(t, len(checker.texts), 2*(maxRegenerations+1))
		}
	}
}

func TestOrchestrator_GenerationErrorPropagates(t *testing.T) {
	gen := &stubGenerator{err: models.ErrGenerationParse}
	checker := &scriptedChecker{reports: []safety.Report{approved(1)}}
	o := NewOrchestrator(gen, checker, &stubEnhancer{}, OrchestratorConfig{}, zap.NewNop())

	_, err := o.Run(context.Background(), testRequest())
	assert.ErrorIs(t, err, models.ErrGenerationParse)
	assert.Empty(t, checker.texts)
}

func TestOrchestrator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &stubGenerator{draft: testDraft()}
	o := NewOrchestrator(gen, &scriptedChecker{reports: []safety.Report{approved(1)}}, &stubEnhancer{}, OrchestratorConfig{}, zap.NewNop())

	_, err := o.Run(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, gen.calls)
}

func TestOrchestrator_SpaceAdventureEndToEnd(t *testing.T) {
	client := new(mocks.Client)
	client.On("GenerateText", mock.Anything, systemPrompt, mock.Anything, mock.Anything).Return(
		"```json\n{\"title\": \"Blast Off\", \"story_content\": \"Leo and his friend built a rocket together. "+
			"They wanted to learn about space.\\n\\nThe rocket flew past the moon and the stars.\", "+
			"\"choice_question\": \"Where should they go?\", \"choices\": [{\"text\": \"Visit Mars\", \"description\": \"The red planet\"}, "+
			"{\"text\": \"Explore a comet\"}], \"educational_elements\": [\"Planets\"], \"vocabulary_words\": [\"orbit\"]}\n```", nil)
	client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`{"score": 0.95, "issues": [], "recommendations": []}`, nil)

	builder := NewContextBuilder(nil, 0, zap.NewNop())
	gen, err := NewGenerator(client, nil, builder, GeneratorConfig{Temperature: 0.7, MaxTokens: 1000}, zap.NewNop())
	require.NoError(t, err)
	checker := safety.NewEvaluator(safety.Config{Threshold: 0.5}, nil, client, zap.NewNop())
	o := NewOrchestrator(gen, checker, NewEnhancer(client, 0, zap.NewNop()), OrchestratorConfig{MaxRegenerations: 2}, zap.NewNop())

	result, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, result.StoryText)
	assert.GreaterOrEqual(t, len(result.Choices), 1)
	assert.LessOrEqual(t, len(result.Choices), 4)
	assert.GreaterOrEqual(t, result.EstimatedReadingMinutes, 1)
	assert.True(t, result.Approved)
	assert.Equal(t, "Where should they go?", result.ChoiceQuestion)
	assert.Equal(t, []string{"orbit"}, result.VocabularyWords)
}
