package generation

import (
	"fmt"
	"strings"

	"reading-platform/internal/ai"
	"reading-platform/internal/models"

	"go.uber.org/zap"
)

const (
	summaryWholeWords = 100
	summaryHeadWords  = 60
	summaryTailWords  = 40
	summaryMaxRunes   = 400
)

// MaxSummaryLineRunes - верхняя граница длины одной строки контекста на главу
// ("Chapter N: " + сводка + перевод строки) при номере главы до 9999.
const MaxSummaryLineRunes = summaryMaxRunes + len("Chapter 9999: ") + 1

const systemPrompt = "You are an expert children's story writer creating educational, engaging, and safe content."

// SummarizeChapter сжимает текст главы: короткие главы остаются целиком,
// длинные превращаются в начало + "... " + конец. Результат не длиннее 400 рун.
func SummarizeChapter(text string) string {
	words := strings.Fields(text)
	var summary string
	if len(words) <= summaryWholeWords {
		summary = strings.Join(words, " ")
	} else {
		head := strings.Join(words[:summaryHeadWords], " ")
		tail := strings.Join(words[len(words)-summaryTailWords:], " ")
		summary = head + "... " + tail
	}
	runes := []rune(summary)
	if len(runes) > summaryMaxRunes {
		summary = string(runes[:summaryMaxRunes])
	}
	return summary
}

// BuildStoryContext возвращает блок контекста истории: по одной строке на предыдущую главу.
func BuildStoryContext(previousChapters []string) string {
	if len(previousChapters) == 0 {
		return ""
	}
	var b strings.Builder
	for i, chapter := range previousChapters {
		fmt.Fprintf(&b, "Chapter %d: %s\n", i+1, SummarizeChapter(chapter))
	}
	return b.String()
}

// Prompt - готовая пара промптов для модели.
type Prompt struct {
	System string
	User   string
	Tokens int
}

// ContextBuilder собирает промпт генерации главы и следит за бюджетом токенов.
type ContextBuilder struct {
	tokens      *ai.TokenCounter
	tokenBudget int
	logger      *zap.Logger
}

// NewContextBuilder создает ContextBuilder. tokenBudget <= 0 отключает предупреждение.
func NewContextBuilder(tokens *ai.TokenCounter, tokenBudget int, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		tokens:      tokens,
		tokenBudget: tokenBudget,
		logger:      logger.Named("ContextBuilder"),
	}
}

// Build формирует промпт для запроса генерации.
func (b *ContextBuilder) Build(req models.GenerationRequest) Prompt {
	child := req.Child
	theme := req.Theme
	if theme == "" {
		theme = "adventure"
	}
	chapterNumber := req.ChapterNumber
	if chapterNumber < 1 {
		chapterNumber = 1
	}

	var p strings.Builder
	fmt.Fprintf(&p, "You are telling an interactive story to a %d-year-old reader.\n", child.Age)
	if chapterNumber == 1 {
		fmt.Fprintf(&p, "Begin a new %s story. Write Chapter 1.\n\n", theme)
	} else {
		fmt.Fprintf(&p, "Continue the %s story. Write Chapter %d.\n\n", theme, chapterNumber)
	}

	p.WriteString("READER:\n")
	fmt.Fprintf(&p, "- Age: %d\n", child.Age)
	fmt.Fprintf(&p, "- Language: %s\n", languageOrDefault(child.Language))
	fmt.Fprintf(&p, "- Reading level: %s\n", child.ReadingLevel)
	if len(child.Interests) > 0 {
		fmt.Fprintf(&p, "- Interests: %s\n", strings.Join(child.Interests, ", "))
	}
	fmt.Fprintf(&p, "- Vocabulary score: %d/100\n\n", child.ReadingLevelScore)

	p.WriteString("STYLE:\n")
	p.WriteString("- Write only the story itself. No introductions, notes or headings.\n")
	p.WriteString("- 3 to 5 short paragraphs separated by blank lines.\n")
	p.WriteString("- Use 2 or 3 slightly challenging words the reader can learn from context.\n")
	if child.Language == models.LanguageHebrew {
		p.WriteString("- Write the story, the question and the choices in Hebrew.\n")
	}
	p.WriteString("\n")

	if storyContext := BuildStoryContext(req.PreviousChapters); storyContext != "" {
		p.WriteString("STORY SO FAR:\n")
		p.WriteString(storyContext)
		p.WriteString("\n")
		p.WriteString("CONTINUITY:\n")
		p.WriteString("- Keep the same characters, names and setting.\n")
		p.WriteString("- Pick up exactly where the last chapter ended.\n\n")
	}

	if req.PreviousChoice != nil {
		p.WriteString("LAST DECISION:\n")
		fmt.Fprintf(&p, "The reader was asked \"%s\" and chose \"%s\". Show the result of that choice.\n\n",
			req.PreviousChoice.Question, req.PreviousChoice.Chosen)
	}

	if custom := strings.TrimSpace(req.CustomInput); custom != "" {
		p.WriteString("READER IDEA (must be addressed in this chapter):\n")
		p.WriteString(custom)
		p.WriteString("\n\n")
	}

	if req.IsFinalChapter {
		p.WriteString("This is the final chapter. Bring the story to a warm, complete ending.\n")
		p.WriteString("Still offer 3 choices about what the reader would like to imagine next.\n\n")
	} else {
		p.WriteString("End the chapter at a decision point and offer 3 choices.\n\n")
	}

	p.WriteString("Respond with a single JSON object:\n")
	p.WriteString(`{"title": "chapter title", "story_content": "the chapter text", "choice_question": "question for the reader", ` +
		`"choices": [{"text": "short option", "description": "what it leads to"}], ` +
		`"educational_elements": ["..."], "vocabulary_words": ["..."]}`)
	p.WriteString("\n")

	prompt := Prompt{System: systemPrompt, User: p.String()}
	if b.tokens != nil {
		prompt.Tokens = b.tokens.Count(prompt.System) + b.tokens.Count(prompt.User)
		if b.tokenBudget > 0 && prompt.Tokens > b.tokenBudget {
			b.logger.Warn("Prompt exceeds token budget",
				zap.Int("tokens", prompt.Tokens),
				zap.Int("budget", b.tokenBudget),
				zap.Int("chapterNumber", chapterNumber),
				zap.Int("previousChapters", len(req.PreviousChapters)),
			)
		}
	}
	return prompt
}

func languageOrDefault(language string) string {
	if language == "" {
		return models.LanguageEnglish
	}
	return language
}
