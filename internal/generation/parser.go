package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"reading-platform/internal/ai"
	"reading-platform/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParsedChapter - результат разбора ответа модели до нормализации выборов.
type ParsedChapter struct {
	Title               string
	StoryText           string
	ChoiceQuestion      string
	Choices             []models.ChoiceOption
	EducationalElements []string
	VocabularyWords     []string
}

// chapterSchemaJSON - схема ответа модели. Все поля обязательны и
// additionalProperties=false, иначе OpenAI не принимает схему в strict-режиме.
const chapterSchemaJSON = `{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "story_content": {"type": "string", "minLength": 1},
    "choice_question": {"type": "string"},
    "choices": {
      "type": "array",
      "maxItems": 4,
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "description": {"type": "string"}
        },
        "required": ["text", "description"],
        "additionalProperties": false
      }
    },
    "educational_elements": {"type": "array", "items": {"type": "string"}},
    "vocabulary_words": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title", "story_content", "choice_question", "choices", "educational_elements", "vocabulary_words"],
  "additionalProperties": false
}`

// ChapterSchema возвращает схему для запроса structured output.
func ChapterSchema() ai.JSONSchema {
	return ai.JSONSchema{
		Name:        "story_chapter",
		Description: "One chapter of an interactive children's story with reader choices",
		Schema:      json.RawMessage(chapterSchemaJSON),
	}
}

// CompileChapterSchema компилирует схему для строгой проверки ответа.
func CompileChapterSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString("story_chapter.json", chapterSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chapter schema: %w", err)
	}
	return schema, nil
}

type strictChapter struct {
	Title               string                `json:"title"`
	StoryContent        string                `json:"story_content"`
	ChoiceQuestion      string                `json:"choice_question"`
	Choices             []models.ChoiceOption `json:"choices"`
	EducationalElements []string              `json:"educational_elements"`
	VocabularyWords     []string              `json:"vocabulary_words"`
}

// ParseStructured строго разбирает ответ structured output: проверка схемой,
// затем декодирование. Любая ошибка - models.ErrGenerationParse.
func ParseStructured(raw json.RawMessage, schema *jsonschema.Schema) (*ParsedChapter, error) {
	var doc interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", models.ErrGenerationParse, err)
	}
	trimChoices(doc)
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: schema validation: %v", models.ErrGenerationParse, err)
	}

	var chapter strictChapter
	if err := json.Unmarshal(raw, &chapter); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGenerationParse, err)
	}
	text := strings.TrimSpace(chapter.StoryContent)
	if text == "" {
		return nil, fmt.Errorf("%w: empty story content", models.ErrGenerationParse)
	}
	return &ParsedChapter{
		Title:               strings.TrimSpace(chapter.Title),
		StoryText:           text,
		ChoiceQuestion:      strings.TrimSpace(chapter.ChoiceQuestion),
		Choices:             chapter.Choices,
		EducationalElements: chapter.EducationalElements,
		VocabularyWords:     chapter.VocabularyWords,
	}, nil
}

// trimChoices отрезает выборы сверх MaxChoices перед проверкой схемой. Сами выборы
// берутся из полного ответа и ограничиваются в NormalizeChoices после отбрасывания пустых.
func trimChoices(doc interface{}) {
	fields, ok := doc.(map[string]interface{})
	if !ok {
		return
	}
	if choices, ok := fields["choices"].([]interface{}); ok && len(choices) > MaxChoices {
		fields["choices"] = choices[:MaxChoices]
	}
}

var (
	chapterPreambleRe  = regexp.MustCompile(`Here is Chapter \d+ of[^\n]*?:`)
	chapterHeadingRe   = regexp.MustCompile(`Chapter \d+:`)
	storyContentKeyRe  = regexp.MustCompile("story_content:\\s*`?")
	storyPreambleTexts = []string{"Here is the story:", "Here's the story:"}
)

// ParseLegacy - разбор свободного ответа модели без structured output.
// Ответ может быть обернут в markdown-блок и содержать текст вокруг JSON.
func ParseLegacy(content string) (*ParsedChapter, error) {
	var fields map[string]json.RawMessage
	body := extractJSONObject(content)
	err := errors.New("no json object in response")
	if body != "" {
		err = json.Unmarshal([]byte(body), &fields)
	}
	if err != nil {
		// Ответ мог оборваться на лимите токенов.
		repaired := repairTruncatedJSON(content)
		if repaired == "" || json.Unmarshal([]byte(repaired), &fields) != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrGenerationParse, err)
		}
	}

	var storyContent string
	if raw, ok := fields["story_content"]; ok {
		if err := json.Unmarshal(raw, &storyContent); err != nil {
			return nil, fmt.Errorf("%w: story_content is not a string", models.ErrGenerationParse)
		}
	}
	text := cleanStoryText(storyContent)
	if text == "" {
		return nil, fmt.Errorf("%w: empty story content", models.ErrGenerationParse)
	}

	return &ParsedChapter{
		Title:               lenientString(fields["title"]),
		StoryText:           text,
		ChoiceQuestion:      lenientString(fields["choice_question"]),
		Choices:             lenientChoices(fields["choices"]),
		EducationalElements: lenientStrings(fields["educational_elements"]),
		VocabularyWords:     lenientStrings(fields["vocabulary_words"]),
	}, nil
}

// extractJSONObject снимает markdown-ограждение и вырезает текст от первой "{" до последней "}".
func extractJSONObject(content string) string {
	content = stripCodeFence(content)
	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first < 0 || last <= first {
		return ""
	}
	return content[first : last+1]
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(content, fence)
		if start < 0 {
			continue
		}
		rest := content[start+len(fence):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	return content
}

// cleanStoryText убирает вступления рассказчика и экранирование, оставленные моделью.
func cleanStoryText(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, `\"`, `"`)
	text = chapterPreambleRe.ReplaceAllString(text, "")
	text = chapterHeadingRe.ReplaceAllString(text, "")
	text = storyContentKeyRe.ReplaceAllString(text, "")
	for _, preamble := range storyPreambleTexts {
		text = strings.ReplaceAll(text, preamble, "")
	}
	return strings.TrimSpace(text)
}

func lenientString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// lenientStrings принимает массив строк; не-строковые элементы и иные типы игнорируются.
func lenientStrings(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := lenientString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// lenientChoices принимает выборы как объекты {text, description} или как строки.
// Записи без текста отбрасываются.
func lenientChoices(raw json.RawMessage) []models.ChoiceOption {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]models.ChoiceOption, 0, len(items))
	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			if text = strings.TrimSpace(text); text != "" {
				out = append(out, models.ChoiceOption{Text: text})
			}
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		option := models.ChoiceOption{
			Text:        lenientString(obj["text"]),
			Description: lenientString(obj["description"]),
		}
		if option.Text != "" {
			out = append(out, option)
		}
	}
	return out
}
