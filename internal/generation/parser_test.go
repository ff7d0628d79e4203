package generation

import (
	"encoding/json"
	"testing"

	"reading-platform/internal/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLegacy_FencedJSONWithPreamble(t *testing.T) {
	content := "Sure! Here you go:\n```json\n" +
		`{"title": "The Door", "story_content": "Here is Chapter 2 of the tale: Chapter 2: Mia opened the door.\\n\\nIt was \\\"bright\\\".",` +
		` "choice_question": "What next?", "choices": ["Go left", {"text": "Go right", "description": "Into the light"}, {"description": "no text"}, ""],` +
		` "educational_elements": ["Counting"], "vocabulary_words": ["luminous", 7]}` +
		"\n```\nHope you like it!"

	parsed, err := ParseLegacy(content)
	require.NoError(t, err)

	assert.Equal(t, "The Door", parsed.Title)
	assert.Equal(t, "Mia opened the door.\n\nIt was \"bright\".", parsed.StoryText)
	assert.Equal(t, "What next?", parsed.ChoiceQuestion)
	assert.Equal(t, []models.ChoiceOption{
		{Text: "Go left"},
		{Text: "Go right", Description: "Into the light"},
	}, parsed.Choices)
	assert.Equal(t, []string{"Counting"}, parsed.EducationalElements)
	assert.Equal(t, []string{"luminous"}, parsed.VocabularyWords)
}

func TestParseLegacy_PlainFenceAndStoryContentPrefix(t *testing.T) {
	content := "```\n{\"story_content\": \"story_content: `Here is the story: The owl hooted.\"}\n```"

	parsed, err := ParseLegacy(content)
	require.NoError(t, err)
	assert.Equal(t, "The owl hooted.", parsed.StoryText)
	assert.Empty(t, parsed.Choices)
}

func TestParseLegacy_Failures(t *testing.T) {
	cases := map[string]string{
		"no json":           "Once upon a time there was a fox.",
		"broken json":       `{"story_content": "The fox ran", }`,
		"empty story":       `{"story_content": "Chapter 3:   "}`,
		"missing story":     `{"choices": ["Go left"]}`,
		"non-string story":  `{"story_content": ["a", "b"]}`,
		"braces wrong side": "} nothing here {",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLegacy(content)
			assert.ErrorIs(t, err, models.ErrGenerationParse)
		})
	}
}

func TestParseLegacy_ChoicesNotAList(t *testing.T) {
	parsed, err := ParseLegacy(`{"story_content": "The fox ran.", "choices": "left or right"}`)
	require.NoError(t, err)
	assert.Empty(t, parsed.Choices)
}

func TestParseStructured(t *testing.T) {
	schema, err := CompileChapterSchema()
	require.NoError(t, err)

	raw := json.RawMessage(`{"title": "Moon", "story_content": " Mia landed. ", "choice_question": "Explore?",
		"choices": [{"text": "Yes", "description": "Walk around"}], "educational_elements": [], "vocabulary_words": ["crater"]}`)
	parsed, err := ParseStructured(raw, schema)
	require.NoError(t, err)
	assert.Equal(t, "Mia landed.", parsed.StoryText)
	assert.Equal(t, []models.ChoiceOption{{Text: "Yes", Description: "Walk around"}}, parsed.Choices)
	assert.Equal(t, []string{"crater"}, parsed.VocabularyWords)
}

func TestParseStructured_IsStrict(t *testing.T) {
	schema, err := CompileChapterSchema()
	require.NoError(t, err)

	cases := map[string]string{
		"not json":         "```json\n{}\n```",
		"missing field":    `{"title": "t", "story_content": "s", "choice_question": "q", "choices": [], "educational_elements": []}`,
		"string choices":   `{"title": "t", "story_content": "s", "choice_question": "q", "choices": ["a"], "educational_elements": [], "vocabulary_words": []}`,
		"extra field":      `{"title": "t", "story_content": "s", "choice_question": "q", "choices": [], "educational_elements": [], "vocabulary_words": [], "x": 1}`,
		"blank story":      `{"title": "t", "story_content": "   ", "choice_question": "q", "choices": [], "educational_elements": [], "vocabulary_words": []}`,
		"story not string": `{"title": "t", "story_content": 5, "choice_question": "q", "choices": [], "educational_elements": [], "vocabulary_words": []}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStructured(json.RawMessage(raw), schema)
			assert.ErrorIs(t, err, models.ErrGenerationParse)
		})
	}
}

func TestNormalizeChoices_NeverEmpty(t *testing.T) {
	inputs := [][]models.ChoiceOption{
		nil,
		{},
		{{Text: ""}, {Text: "   ", Description: "blank"}},
	}
	for _, age := range []int{7, 8, 9, 12} {
		for _, language := range []string{models.LanguageEnglish, models.LanguageHebrew} {
			for _, input := range inputs {
				choices, fallback := NormalizeChoices(input, age, language)
				assert.True(t, fallback)
				assert.Len(t, choices, 3)
				for _, choice := range choices {
					assert.NotEmpty(t, choice.Text)
				}
			}
		}
	}

	choices, fallback := NormalizeChoices([]models.ChoiceOption{{Text: " Fly "}, {Text: ""}}, 9, models.LanguageEnglish)
	assert.False(t, fallback)
	assert.Equal(t, []models.ChoiceOption{{Text: "Fly"}}, choices)
}

func TestNormalizeChoices_CapsAfterDroppingBlank(t *testing.T) {
	input := []models.ChoiceOption{
		{Text: ""}, {Text: "One"}, {Text: "  "}, {Text: "Two"}, {Text: "Three"}, {Text: "Four"}, {Text: "Five"}, {Text: "Six"},
	}
	choices, fallback := NormalizeChoices(input, 10, models.LanguageEnglish)
	assert.False(t, fallback)
	assert.Equal(t, []string{"One", "Two", "Three", "Four"}, lo.Map(choices, func(c models.ChoiceOption, _ int) string { return c.Text }))
}

func TestChapterSchema_LimitsChoices(t *testing.T) {
	var schema struct {
		Properties struct {
			Choices struct {
				MaxItems int `json:"maxItems"`
			} `json:"choices"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(ChapterSchema().Schema, &schema))
	assert.Equal(t, MaxChoices, schema.Properties.Choices.MaxItems)
}

func TestFallbackChoices_AgeBandsAndHebrew(t *testing.T) {
	young := FallbackChoices(8, models.LanguageEnglish)
	assert.Equal(t, "Ask 'What happens next?'", young[0].Text)

	older := FallbackChoices(9, models.LanguageEnglish)
	assert.Equal(t, "Continue the adventure", older[0].Text)

	hebrew := FallbackChoices(10, models.LanguageHebrew)
	assert.Equal(t, "תמשיך את ההרפתקה", hebrew[0].Text)
	assert.Equal(t, "See where the story leads next", hebrew[0].Description)

	// Исходная таблица не меняется при переводе.
	assert.Equal(t, "Continue the adventure", FallbackChoices(10, models.LanguageEnglish)[0].Text)
}
