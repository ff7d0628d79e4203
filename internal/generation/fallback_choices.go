package generation

import (
	"strings"

	"reading-platform/internal/models"

	"github.com/samber/lo"
)

const (
	defaultChoiceQuestion = "What would you like to do?"
	youngReaderMaxAge     = 8
	// MaxChoices - сколько вариантов выбора показывается читателю в конце главы.
	MaxChoices = 4
)

var defaultEducationalElements = []string{"Reading comprehension", "Decision making"}

var (
	youngReaderChoices = []models.ChoiceOption{
		{Text: "Ask 'What happens next?'", Description: "Continue the magical story"},
		{Text: "Make a new discovery", Description: "Find something wonderful in the story"},
		{Text: "Be helpful and kind", Description: "Show kindness to the characters"},
	}
	olderReaderChoices = []models.ChoiceOption{
		{Text: "Continue the adventure", Description: "See where the story leads next"},
		{Text: "Make a thoughtful decision", Description: "Think carefully about the best choice"},
		{Text: "Learn something new", Description: "Discover something interesting in the story"},
	}
)

// hebrewChoiceTexts - перевод текстов запасных выборов. Описания остаются на английском.
var hebrewChoiceTexts = map[string]string{
	"Ask 'What happens next?'":   "שאל 'מה קורה אחר כך?'",
	"Make a new discovery":       "גלה משהו חדש",
	"Be helpful and kind":        "תהיה מועיל וחביב",
	"Continue the adventure":     "תמשיך את ההרפתקה",
	"Make a thoughtful decision": "קבל החלטה מחושבת",
	"Learn something new":        "למד משהו חדש",
	"Go left":                    "לך שמאלה",
	"Go right":                   "לך ימינה",
	"Make a new friend":          "תכיר חבר חדש",
	"Be curious and explore":     "תהיה סקרן ותחקור",
	"What happens next?":         "מה יקרה אחר כך?",
}

// FallbackChoices возвращает три запасных выбора для возраста и языка читателя.
func FallbackChoices(age int, language string) []models.ChoiceOption {
	base := olderReaderChoices
	if age <= youngReaderMaxAge {
		base = youngReaderChoices
	}
	choices := make([]models.ChoiceOption, len(base))
	copy(choices, base)
	if language == models.LanguageHebrew {
		choices = TranslateChoices(choices)
	}
	return choices
}

// TranslateChoices переводит известные тексты выборов на иврит, остальные не меняет.
func TranslateChoices(choices []models.ChoiceOption) []models.ChoiceOption {
	return lo.Map(choices, func(choice models.ChoiceOption, _ int) models.ChoiceOption {
		if translated, ok := hebrewChoiceTexts[choice.Text]; ok {
			choice.Text = translated
		}
		return choice
	})
}

// NormalizeChoices отбрасывает выборы без текста, оставляет не больше MaxChoices
// и подставляет запасные, если ничего не осталось.
// Второе значение сообщает, были ли использованы запасные выборы.
func NormalizeChoices(choices []models.ChoiceOption, age int, language string) ([]models.ChoiceOption, bool) {
	valid := lo.FilterMap(choices, func(choice models.ChoiceOption, _ int) (models.ChoiceOption, bool) {
		choice.Text = strings.TrimSpace(choice.Text)
		choice.Description = strings.TrimSpace(choice.Description)
		return choice, choice.Text != ""
	})
	if len(valid) == 0 {
		return FallbackChoices(age, language), true
	}
	return lo.Slice(valid, 0, MaxChoices), false
}
