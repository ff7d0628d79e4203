package generation

import (
	"testing"

	"reading-platform/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestEstimateReadingMinutes(t *testing.T) {
	tests := []struct {
		name  string
		words int
		age   int
		level string
		want  int
	}{
		{"short text is at least one minute", 3, 7, models.ReadingLevelBeginner, 1},
		{"empty text is at least one minute", 0, 9, models.ReadingLevelAdvanced, 1},
		{"exact multiple", 160, 7, models.ReadingLevelBeginner, 2},
		{"rounds up", 161, 7, models.ReadingLevelBeginner, 3},
		{"intermediate 12", 400, 12, models.ReadingLevelIntermediate, 2},
		{"advanced 8", 151, 8, models.ReadingLevelAdvanced, 2},
		{"unknown level uses default", 240, 9, "expert", 2},
		{"unknown age uses default", 121, 15, models.ReadingLevelBeginner, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateReadingMinutes(tt.words, tt.age, tt.level))
		})
	}
}

func TestVocabularyLevelMirrorsReadingLevel(t *testing.T) {
	assert.Equal(t, models.ReadingLevelAdvanced, VocabularyLevel(models.ReadingLevelAdvanced))
}

func TestParagraphs(t *testing.T) {
	assert.Equal(t, []string{"One.", "Two."}, Paragraphs("One.\r\n\r\n\n\nTwo.\n"))
	assert.Equal(t, []string{"Single line"}, Paragraphs("  Single line  "))
	assert.Empty(t, Paragraphs("   "))
}
