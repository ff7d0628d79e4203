package generation

import (
	"math"
	"strings"

	"reading-platform/internal/models"
)

const defaultWordsPerMinute = 120

// wordsPerMinute - скорость чтения по уровню и возрасту.
var wordsPerMinute = map[string]map[int]int{
	models.ReadingLevelBeginner:     {7: 80, 8: 90, 9: 100, 10: 110, 11: 120, 12: 130},
	models.ReadingLevelIntermediate: {7: 100, 8: 120, 9: 140, 10: 160, 11: 180, 12: 200},
	models.ReadingLevelAdvanced:     {7: 120, 8: 150, 9: 180, 10: 210, 11: 240, 12: 270},
}

// CountWords считает слова, разделенные пробельными символами.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// WordsPerMinute возвращает ожидаемую скорость чтения ребенка.
func WordsPerMinute(age int, readingLevel string) int {
	if byAge, ok := wordsPerMinute[readingLevel]; ok {
		if wpm, ok := byAge[age]; ok {
			return wpm
		}
	}
	return defaultWordsPerMinute
}

// EstimateReadingMinutes - минуты чтения с округлением вверх, минимум 1.
func EstimateReadingMinutes(words, age int, readingLevel string) int {
	minutes := int(math.Ceil(float64(words) / float64(WordsPerMinute(age, readingLevel))))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// VocabularyLevel пока совпадает с уровнем чтения ребенка.
func VocabularyLevel(readingLevel string) string {
	return readingLevel
}
