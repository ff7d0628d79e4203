package safety

import (
	"fmt"
	"regexp"
	"strings"

	"reading-platform/internal/models"
)

// ageGuideline - возрастные ограничения по содержанию и сложности текста.
type ageGuideline struct {
	avoid         []string
	prefer        []string
	maxComplexity int
}

const fallbackGuidelineAge = 9

var ageGuidelines = map[int]ageGuideline{
	7: {
		avoid:         []string{"death", "violence", "scary", "nightmare", "monster", "ghost"},
		prefer:        []string{"friendship", "family", "animals", "adventure", "learning"},
		maxComplexity: 2,
	},
	8: {
		avoid:         []string{"death", "serious illness", "violence", "horror"},
		prefer:        []string{"friendship", "problem-solving", "creativity", "nature"},
		maxComplexity: 3,
	},
	9: {
		avoid:         []string{"graphic violence", "death", "horror", "adult themes"},
		prefer:        []string{"adventure", "mystery", "science", "friendship"},
		maxComplexity: 4,
	},
	10: {
		avoid:         []string{"graphic violence", "inappropriate relationships", "mature themes"},
		prefer:        []string{"mystery", "adventure", "learning", "challenges"},
		maxComplexity: 5,
	},
	11: {
		avoid:         []string{"graphic content", "inappropriate relationships", "extreme violence"},
		prefer:        []string{"complex stories", "moral dilemmas", "growth"},
		maxComplexity: 6,
	},
	12: {
		avoid:         []string{"explicit content", "inappropriate relationships"},
		prefer:        []string{"coming of age", "responsibility", "complex themes"},
		maxComplexity: 7,
	},
}

const (
	avoidPenalty      = 0.3
	complexityPenalty = 0.1
	preferBonus       = 0.1
)

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

// AgeAppropriateness оценивает соответствие текста возрасту по спискам слов
// и средней длине предложения. Возвращает оценку в [0,1] и замечания.
func AgeAppropriateness(text string, age int) (float64, []models.SafetyIssue) {
	guideline, ok := ageGuidelines[age]
	if !ok {
		guideline = ageGuidelines[fallbackGuidelineAge]
	}
	lower := strings.ToLower(text)

	score := 1.0
	var issues []models.SafetyIssue
	for _, term := range guideline.avoid {
		if strings.Contains(lower, term) {
			issues = append(issues, models.SafetyIssue{
				Type:        IssueInappropriateContent,
				Description: fmt.Sprintf("Contains '%s' which may be inappropriate for age %d", term, age),
				Severity:    models.SeverityHigh,
			})
			score -= avoidPenalty
		}
	}

	if averageSentenceLength(text) > float64(guideline.maxComplexity*5) {
		issues = append(issues, models.SafetyIssue{
			Type:        IssueComplexity,
			Description: fmt.Sprintf("Content may be too complex for age %d", age),
			Severity:    models.SeverityMedium,
		})
		score -= complexityPenalty
	}

	for _, term := range guideline.prefer {
		if strings.Contains(lower, term) {
			score += preferBonus
			break
		}
	}

	return clamp01(score), issues
}

// averageSentenceLength - среднее число слов на отрезок между знаками конца предложения.
// Пустой хвост после последней точки тоже считается отрезком.
func averageSentenceLength(text string) float64 {
	sentences := sentenceSplitRe.Split(text, -1)
	if len(sentences) == 0 {
		return 0
	}
	words := 0
	for _, s := range sentences {
		words += len(strings.Fields(s))
	}
	return float64(words) / float64(len(sentences))
}

type indicatorCategory struct {
	name     string
	keywords []string
}

var educationalIndicators = []indicatorCategory{
	{name: "vocabulary", keywords: []string{"learn", "discover", "understand", "explain", "describe"}},
	{name: "problem_solving", keywords: []string{"solve", "figure out", "think", "decide", "choose"}},
	{name: "moral_values", keywords: []string{"kind", "help", "share", "honest", "brave", "friend"}},
	{name: "creativity", keywords: []string{"imagine", "create", "build", "draw", "story", "idea"}},
	{name: "science", keywords: []string{"nature", "animal", "plant", "earth", "space", "experiment"}},
	{name: "social_skills", keywords: []string{"together", "team", "cooperation", "communicate", "respect"}},
}

const (
	educationalBase           = 0.5
	educationalStep           = 0.1
	educationalRecommendBelow = 0.7
)

var educationalRecommendations = []string{
	"Consider adding more educational elements",
	"Include vocabulary building opportunities",
	"Add problem-solving scenarios",
}

// EducationalValue ищет образовательные признаки по категориям.
// Возвращает оценку, найденные элементы ("категория: слово, слово") и рекомендации.
func EducationalValue(text string) (float64, []string, []string) {
	lower := strings.ToLower(text)
	score := educationalBase
	var found []string
	for _, category := range educationalIndicators {
		var hits []string
		for _, keyword := range category.keywords {
			if strings.Contains(lower, keyword) {
				hits = append(hits, keyword)
			}
		}
		if len(hits) == 0 {
			continue
		}
		score += educationalStep
		if len(hits) > 2 {
			hits = hits[:2]
		}
		found = append(found, category.name+": "+strings.Join(hits, ", "))
	}
	score = min(score, 1.0)

	var recommendations []string
	if score < educationalRecommendBelow {
		recommendations = append(recommendations, educationalRecommendations...)
	}
	return score, found, recommendations
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
