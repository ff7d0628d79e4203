package generation

import (
	"slices"

	"reading-platform/internal/models"
	"reading-platform/internal/safety"
)

// State - неизменяемое состояние одного прогона оркестратора.
// Узлы не меняют State, а возвращают Update, который применяется через With.
type State struct {
	Request             models.GenerationRequest
	Title               string
	StoryText           string
	ChoiceQuestion      string
	Choices             []models.ChoiceOption
	EducationalElements []string
	VocabularyWords     []string
	Report              *safety.Report
	ReadingMinutes      int
	VocabularyLevel     string
	WordCount           int
	// Attempt - номер попытки генерации, начиная с 0. Regenerations == Attempt.
	Attempt             int
	EnhancedThisAttempt bool
	Enhancements        int
}

// Update - частичное обновление State. nil-поля не меняются.
type Update struct {
	Draft               *Draft
	StoryText           *string
	Report              *safety.Report
	ReadingMinutes      *int
	VocabularyLevel     *string
	WordCount           *int
	Attempt             *int
	EnhancedThisAttempt *bool
	Enhancements        *int
}

// NewState создает начальное состояние для запроса.
func NewState(req models.GenerationRequest) State {
	return State{Request: req}
}

// With возвращает копию состояния с примененным обновлением.
func (s State) With(u Update) State {
	next := s
	if u.Draft != nil {
		next.Title = u.Draft.Title
		next.StoryText = u.Draft.StoryText
		next.ChoiceQuestion = u.Draft.ChoiceQuestion
		next.Choices = slices.Clone(u.Draft.Choices)
		next.EducationalElements = slices.Clone(u.Draft.EducationalElements)
		next.VocabularyWords = slices.Clone(u.Draft.VocabularyWords)
		next.Report = nil
	}
	if u.StoryText != nil {
		next.StoryText = *u.StoryText
		next.Report = nil
	}
	if u.Report != nil {
		report := *u.Report
		next.Report = &report
	}
	if u.ReadingMinutes != nil {
		next.ReadingMinutes = *u.ReadingMinutes
	}
	if u.VocabularyLevel != nil {
		next.VocabularyLevel = *u.VocabularyLevel
	}
	if u.WordCount != nil {
		next.WordCount = *u.WordCount
	}
	if u.Attempt != nil {
		next.Attempt = *u.Attempt
	}
	if u.EnhancedThisAttempt != nil {
		next.EnhancedThisAttempt = *u.EnhancedThisAttempt
	}
	if u.Enhancements != nil {
		next.Enhancements = *u.Enhancements
	}
	return next
}

// Result собирает итог генерации из финального состояния.
func (s State) Result() *models.GenerationResult {
	result := &models.GenerationResult{
		Title:                   s.Title,
		StoryText:               s.StoryText,
		ChoiceQuestion:          s.ChoiceQuestion,
		Choices:                 slices.Clone(s.Choices),
		EducationalElements:     slices.Clone(s.EducationalElements),
		VocabularyWords:         slices.Clone(s.VocabularyWords),
		EstimatedReadingMinutes: s.ReadingMinutes,
		VocabularyLevel:         s.VocabularyLevel,
		WordCount:               s.WordCount,
		Regenerations:           s.Attempt,
		Enhancements:            s.Enhancements,
	}
	if s.Report != nil {
		result.SafetyScore = s.Report.Score
		result.Approved = s.Report.Approved
		result.NeedsReview = s.Report.NeedsReview
		result.Issues = slices.Clone(s.Report.Issues)
		result.Recommendations = slices.Clone(s.Report.Recommendations)
	}
	return result
}

func ptr[T any](v T) *T { return &v }
