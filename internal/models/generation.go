package models

// PreviousChoice - последний сделанный выбор, передаваемый в контекст генерации.
type PreviousChoice struct {
	Question string `json:"question"`
	Chosen   string `json:"chosen"`
}

// GenerationRequest - входные данные одной генерации главы.
// PreviousChapters упорядочены, последняя глава в конце.
type GenerationRequest struct {
	Theme            string
	ChapterNumber    int
	TotalChapters    int
	IsFinalChapter   bool
	PreviousChapters []string
	PreviousChoice   *PreviousChoice
	CustomInput      string
	Child            Child
}

// SafetyIssue - замечание проверки безопасности.
type SafetyIssue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Уровни серьезности замечаний.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// GenerationResult - итог работы оркестратора.
// Approved == (SafetyScore >= порог), Choices не пусты после финализации.
type GenerationResult struct {
	Title                   string         `json:"title,omitempty"`
	StoryText               string         `json:"story_text"`
	ChoiceQuestion          string         `json:"choice_question"`
	Choices                 []ChoiceOption `json:"choices"`
	EducationalElements     []string       `json:"educational_elements"`
	VocabularyWords         []string       `json:"vocabulary_words"`
	SafetyScore             float64        `json:"safety_score"`
	Approved                bool           `json:"approved"`
	Issues                  []SafetyIssue  `json:"issues"`
	NeedsReview             bool           `json:"needs_review"`
	Recommendations         []string       `json:"recommendations"`
	EstimatedReadingMinutes int            `json:"estimated_reading_minutes"`
	VocabularyLevel         string         `json:"vocabulary_level"`
	WordCount               int            `json:"word_count"`
	Regenerations           int            `json:"regenerations"`
	Enhancements            int            `json:"enhancements"`
}
