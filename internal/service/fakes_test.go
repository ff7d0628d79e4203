package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reading-platform/internal/generation"
	"reading-platform/internal/interfaces"
	"reading-platform/internal/interfaces/mocks"
	"reading-platform/internal/models"

	"github.com/google/uuid"
)

// memoryStore - граф истории и сессии в памяти с теми же условиями уникальности, что и в схеме БД.
type memoryStore struct {
	mu       sync.Mutex
	chapters map[string]*models.Chapter
	choices  map[uuid.UUID]*models.Choice
	branches map[string]*models.Branch
	sessions map[uuid.UUID]*models.StorySession
	order    []uuid.UUID
}

var (
	_ interfaces.ChapterRepository = (*memoryStore)(nil)
	_ interfaces.SessionRepository = (*memoryStore)(nil)
)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		chapters: map[string]*models.Chapter{},
		choices:  map[uuid.UUID]*models.Choice{},
		branches: map[string]*models.Branch{},
		sessions: map[uuid.UUID]*models.StorySession{},
	}
}

func chapterKey(storyID uuid.UUID, number int) string { return fmt.Sprintf("%s:%d", storyID, number) }
func branchKey(choiceID uuid.UUID, index int) string  { return fmt.Sprintf("%s:%d", choiceID, index) }

func (m *memoryStore) InsertChapter(ctx context.Context, _ interfaces.DBTX, chapter *models.Chapter) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := chapterKey(chapter.StoryID, chapter.ChapterNumber)
	if _, ok := m.chapters[key]; ok {
		return false, nil
	}
	c := *chapter
	c.CreatedAt = time.Now()
	m.chapters[key] = &c
	return true, nil
}

func (m *memoryStore) GetChapter(ctx context.Context, _ interfaces.DBTX, storyID uuid.UUID, number int) (*models.Chapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chapters[chapterKey(storyID, number)]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *memoryStore) ListChapters(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) ([]*models.Chapter, error) {
	return m.ListChaptersBefore(ctx, q, storyID, 1<<30)
}

func (m *memoryStore) ListChaptersBefore(ctx context.Context, _ interfaces.DBTX, storyID uuid.UUID, before int) ([]*models.Chapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Chapter, 0)
	for _, c := range m.chapters {
		if c.StoryID == storyID && c.ChapterNumber < before {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

func (m *memoryStore) InsertChoice(ctx context.Context, _ interfaces.DBTX, choice *models.Choice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.choices {
		if c.StoryID == choice.StoryID && c.ChapterNumber == choice.ChapterNumber {
			return false, nil
		}
	}
	c := *choice
	m.choices[c.ID] = &c
	return true, nil
}

func (m *memoryStore) GetChoiceByID(ctx context.Context, _ interfaces.DBTX, id uuid.UUID) (*models.Choice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.choices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *memoryStore) GetChoiceByChapter(ctx context.Context, _ interfaces.DBTX, storyID uuid.UUID, number int) (*models.Choice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.choices {
		if c.StoryID == storyID && c.ChapterNumber == number {
			out := *c
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memoryStore) InsertBranches(ctx context.Context, _ interfaces.DBTX, branches []*models.Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range branches {
		key := branchKey(b.ChoiceID, b.OptionIndex)
		if _, ok := m.branches[key]; ok {
			continue
		}
		cp := *b
		m.branches[key] = &cp
	}
	return nil
}

func (m *memoryStore) GetBranch(ctx context.Context, _ interfaces.DBTX, choiceID uuid.UUID, index int) (*models.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[branchKey(choiceID, index)]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *b
	return &out, nil
}

func (m *memoryStore) SetBranchContent(ctx context.Context, _ interfaces.DBTX, branchID uuid.UUID, content string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.branches {
		if b.ID == branchID {
			if b.Content != nil {
				return false, nil
			}
			c := content
			b.Content = &c
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) Create(ctx context.Context, _ interfaces.DBTX, session *models.StorySession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ChildID == session.ChildID && s.StoryID == session.StoryID && !s.IsCompleted {
			return false, nil
		}
	}
	now := time.Now()
	session.StartedAt, session.LastAccessedAt = now, now
	cp := *session
	cp.ChoicesMade = append([]models.ChoiceRecord{}, session.ChoicesMade...)
	m.sessions[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	return true, nil
}

func (m *memoryStore) copySession(s *models.StorySession) *models.StorySession {
	out := *s
	out.ChoicesMade = append([]models.ChoiceRecord{}, s.ChoicesMade...)
	return &out
}

func (m *memoryStore) GetByID(ctx context.Context, _ interfaces.DBTX, id uuid.UUID) (*models.StorySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m.copySession(s), nil
}

func (m *memoryStore) GetActive(ctx context.Context, _ interfaces.DBTX, childID, storyID uuid.UUID) (*models.StorySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ChildID == childID && s.StoryID == storyID && !s.IsCompleted {
			return m.copySession(s), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memoryStore) ListByChild(ctx context.Context, _ interfaces.DBTX, childID uuid.UUID, limit int) ([]*models.StorySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.StorySession, 0)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if s := m.sessions[m.order[i]]; s.ChildID == childID {
			out = append(out, m.copySession(s))
		}
	}
	return out, nil
}

func (m *memoryStore) Advance(ctx context.Context, _ interfaces.DBTX, id uuid.UUID, record models.ChoiceRecord, from, to, completion int, completed bool) (*models.StorySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.IsCompleted || s.CurrentChapter != from {
		return nil, models.ErrNotFound
	}
	s.ChoicesMade = append(s.ChoicesMade, record)
	s.CurrentChapter = to
	s.CompletionPercentage = max(s.CompletionPercentage, completion)
	if completed {
		now := time.Now()
		s.IsCompleted = true
		s.CompletedAt = &now
	}
	return m.copySession(s), nil
}

func (m *memoryStore) UpdateProgress(ctx context.Context, _ interfaces.DBTX, id uuid.UUID, p models.ReadingProgress, wpm float64) (*models.StorySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.WordsRead = max(s.WordsRead, p.WordsRead)
	s.ReadingDurationSeconds = max(s.ReadingDurationSeconds, p.ReadingDurationSeconds)
	s.PauseCount = max(s.PauseCount, p.PauseCount)
	s.ReadingSpeedWPM = wpm
	return m.copySession(s), nil
}

func (m *memoryStore) SetBookmark(ctx context.Context, _ interfaces.DBTX, id uuid.UUID, bookmarked bool) (*models.StorySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.IsBookmarked = bookmarked
	return m.copySession(s), nil
}

func (m *memoryStore) Complete(ctx context.Context, _ interfaces.DBTX, id uuid.UUID) (*models.StorySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.CompletionPercentage = 100
	if !s.IsCompleted {
		now := time.Now()
		s.IsCompleted = true
		s.CompletedAt = &now
	}
	return m.copySession(s), nil
}

func (m *memoryStore) chapterCount(storyID uuid.UUID, number int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.chapters {
		if c.StoryID == storyID && c.ChapterNumber == number {
			n++
		}
	}
	return n
}

// seedChapter кладет готовую главу с точкой выбора из двух вариантов, ведущих к следующей главе.
func (m *memoryStore) seedChapter(storyID uuid.UUID, number, total int) *models.Choice {
	chapter := &models.Chapter{
		ID:            uuid.New(),
		StoryID:       storyID,
		ChapterNumber: number,
		Title:         fmt.Sprintf("Chapter %d", number),
		Content:       fmt.Sprintf("Seeded chapter %d.", number),
		IsEnding:      number >= total,
	}
	_, _ = m.InsertChapter(context.Background(), nil, chapter)
	if number >= total {
		return nil
	}
	choice := &models.Choice{
		ID:            uuid.New(),
		StoryID:       storyID,
		ChapterNumber: number,
		Question:      "Which way?",
		Options:       []models.ChoiceOption{{Text: "Follow the comet"}, {Text: "Visit the moon"}},
	}
	_, _ = m.InsertChoice(context.Background(), nil, choice)
	branches := make([]*models.Branch, 0, len(choice.Options))
	for i := range choice.Options {
		branches = append(branches, &models.Branch{
			ID:             uuid.New(),
			StoryID:        storyID,
			ChoiceID:       choice.ID,
			OptionIndex:    i,
			LeadsToChapter: number + 1,
			IsEnding:       number+1 >= total,
		})
	}
	_ = m.InsertBranches(context.Background(), nil, branches)
	return choice
}

// serialTx выполняет транзакции по одной.
type serialTx struct {
	mu sync.Mutex
}

func (t *serialTx) WithTx(ctx context.Context, fn func(tx interfaces.DBTX) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(mocks.DBTX{})
}

// fakeGenerator отдает детерминированный текст по номеру главы.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
	reqs  []models.GenerationRequest
}

func (g *fakeGenerator) RunWithEvents(ctx context.Context, req models.GenerationRequest, sink generation.EventSink) (*models.GenerationResult, error) {
	g.mu.Lock()
	g.calls++
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	if sink != nil {
		sink.Emit(generation.Event{Type: generation.EventContent, Data: generation.ContentEventData{Chunk: "Once upon a time", IsComplete: true}})
	}
	return &models.GenerationResult{
		Title:                   "The Comet Trail",
		StoryText:               fmt.Sprintf("Generated chapter %d about %s.", req.ChapterNumber, req.Theme),
		ChoiceQuestion:          "What should Maya do?",
		Choices:                 []models.ChoiceOption{{Text: "Open the hatch"}, {Text: "Call mission control"}},
		EducationalElements:     []string{"Reading comprehension"},
		VocabularyWords:         []string{"nebula", "orbit"},
		SafetyScore:             0.92,
		Approved:                true,
		EstimatedReadingMinutes: 2,
		VocabularyLevel:         req.Child.ReadingLevel,
		WordCount:               6,
	}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
