package service

import (
	"context"
	"testing"
	"time"

	"reading-platform/internal/interfaces/mocks"
	"reading-platform/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type childFixture struct {
	childRepo     *mocks.ChildRepository
	analyticsRepo *mocks.AnalyticsRepository
	cache         *mocks.Cache
	store         *memoryStore
	svc           *childServiceImpl
	parentID      uuid.UUID
}

func newChildFixture(t *testing.T) *childFixture {
	t.Helper()
	f := &childFixture{
		childRepo:     new(mocks.ChildRepository),
		analyticsRepo: new(mocks.AnalyticsRepository),
		cache:         new(mocks.Cache),
		store:         newMemoryStore(),
		parentID:      uuid.New(),
	}
	f.svc = NewChildService(mocks.DBTX{}, f.childRepo, f.store, f.analyticsRepo, f.cache, zap.NewNop()).(*childServiceImpl)
	f.svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *childFixture) existingChild(level string, score int) *models.Child {
	child := &models.Child{
		ID:                uuid.New(),
		ParentID:          f.parentID,
		Name:              "Maya",
		Age:               9,
		Language:          models.LanguageEnglish,
		ReadingLevel:      level,
		ReadingLevelScore: score,
		Interests:         []string{"nature"},
		IsActive:          true,
	}
	f.childRepo.On("GetByID", mock.Anything, mock.Anything, child.ID).Return(child, nil)
	return child
}

func (f *childFixture) expectCacheDrop(child *models.Child) {
	f.cache.On("DeleteByPrefix", mock.Anything, models.ChildAnalyticsCachePrefix(child.ID)).Return(nil).Once()
	f.cache.On("DeleteByPrefix", mock.Anything, models.RecommendationsCachePrefix(child.ID)).Return(nil).Once()
	f.cache.On("Delete", mock.Anything, []string{models.ParentDashboardCacheKey(f.parentID)}).Return(nil).Once()
}

func TestReadingScoreFormulas(t *testing.T) {
	assert.Equal(t, 30, InitialReadingScore(models.ReadingLevelBeginner, 7, 0))
	assert.Equal(t, 60+15+6, InitialReadingScore(models.ReadingLevelIntermediate, 10, 3))
	assert.Equal(t, 100, InitialReadingScore(models.ReadingLevelAdvanced, 12, 8))
	assert.Equal(t, 30+10, InitialReadingScore(models.ReadingLevelBeginner, 7, 9))

	assert.Equal(t, 70, RebaseReadingScore(40, models.ReadingLevelBeginner, models.ReadingLevelIntermediate))
	assert.Equal(t, 100, RebaseReadingScore(95, models.ReadingLevelBeginner, models.ReadingLevelAdvanced))
	assert.Equal(t, 0, RebaseReadingScore(5, models.ReadingLevelAdvanced, models.ReadingLevelBeginner))

	assert.Equal(t, models.ReadingLevelBeginner, LevelFromAssessment(39, 7))
	assert.Equal(t, models.ReadingLevelIntermediate, LevelFromAssessment(40, 7))
	assert.Equal(t, models.ReadingLevelAdvanced, LevelFromAssessment(70, 7))
	// Для 11 лет пороги сдвигаются на 20.
	assert.Equal(t, models.ReadingLevelBeginner, LevelFromAssessment(55, 11))
	assert.Equal(t, models.ReadingLevelIntermediate, LevelFromAssessment(85, 11))
}

func TestCreateChild_DefaultsAndScore(t *testing.T) {
	f := newChildFixture(t)
	var saved *models.Child
	f.childRepo.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.Child")).
		Run(func(args mock.Arguments) { saved = args.Get(2).(*models.Child) }).
		Return(nil).Once()
	f.cache.On("Delete", mock.Anything, []string{models.ParentDashboardCacheKey(f.parentID)}).Return(nil).Once()

	child, err := f.svc.CreateChild(context.Background(), f.parentID, CreateChildRequest{
		Name:      " Eli ",
		Age:       8,
		Interests: []string{"Animals", "space ", "animals"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.Nil(t, child)

	child, err = f.svc.CreateChild(context.Background(), f.parentID, CreateChildRequest{
		Name:      " Eli ",
		Age:       8,
		Interests: []string{"Animals", "music ", "animals"},
	})
	require.NoError(t, err)
	require.Same(t, saved, child)
	assert.Equal(t, "Eli", child.Name)
	assert.Equal(t, models.LanguageEnglish, child.Language)
	assert.Equal(t, models.ReadingLevelBeginner, child.ReadingLevel)
	assert.Equal(t, []string{"animals", "music"}, child.Interests)
	assert.Equal(t, 30+5+4, child.ReadingLevelScore)
	assert.True(t, child.IsActive)
	f.cache.AssertExpectations(t)
}

func TestCreateChild_Validation(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	cases := []CreateChildRequest{
		{Name: "", Age: 8},
		{Name: "Eli", Age: 6},
		{Name: "Eli", Age: 13},
		{Name: "Eli", Age: 8, Language: "french"},
		{Name: "Eli", Age: 8, ReadingLevel: "expert"},
	}
	for _, req := range cases {
		_, err := f.svc.CreateChild(ctx, f.parentID, req)
		assert.ErrorIs(t, err, models.ErrBadRequest, "request %+v", req)
	}
	f.childRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateChild_RebasesScoreOnLevelChange(t *testing.T) {
	f := newChildFixture(t)
	child := f.existingChild(models.ReadingLevelBeginner, 45)
	f.childRepo.On("Update", mock.Anything, mock.Anything, child).Return(nil).Once()
	f.expectCacheDrop(child)

	level := models.ReadingLevelIntermediate
	name := "Maya R."
	got, err := f.svc.UpdateChild(context.Background(), f.parentID, child.ID, models.ChildUpdate{ReadingLevel: &level, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, models.ReadingLevelIntermediate, got.ReadingLevel)
	assert.Equal(t, 75, got.ReadingLevelScore)
	assert.Equal(t, "Maya R.", got.Name)
	f.cache.AssertExpectations(t)
}

func TestUpdateChild_Ownership(t *testing.T) {
	f := newChildFixture(t)
	child := f.existingChild(models.ReadingLevelBeginner, 30)
	age := 10

	_, err := f.svc.UpdateChild(context.Background(), uuid.New(), child.ID, models.ChildUpdate{Age: &age})
	assert.ErrorIs(t, err, models.ErrForbidden)

	f.childRepo.On("GetByID", mock.Anything, mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
	_, err = f.svc.UpdateChild(context.Background(), f.parentID, uuid.New(), models.ChildUpdate{Age: &age})
	assert.ErrorIs(t, err, models.ErrChildNotFound)
	f.childRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteChild(t *testing.T) {
	f := newChildFixture(t)
	child := f.existingChild(models.ReadingLevelBeginner, 30)
	f.childRepo.On("Delete", mock.Anything, mock.Anything, child.ID, f.parentID).Return(nil).Once()
	f.expectCacheDrop(child)

	require.NoError(t, f.svc.DeleteChild(context.Background(), f.parentID, child.ID))
	f.childRepo.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestAssessReading(t *testing.T) {
	ctx := context.Background()
	f := newChildFixture(t)
	child := f.existingChild(models.ReadingLevelBeginner, 40)

	_, err := f.svc.AssessReading(ctx, f.parentID, child.ID, AssessmentRequest{CorrectAnswers: 5, TotalQuestions: 4})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	// 9 лет: пороги 50 и 80.
	same, err := f.svc.AssessReading(ctx, f.parentID, child.ID, AssessmentRequest{CorrectAnswers: 4, TotalQuestions: 10})
	require.NoError(t, err)
	assert.False(t, same.LevelChanged)
	assert.Equal(t, models.ReadingLevelBeginner, same.NewLevel)
	f.childRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)

	f.childRepo.On("Update", mock.Anything, mock.Anything, child).Return(nil).Once()
	f.expectCacheDrop(child)
	changed, err := f.svc.AssessReading(ctx, f.parentID, child.ID, AssessmentRequest{CorrectAnswers: 9, TotalQuestions: 10})
	require.NoError(t, err)
	assert.True(t, changed.LevelChanged)
	assert.Equal(t, models.ReadingLevelBeginner, changed.PreviousLevel)
	assert.Equal(t, models.ReadingLevelAdvanced, changed.NewLevel)
	assert.InDelta(t, 90.0, changed.Percentage, 0.001)
	assert.Equal(t, 95, changed.NewLevelScore)
	assert.Equal(t, models.ReadingLevelAdvanced, child.ReadingLevel)
}

func TestGetDashboard(t *testing.T) {
	ctx := context.Background()
	f := newChildFixture(t)
	child := f.existingChild(models.ReadingLevelIntermediate, 60)
	child.TotalStoriesCompleted = 12
	child.TotalReadingSeconds = 3600
	child.CurrentStreakDays = 4

	storyID := uuid.New()
	for i := 0; i < 7; i++ {
		created, err := f.store.Create(ctx, nil, &models.StorySession{ID: uuid.New(), ChildID: child.ID, StoryID: storyID, IsCompleted: true})
		require.NoError(t, err)
		require.True(t, created)
	}
	since := f.svc.now().Add(-7 * 24 * time.Hour)
	f.analyticsRepo.On("PeriodStats", mock.Anything, mock.Anything, child.ID, since).
		Return(&models.PeriodStats{CompletedCount: 3, TotalSeconds: 1500}, nil).Once()

	dash, err := f.svc.GetDashboard(ctx, f.parentID, child.ID)
	require.NoError(t, err)
	assert.Len(t, dash.RecentSessions, 5)
	assert.Equal(t, 3, dash.WeeklyStoriesRead)
	assert.Equal(t, 25, dash.WeeklyReadingMinutes)
	assert.Equal(t, 12, dash.TotalStoriesRead)
	assert.Equal(t, 60, dash.TotalReadingMinutes)
	assert.Equal(t, 4, dash.CurrentStreakDays)
}
