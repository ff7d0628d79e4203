package messaging

import (
	"context"
	"errors"
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

func TestAnalyticsHandler_SessionCompleted(t *testing.T) {
	ctx := context.Background()
	child := &models.Child{ID: uuid.New(), ParentID: uuid.New()}
	occurred := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	event := models.DomainEvent{
		EventID:         "evt-1",
		Type:            models.EventSessionCompleted,
		ChildID:         child.ID,
		VocabularyWords: 3,
		OccurredAt:      occurred,
	}

	childRepo := new(mocks.ChildRepository)
	cache := new(mocks.Cache)
	cache.On("Get", mock.Anything, "events:processed:evt-1", mock.Anything).Return(false, nil).Once()
	childRepo.On("GetByID", mock.Anything, mock.Anything, child.ID).Return(child, nil).Once()
	childRepo.On("ApplyReadingTotals", mock.Anything, mock.Anything, child.ID, models.ReadingTotalsDelta{
		StoriesCompleted: 1,
		VocabularyWords:  3,
		ActiveAt:         occurred,
	}).Return(nil).Once()
	cache.On("Set", mock.Anything, "events:processed:evt-1", true, processedEventTTL).Return(nil).Once()
	cache.On("DeleteByPrefix", mock.Anything, models.ChildAnalyticsCachePrefix(child.ID)).Return(nil).Once()
	cache.On("Delete", mock.Anything, []string{models.ParentDashboardCacheKey(child.ParentID)}).Return(nil).Once()

	handler := NewAnalyticsHandler(mocks.DBTX{}, childRepo, cache, zap.NewNop())
	require.NoError(t, handler.Handle(ctx, event))

	childRepo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestAnalyticsHandler_DuplicateSkipped(t *testing.T) {
	childRepo := new(mocks.ChildRepository)
	cache := new(mocks.Cache)
	cache.On("Get", mock.Anything, "events:processed:evt-2", mock.Anything).Return(true, true, nil).Once()

	handler := NewAnalyticsHandler(mocks.DBTX{}, childRepo, cache, zap.NewNop())
	err := handler.Handle(context.Background(), models.DomainEvent{
		EventID:        "evt-2",
		Type:           models.EventReadingProgress,
		ChildID:        uuid.New(),
		WordsRead:      120,
		ReadingSeconds: 60,
	})
	require.NoError(t, err)
	childRepo.AssertNotCalled(t, "ApplyReadingTotals", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyticsHandler_IgnoresUnrelatedEvents(t *testing.T) {
	handler := NewAnalyticsHandler(mocks.DBTX{}, new(mocks.ChildRepository), new(mocks.Cache), zap.NewNop())

	assert.NoError(t, handler.Handle(context.Background(), models.DomainEvent{Type: models.EventChapterGenerated, ChildID: uuid.New()}))
	assert.NoError(t, handler.Handle(context.Background(), models.DomainEvent{Type: models.EventReadingProgress, ChildID: uuid.New()}))
}

func TestAnalyticsHandler_RepositoryErrorIsReturned(t *testing.T) {
	child := &models.Child{ID: uuid.New(), ParentID: uuid.New()}
	childRepo := new(mocks.ChildRepository)
	cache := new(mocks.Cache)
	cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	childRepo.On("GetByID", mock.Anything, mock.Anything, child.ID).Return(child, nil)
	childRepo.On("ApplyReadingTotals", mock.Anything, mock.Anything, child.ID, mock.Anything).Return(errors.New("db down"))

	handler := NewAnalyticsHandler(mocks.DBTX{}, childRepo, cache, zap.NewNop())
	err := handler.Handle(context.Background(), models.DomainEvent{
		EventID: "evt-3", Type: models.EventSessionCompleted, ChildID: child.ID,
	})
	assert.Error(t, err)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyticsHandler_UnknownChildDropped(t *testing.T) {
	childRepo := new(mocks.ChildRepository)
	cache := new(mocks.Cache)
	cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	childRepo.On("GetByID", mock.Anything, mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)

	handler := NewAnalyticsHandler(mocks.DBTX{}, childRepo, cache, zap.NewNop())
	assert.NoError(t, handler.Handle(context.Background(), models.DomainEvent{
		EventID: "evt-4", Type: models.EventSessionCompleted, ChildID: uuid.New(),
	}))
}

func TestInProcessPublisher_FillsDefaults(t *testing.T) {
	var got models.DomainEvent
	publisher := NewInProcessPublisher(handlerFunc(func(ctx context.Context, e models.DomainEvent) error {
		got = e
		return nil
	}), zap.NewNop())

	require.NoError(t, publisher.Publish(context.Background(), models.DomainEvent{Type: models.EventChapterGenerated}))
	assert.NotEmpty(t, got.EventID)
	assert.False(t, got.OccurredAt.IsZero())

	failing := NewInProcessPublisher(handlerFunc(func(ctx context.Context, e models.DomainEvent) error {
		return errors.New("boom")
	}), zap.NewNop())
	assert.Error(t, failing.Publish(context.Background(), models.DomainEvent{Type: models.EventSessionCompleted}))
}

type handlerFunc func(ctx context.Context, e models.DomainEvent) error

func (f handlerFunc) Handle(ctx context.Context, e models.DomainEvent) error { return f(ctx, e) }
