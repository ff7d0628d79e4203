package mocks

import (
	"context"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// UserRepository - мок interfaces.UserRepository
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, querier interfaces.DBTX, user *models.User) error {
	args := m.Called(ctx, querier, user)
	return args.Error(0)
}

func (m *UserRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, querier, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, querier interfaces.DBTX, email string) (*models.User, error) {
	args := m.Called(ctx, querier, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

// ChildRepository - мок interfaces.ChildRepository
type ChildRepository struct {
	mock.Mock
}

func (m *ChildRepository) Create(ctx context.Context, querier interfaces.DBTX, child *models.Child) error {
	args := m.Called(ctx, querier, child)
	return args.Error(0)
}

func (m *ChildRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Child, error) {
	args := m.Called(ctx, querier, id)
	child, _ := args.Get(0).(*models.Child)
	return child, args.Error(1)
}

func (m *ChildRepository) ListByParent(ctx context.Context, querier interfaces.DBTX, parentID uuid.UUID) ([]*models.Child, error) {
	args := m.Called(ctx, querier, parentID)
	children, _ := args.Get(0).([]*models.Child)
	return children, args.Error(1)
}

func (m *ChildRepository) Update(ctx context.Context, querier interfaces.DBTX, child *models.Child) error {
	args := m.Called(ctx, querier, child)
	return args.Error(0)
}

func (m *ChildRepository) Delete(ctx context.Context, querier interfaces.DBTX, id, parentID uuid.UUID) error {
	args := m.Called(ctx, querier, id, parentID)
	return args.Error(0)
}

func (m *ChildRepository) ApplyReadingTotals(ctx context.Context, querier interfaces.DBTX, childID uuid.UUID, delta models.ReadingTotalsDelta) error {
	args := m.Called(ctx, querier, childID, delta)
	return args.Error(0)
}

// StoryRepository - мок interfaces.StoryRepository
type StoryRepository struct {
	mock.Mock
}

func (m *StoryRepository) Create(ctx context.Context, querier interfaces.DBTX, story *models.Story) error {
	args := m.Called(ctx, querier, story)
	return args.Error(0)
}

func (m *StoryRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, querier, id)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}

func (m *StoryRepository) ListPublished(ctx context.Context, querier interfaces.DBTX, filter models.StoryFilter) ([]*models.Story, error) {
	args := m.Called(ctx, querier, filter)
	stories, _ := args.Get(0).([]*models.Story)
	return stories, args.Error(1)
}

func (m *StoryRepository) ListRecommended(ctx context.Context, querier interfaces.DBTX, child *models.Child, limit int) ([]*models.Story, error) {
	args := m.Called(ctx, querier, child, limit)
	stories, _ := args.Get(0).([]*models.Story)
	return stories, args.Error(1)
}

// AnalyticsRepository - мок interfaces.AnalyticsRepository
type AnalyticsRepository struct {
	mock.Mock
}

func (m *AnalyticsRepository) PeriodStats(ctx context.Context, querier interfaces.DBTX, childID uuid.UUID, since time.Time) (*models.PeriodStats, error) {
	args := m.Called(ctx, querier, childID, since)
	stats, _ := args.Get(0).(*models.PeriodStats)
	return stats, args.Error(1)
}

func (m *AnalyticsRepository) FavoriteThemes(ctx context.Context, querier interfaces.DBTX, childID uuid.UUID, since time.Time, limit int) ([]models.ThemeCount, error) {
	args := m.Called(ctx, querier, childID, since, limit)
	themes, _ := args.Get(0).([]models.ThemeCount)
	return themes, args.Error(1)
}

func (m *AnalyticsRepository) WeeklySummaries(ctx context.Context, querier interfaces.DBTX, parentID uuid.UUID, since time.Time) ([]models.ChildWeeklySummary, error) {
	args := m.Called(ctx, querier, parentID, since)
	summaries, _ := args.Get(0).([]models.ChildWeeklySummary)
	return summaries, args.Error(1)
}
