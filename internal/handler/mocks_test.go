package handler

import (
	"context"

	"reading-platform/internal/generation"
	"reading-platform/internal/models"
	"reading-platform/internal/safety"
	"reading-platform/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Register(ctx context.Context, req service.RegisterRequest) (*service.AuthResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*service.AuthResponse)
	return resp, args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, req service.LoginRequest) (*service.AuthResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*service.AuthResponse)
	return resp, args.Error(1)
}

func (m *mockAuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockAuthService) ValidateToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	args := m.Called(ctx, tokenString)
	claims, _ := args.Get(0).(*models.Claims)
	return claims, args.Error(1)
}

type mockChildService struct{ mock.Mock }

func (m *mockChildService) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error) {
	args := m.Called(ctx, parentID)
	children, _ := args.Get(0).([]*models.Child)
	return children, args.Error(1)
}

func (m *mockChildService) CreateChild(ctx context.Context, parentID uuid.UUID, req service.CreateChildRequest) (*models.Child, error) {
	args := m.Called(ctx, parentID, req)
	child, _ := args.Get(0).(*models.Child)
	return child, args.Error(1)
}

func (m *mockChildService) GetChild(ctx context.Context, parentID, childID uuid.UUID) (*models.Child, error) {
	args := m.Called(ctx, parentID, childID)
	child, _ := args.Get(0).(*models.Child)
	return child, args.Error(1)
}

func (m *mockChildService) UpdateChild(ctx context.Context, parentID, childID uuid.UUID, update models.ChildUpdate) (*models.Child, error) {
	args := m.Called(ctx, parentID, childID, update)
	child, _ := args.Get(0).(*models.Child)
	return child, args.Error(1)
}

func (m *mockChildService) DeleteChild(ctx context.Context, parentID, childID uuid.UUID) error {
	return m.Called(ctx, parentID, childID).Error(0)
}

func (m *mockChildService) AssessReading(ctx context.Context, parentID, childID uuid.UUID, req service.AssessmentRequest) (*models.ReadingAssessment, error) {
	args := m.Called(ctx, parentID, childID, req)
	result, _ := args.Get(0).(*models.ReadingAssessment)
	return result, args.Error(1)
}

func (m *mockChildService) GetDashboard(ctx context.Context, parentID, childID uuid.UUID) (*models.ChildDashboard, error) {
	args := m.Called(ctx, parentID, childID)
	dashboard, _ := args.Get(0).(*models.ChildDashboard)
	return dashboard, args.Error(1)
}

type mockStoryService struct{ mock.Mock }

func (m *mockStoryService) ListStories(ctx context.Context, filter models.StoryFilter) ([]*models.Story, error) {
	args := m.Called(ctx, filter)
	stories, _ := args.Get(0).([]*models.Story)
	return stories, args.Error(1)
}

func (m *mockStoryService) ListChildStories(ctx context.Context, parentID, childID uuid.UUID, theme string, limit, offset int) ([]*models.Story, error) {
	args := m.Called(ctx, parentID, childID, theme, limit, offset)
	stories, _ := args.Get(0).([]*models.Story)
	return stories, args.Error(1)
}

func (m *mockStoryService) GetRecommendations(ctx context.Context, parentID, childID uuid.UUID, limit int) ([]*models.Story, error) {
	args := m.Called(ctx, parentID, childID, limit)
	stories, _ := args.Get(0).([]*models.Story)
	return stories, args.Error(1)
}

func (m *mockStoryService) GetStory(ctx context.Context, parentID, storyID uuid.UUID) (*models.StoryWithChapters, error) {
	args := m.Called(ctx, parentID, storyID)
	story, _ := args.Get(0).(*models.StoryWithChapters)
	return story, args.Error(1)
}

func (m *mockStoryService) GenerateStory(ctx context.Context, parentID uuid.UUID, req service.GenerateStoryRequest) (*service.GeneratedStory, error) {
	args := m.Called(ctx, parentID, req)
	out, _ := args.Get(0).(*service.GeneratedStory)
	return out, args.Error(1)
}

// GenerateStoryStream передает sink в Run-функцию мока, чтобы тест мог эмитить события.
func (m *mockStoryService) GenerateStoryStream(ctx context.Context, parentID uuid.UUID, req service.GenerateStoryRequest, sink generation.EventSink) (*service.GeneratedStory, error) {
	args := m.Called(ctx, parentID, req, sink)
	out, _ := args.Get(0).(*service.GeneratedStory)
	return out, args.Error(1)
}

func (m *mockStoryService) SafetyCheck(ctx context.Context, req service.SafetyCheckRequest) (*safety.Report, error) {
	args := m.Called(ctx, req)
	report, _ := args.Get(0).(*safety.Report)
	return report, args.Error(1)
}

type mockSessionService struct{ mock.Mock }

func (m *mockSessionService) StartSession(ctx context.Context, parentID, childID, storyID uuid.UUID) (*models.StorySession, error) {
	args := m.Called(ctx, parentID, childID, storyID)
	session, _ := args.Get(0).(*models.StorySession)
	return session, args.Error(1)
}

func (m *mockSessionService) Advance(ctx context.Context, parentID, sessionID uuid.UUID, sel service.Selection) (*models.AdvanceResult, error) {
	args := m.Called(ctx, parentID, sessionID, sel)
	result, _ := args.Get(0).(*models.AdvanceResult)
	return result, args.Error(1)
}

func (m *mockSessionService) GetSession(ctx context.Context, parentID, sessionID uuid.UUID) (*models.StorySession, error) {
	args := m.Called(ctx, parentID, sessionID)
	session, _ := args.Get(0).(*models.StorySession)
	return session, args.Error(1)
}

func (m *mockSessionService) GetCurrentChapter(ctx context.Context, parentID, sessionID uuid.UUID) (*models.ChapterView, error) {
	args := m.Called(ctx, parentID, sessionID)
	view, _ := args.Get(0).(*models.ChapterView)
	return view, args.Error(1)
}

func (m *mockSessionService) ListChildSessions(ctx context.Context, parentID, childID uuid.UUID, limit int) ([]*models.StorySession, error) {
	args := m.Called(ctx, parentID, childID, limit)
	sessions, _ := args.Get(0).([]*models.StorySession)
	return sessions, args.Error(1)
}

func (m *mockSessionService) UpdateReadingProgress(ctx context.Context, parentID, sessionID uuid.UUID, progress models.ReadingProgress) (*models.StorySession, error) {
	args := m.Called(ctx, parentID, sessionID, progress)
	session, _ := args.Get(0).(*models.StorySession)
	return session, args.Error(1)
}

func (m *mockSessionService) BookmarkSession(ctx context.Context, parentID, sessionID uuid.UUID, bookmarked bool) (*models.StorySession, error) {
	args := m.Called(ctx, parentID, sessionID, bookmarked)
	session, _ := args.Get(0).(*models.StorySession)
	return session, args.Error(1)
}

func (m *mockSessionService) CompleteSession(ctx context.Context, parentID, sessionID uuid.UUID) (*models.StorySession, error) {
	args := m.Called(ctx, parentID, sessionID)
	session, _ := args.Get(0).(*models.StorySession)
	return session, args.Error(1)
}

func (m *mockSessionService) GetSessionAnalytics(ctx context.Context, parentID, sessionID uuid.UUID) (*models.SessionAnalytics, error) {
	args := m.Called(ctx, parentID, sessionID)
	analytics, _ := args.Get(0).(*models.SessionAnalytics)
	return analytics, args.Error(1)
}

type mockAnalyticsService struct{ mock.Mock }

func (m *mockAnalyticsService) GetParentDashboard(ctx context.Context, parentID uuid.UUID) (*models.ParentDashboard, error) {
	args := m.Called(ctx, parentID)
	dashboard, _ := args.Get(0).(*models.ParentDashboard)
	return dashboard, args.Error(1)
}

func (m *mockAnalyticsService) GetChildAnalytics(ctx context.Context, parentID, childID uuid.UUID, days int) (*models.ChildAnalytics, error) {
	args := m.Called(ctx, parentID, childID, days)
	analytics, _ := args.Get(0).(*models.ChildAnalytics)
	return analytics, args.Error(1)
}
