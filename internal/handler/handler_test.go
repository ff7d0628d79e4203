package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reading-platform/internal/generation"
	"reading-platform/internal/models"
	"reading-platform/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validToken = "valid-token"

func init() {
	gin.SetMode(gin.TestMode)
}

type handlerFixture struct {
	auth      *mockAuthService
	children  *mockChildService
	stories   *mockStoryService
	sessions  *mockSessionService
	analytics *mockAnalyticsService
	router    *gin.Engine
	parentID  uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		auth:      new(mockAuthService),
		children:  new(mockChildService),
		stories:   new(mockStoryService),
		sessions:  new(mockSessionService),
		analytics: new(mockAnalyticsService),
		parentID:  uuid.New(),
	}
	f.auth.On("ValidateToken", mock.Anything, validToken).Return(&models.Claims{UserID: f.parentID}, nil)
	f.auth.On("ValidateToken", mock.Anything, mock.Anything).Return(nil, models.ErrTokenInvalid)

	h := NewHandler(Services{
		Auth:      f.auth,
		Children:  f.children,
		Stories:   f.stories,
		Sessions:  f.sessions,
		Analytics: f.analytics,
	}, 0, zap.NewNop())
	f.router = NewRouter([]string{"http://localhost:3000"}, zap.NewNop())
	h.RegisterRoutes(f.router)
	return f
}

func (f *handlerFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+validToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/children", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.ErrCodeUnauthorized, decodeError(t, w).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/children", nil)
	req.Header.Set("Authorization", "Bearer forged")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.children.AssertNotCalled(t, "ListChildren", mock.Anything, mock.Anything)
}

func TestHealthAndRequestID(t *testing.T) {
	f := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))
}

func TestRegister(t *testing.T) {
	f := newHandlerFixture(t)
	req := service.RegisterRequest{Email: "dana@example.com", Password: "long-enough", FullName: "Dana"}
	f.auth.On("Register", mock.Anything, req).Return(&service.AuthResponse{
		User:  &models.User{ID: f.parentID, Email: req.Email},
		Token: &models.TokenDetails{AccessToken: "tok", TokenType: "bearer"},
	}, nil).Once()

	w := f.do(http.MethodPost, "/api/v1/auth/register", req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"tok"`)
	assert.NotContains(t, w.Body.String(), "password")

	f.auth.On("Register", mock.Anything, mock.Anything).Return(nil, models.ErrUserAlreadyExists).Once()
	w = f.do(http.MethodPost, "/api/v1/auth/register", service.RegisterRequest{Email: "x@y.z", Password: "long-enough", FullName: "X"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/register", map[string]string{"email": "x@y.z"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChildEndpoints(t *testing.T) {
	f := newHandlerFixture(t)
	childID := uuid.New()
	f.children.On("CreateChild", mock.Anything, f.parentID, service.CreateChildRequest{Name: "Noa", Age: 8}).
		Return(&models.Child{ID: childID, Name: "Noa", Age: 8}, nil).Once()

	w := f.do(http.MethodPost, "/api/v1/children", service.CreateChildRequest{Name: "Noa", Age: 8})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/v1/children/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.children.On("GetChild", mock.Anything, f.parentID, childID).Return(nil, models.ErrForbidden).Once()
	w = f.do(http.MethodGet, "/api/v1/children/"+childID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, models.ErrCodeForbidden, decodeError(t, w).Code)

	f.children.On("DeleteChild", mock.Anything, f.parentID, childID).Return(nil).Once()
	w = f.do(http.MethodDelete, "/api/v1/children/"+childID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	f.children.On("ListChildren", mock.Anything, f.parentID).Return(nil, nil).Once()
	w = f.do(http.MethodGet, "/api/v1/children", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestListStories_Pagination(t *testing.T) {
	f := newHandlerFixture(t)
	stories := []*models.Story{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}
	expected := models.StoryFilter{Language: "hebrew", Theme: "space", Limit: 3, Offset: 4}
	f.stories.On("ListStories", mock.Anything, expected).Return(stories, nil).Once()

	w := f.do(http.MethodGet, "/api/v1/stories?language=Hebrew&theme=space&limit=2&offset=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.PaginatedResponse[*models.Story]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, 4, page.Offset)

	w = f.do(http.MethodGet, "/api/v1/stories?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMakeChoice_ErrorMapping(t *testing.T) {
	f := newHandlerFixture(t)
	sessionID := uuid.New()
	path := fmt.Sprintf("/api/v1/sessions/%s/choices", sessionID)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrSessionCompleted, http.StatusConflict, models.ErrCodeConflict},
		{models.ErrInvalidChoice, http.StatusUnprocessableEntity, models.ErrCodeUnprocessable},
		{models.ErrSessionNotFound, http.StatusNotFound, models.ErrCodeNotFound},
		{fmt.Errorf("generate chapter: %w", models.ErrSafetyRejected), http.StatusUnprocessableEntity, models.ErrCodeSafetyRejected},
		{errors.New("connection reset"), http.StatusInternalServerError, models.ErrCodeInternal},
	}
	for _, tc := range cases {
		f.sessions.On("Advance", mock.Anything, f.parentID, sessionID, service.Selection{OptionIndex: 1}).Return(nil, tc.err).Once()
		w := f.do(http.MethodPost, path, service.Selection{OptionIndex: 1})
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, tc.code, decodeError(t, w).Code)
	}

	f.sessions.On("Advance", mock.Anything, f.parentID, sessionID, service.Selection{Continue: true}).
		Return(&models.AdvanceResult{SessionID: sessionID, CurrentChapter: 2, CompletionPercentage: 33}, nil).Once()
	w := f.do(http.MethodPost, path, service.Selection{Continue: true})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completion_percentage":33`)
}

func TestBookmarkRequiresFlag(t *testing.T) {
	f := newHandlerFixture(t)
	sessionID := uuid.New()
	path := fmt.Sprintf("/api/v1/sessions/%s/bookmark", sessionID)

	w := f.do(http.MethodPut, path, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.sessions.On("BookmarkSession", mock.Anything, f.parentID, sessionID, false).Return(&models.StorySession{ID: sessionID}, nil).Once()
	w = f.do(http.MethodPut, path, map[string]bool{"bookmarked": false})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChildAnalytics_DefaultDays(t *testing.T) {
	f := newHandlerFixture(t)
	childID := uuid.New()
	f.analytics.On("GetChildAnalytics", mock.Anything, f.parentID, childID, 30).Return(&models.ChildAnalytics{ChildID: childID, PeriodDays: 30}, nil).Once()
	f.analytics.On("GetChildAnalytics", mock.Anything, f.parentID, childID, 400).Return(nil, fmt.Errorf("%w: days", models.ErrBadRequest)).Once()

	w := f.do(http.MethodGet, "/api/v1/analytics/children/"+childID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodGet, "/api/v1/analytics/children/"+childID.String()+"?days=400", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func emitStory(storyID uuid.UUID) func(args mock.Arguments) {
	return func(args mock.Arguments) {
		sink := args.Get(3).(generation.EventSink)
		sink.Emit(generation.Event{Type: generation.EventContent, Data: generation.ContentEventData{Chunk: "Once upon a time", Index: 0}})
		sink.Emit(generation.Event{Type: generation.EventComplete, Data: service.StoryCompleteData{StoryID: storyID, Title: "Moon"}})
	}
}

func TestGenerateStorySSE(t *testing.T) {
	f := newHandlerFixture(t)
	storyID := uuid.New()
	req := service.GenerateStoryRequest{ChildID: uuid.New(), Theme: "moon"}
	f.stories.On("GenerateStoryStream", mock.Anything, f.parentID, req, mock.Anything).
		Run(emitStory(storyID)).
		Return(&service.GeneratedStory{Story: &models.Story{ID: storyID}}, nil).Once()

	w := f.do(http.MethodPost, "/api/v1/stories/generate/stream", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[0], "event: story_chunk\ndata: {\"type\":\"content\""))
	assert.Contains(t, frames[1], `"type":"complete"`)
	assert.Contains(t, frames[1], storyID.String())
}

func TestSSEWriterHeartbeat(t *testing.T) {
	var buf bytes.Buffer
	flushed := 0
	writer := &sseWriter{w: &buf, flush: func() { flushed++ }, logger: zap.NewNop()}

	done := make(chan struct{})
	beats := keepAlive(5*time.Millisecond, writer.heartbeat, done)
	time.Sleep(30 * time.Millisecond)
	close(done)
	beats.Wait()
	writer.Emit(generation.Event{Type: generation.EventError, Data: generation.ErrorEventData{Code: "x"}})

	out := buf.String()
	assert.Contains(t, out, ": heartbeat\n\n")
	assert.True(t, strings.HasSuffix(out, "event: story_chunk\ndata: {\"type\":\"error\",\"data\":{\"code\":\"x\",\"message\":\"\"}}\n\n"))
	assert.Greater(t, flushed, 1)
}

func TestGenerateStoryWS(t *testing.T) {
	f := newHandlerFixture(t)
	storyID := uuid.New()
	req := service.GenerateStoryRequest{ChildID: uuid.New(), Theme: "moon"}
	f.stories.On("GenerateStoryStream", mock.Anything, f.parentID, req, mock.Anything).
		Run(emitStory(storyID)).
		Return(&service.GeneratedStory{Story: &models.Story{ID: storyID}}, nil).Once()

	server := httptest.NewServer(f.router)
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stories/generate/ws?token=" + validToken

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(req))

	var types []string
	for {
		var event struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&event); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{generation.EventContent, generation.EventComplete}, types)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/stories/generate/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
