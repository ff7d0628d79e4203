package handler

import (
	"net/http"
	"strings"

	"reading-platform/internal/models"
	"reading-platform/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type startSessionRequest struct {
	ChildID uuid.UUID `json:"child_id" binding:"required"`
}

func (h *Handler) listStories(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0, 0, 1<<20)
	if !ok {
		return
	}
	filter := models.StoryFilter{
		Language:        strings.ToLower(c.Query("language")),
		Theme:           strings.TrimSpace(c.Query("theme")),
		DifficultyLevel: strings.ToLower(c.Query("difficulty")),
		Limit:           limit + 1,
		Offset:          offset,
	}
	stories, err := h.stories.ListStories(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, paginate(stories, limit, offset))
}

func (h *Handler) getStory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	storyID, ok := pathUUID(c, "story_id")
	if !ok {
		return
	}
	story, err := h.stories.GetStory(c.Request.Context(), userID, storyID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *Handler) generateStory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.GenerateStoryRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.stories.GenerateStory(c.Request.Context(), userID, req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) safetyCheck(c *gin.Context) {
	var req service.SafetyCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.stories.SafetyCheck(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// startSession создает сессию чтения или возвращает незавершенную.
func (h *Handler) startSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	storyID, ok := pathUUID(c, "story_id")
	if !ok {
		return
	}
	var req startSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.StartSession(c.Request.Context(), userID, req.ChildID, storyID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
