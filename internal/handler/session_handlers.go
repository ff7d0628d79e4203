package handler

import (
	"net/http"

	"reading-platform/internal/models"
	"reading-platform/internal/service"

	"github.com/gin-gonic/gin"
)

type bookmarkRequest struct {
	Bookmarked *bool `json:"bookmarked" binding:"required"`
}

func (h *Handler) getSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}
	session, err := h.sessions.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) currentChapter(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}
	view, err := h.sessions.GetCurrentChapter(c.Request.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// makeChoice продвигает сессию. Тело - service.Selection: выбор варианта, continue или свой текст.
func (h *Handler) makeChoice(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}
	var sel service.Selection
	if !bindJSON(c, &sel) {
		return
	}
	result, err := h.sessions.Advance(c.Request.Context(), userID, sessionID, sel)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) updateProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}
	var progress models.ReadingProgress
	if !bindJSON(c, &progress) {
		return
	}
	session, err := h.sessions.UpdateReadingProgress(c.Request.Context(), userID, sessionID, progress)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) bookmark(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}
	var req bookmarkRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.BookmarkSession(c.Request.Context(), userID, sessionID, *req.Bookmarked)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) completeSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}
	session, err := h.sessions.CompleteSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) sessionAnalytics(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}
	analytics, err := h.sessions.GetSessionAnalytics(c.Request.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}
