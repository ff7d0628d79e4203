package handler

import (
	"net/http"

	"reading-platform/internal/models"
	"reading-platform/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listChildren(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	children, err := h.children.ListChildren(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if children == nil {
		children = []*models.Child{}
	}
	c.JSON(http.StatusOK, children)
}

func (h *Handler) createChild(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CreateChildRequest
	if !bindJSON(c, &req) {
		return
	}
	child, err := h.children.CreateChild(c.Request.Context(), userID, req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, child)
}

func (h *Handler) getChild(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	child, err := h.children.GetChild(c.Request.Context(), userID, childID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, child)
}

func (h *Handler) updateChild(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	var update models.ChildUpdate
	if !bindJSON(c, &update) {
		return
	}
	child, err := h.children.UpdateChild(c.Request.Context(), userID, childID, update)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, child)
}

func (h *Handler) deleteChild(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	if err := h.children.DeleteChild(c.Request.Context(), userID, childID); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) childDashboard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	dashboard, err := h.children.GetDashboard(c.Request.Context(), userID, childID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *Handler) assessReading(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	var req service.AssessmentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.children.AssessReading(c.Request.Context(), userID, childID, req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listChildSessions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListChildSessions(c.Request.Context(), userID, childID, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*models.StorySession{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) listChildStories(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0, 0, 1<<20)
	if !ok {
		return
	}
	stories, err := h.stories.ListChildStories(c.Request.Context(), userID, childID, c.Query("theme"), limit+1, offset)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, paginate(stories, limit, offset))
}

func (h *Handler) recommendations(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultRecommendations, 1, 20)
	if !ok {
		return
	}
	stories, err := h.stories.GetRecommendations(c.Request.Context(), userID, childID, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if stories == nil {
		stories = []*models.Story{}
	}
	c.JSON(http.StatusOK, stories)
}

// paginate отрезает лишний элемент, запрошенный для вычисления HasMore.
func paginate[T any](items []T, limit, offset int) models.PaginatedResponse[T] {
	resp := models.PaginatedResponse[T]{Items: items, Limit: limit, Offset: offset}
	if len(items) > limit {
		resp.Items = items[:limit]
		resp.HasMore = true
	}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	return resp
}
