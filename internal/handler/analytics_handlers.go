package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) parentDashboard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	dashboard, err := h.analytics.GetParentDashboard(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// childAnalytics - GET /analytics/children/:child_id?days=30. Диапазон days проверяет сервис.
func (h *Handler) childAnalytics(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	childID, ok := pathUUID(c, "child_id")
	if !ok {
		return
	}
	days, ok := queryInt(c, "days", defaultAnalyticsDays, -1<<31, 1<<31-1)
	if !ok {
		return
	}
	analytics, err := h.analytics.GetChildAnalytics(c.Request.Context(), userID, childID, days)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}
