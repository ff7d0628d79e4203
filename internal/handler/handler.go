package handler

import (
	"net/http"
	"strconv"
	"time"

	"reading-platform/internal/models"
	"reading-platform/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit       = 20
	maxListLimit           = 50
	defaultRecommendations = 5
	defaultAnalyticsDays   = 30
)

// Services - зависимости HTTP слоя.
type Services struct {
	Auth      service.AuthService
	Children  service.ChildService
	Stories   service.StoryService
	Sessions  service.SessionService
	Analytics service.AnalyticsService
}

// Handler обслуживает REST API /api/v1 и потоки генерации.
type Handler struct {
	auth            service.AuthService
	children        service.ChildService
	stories         service.StoryService
	sessions        service.SessionService
	analytics       service.AnalyticsService
	streamHeartbeat time.Duration
	logger          *zap.Logger
}

func NewHandler(services Services, streamHeartbeat time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		auth:            services.Auth,
		children:        services.Children,
		stories:         services.Stories,
		sessions:        services.Sessions,
		analytics:       services.Analytics,
		streamHeartbeat: streamHeartbeat,
		logger:          logger.Named("Handler"),
	}
}

// NewRouter собирает gin engine с общими middleware. Метрики подключает вызывающая сторона.
func NewRouter(corsOrigins []string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ZapLoggingMiddleware(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	requireAuth := AuthMiddleware(h.auth)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.GET("/me", requireAuth, h.me)
	}

	children := api.Group("/children", requireAuth)
	{
		children.GET("", h.listChildren)
		children.POST("", h.createChild)
		children.GET("/:child_id", h.getChild)
		children.PUT("/:child_id", h.updateChild)
		children.DELETE("/:child_id", h.deleteChild)
		children.GET("/:child_id/dashboard", h.childDashboard)
		children.POST("/:child_id/reading-assessment", h.assessReading)
		children.GET("/:child_id/sessions", h.listChildSessions)
		children.GET("/:child_id/stories", h.listChildStories)
		children.GET("/:child_id/recommendations", h.recommendations)
	}

	// Браузерный websocket не умеет передавать заголовки, токен приходит в query.
	api.GET("/stories/generate/ws", h.generateStoryWS)

	stories := api.Group("/stories", requireAuth)
	{
		stories.GET("", h.listStories)
		stories.POST("/generate", h.generateStory)
		stories.POST("/generate/stream", h.generateStorySSE)
		stories.POST("/safety-check", h.safetyCheck)
		stories.GET("/:story_id", h.getStory)
		stories.POST("/:story_id/sessions", h.startSession)
	}

	sessions := api.Group("/sessions", requireAuth)
	{
		sessions.GET("/:session_id", h.getSession)
		sessions.GET("/:session_id/chapter", h.currentChapter)
		sessions.POST("/:session_id/choices", h.makeChoice)
		sessions.PUT("/:session_id/progress", h.updateProgress)
		sessions.PUT("/:session_id/bookmark", h.bookmark)
		sessions.POST("/:session_id/complete", h.completeSession)
		sessions.GET("/:session_id/analytics", h.sessionAnalytics)
	}

	analytics := api.Group("/analytics", requireAuth)
	{
		analytics.GET("/dashboard", h.parentDashboard)
		analytics.GET("/children/:child_id", h.childAnalytics)
	}
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
	}
	return userID, ok
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeBadRequest,
			Message: "Invalid " + name,
		})
		return uuid.Nil, false
	}
	return id, true
}

// queryInt читает целый query параметр. Пустое значение дает def.
func queryInt(c *gin.Context, name string, def, minValue, maxValue int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < minValue || v > maxValue {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeBadRequest,
			Message: "Invalid " + name + " parameter",
		})
		return 0, false
	}
	return v, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeBadRequest,
			Message: "Invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}
