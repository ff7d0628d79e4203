package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"reading-platform/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ctxUserIDKey    = "user_id"
	requestIDHeader = "X-Request-ID"
)

// TokenValidator проверяет access токен родителя.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*models.Claims, error)
}

// AuthMiddleware требует заголовок "Authorization: Bearer <token>".
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			handleServiceError(c, models.ErrUnauthorized)
			return
		}
		if !authorize(c, validator, tokenString) {
			return
		}
		c.Next()
	}
}

// authorize проверяет токен и кладет ID родителя в контекст gin.
func authorize(c *gin.Context, validator TokenValidator, tokenString string) bool {
	claims, err := validator.ValidateToken(c.Request.Context(), tokenString)
	if err != nil {
		zap.L().Debug("Access token verification failed", zap.Error(err))
		tokenVerificationsTotal.WithLabelValues("failure").Inc()
		handleServiceError(c, err)
		return false
	}
	tokenVerificationsTotal.WithLabelValues("success").Inc()
	c.Set(ctxUserIDKey, claims.UserID)
	return true
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// userIDFromContext возвращает ID родителя, установленный AuthMiddleware.
func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(ctxUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// ZapLoggingMiddleware пишет access log. Запросы к /health и /metrics не логируются.
func ZapLoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		c.Next()

		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("request_id", requestID),
		}
		if userID, ok := userIDFromContext(c); ok {
			fields = append(fields, zap.Stringer("userID", userID))
		}

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			if len(c.Errors) > 0 {
				fields = append(fields, zap.String("errors", c.Errors.String()))
			}
			log.Error("Server error", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}
