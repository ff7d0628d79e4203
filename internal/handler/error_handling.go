package handler

import (
	"context"
	"errors"
	"net/http"

	"reading-platform/internal/ai"
	"reading-platform/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleServiceError переводит ошибку сервиса в HTTP статус и ErrorResponse.
func handleServiceError(c *gin.Context, err error) {
	status, resp := errorResponse(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("Unhandled internal error in handleServiceError",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func errorResponse(err error) (int, models.ErrorResponse) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest, models.ErrorResponse{Code: models.ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, models.ErrorResponse{Code: models.ErrCodeUnauthorized, Message: "Invalid email or password"}
	case errors.Is(err, models.ErrTokenExpired):
		return http.StatusUnauthorized, models.ErrorResponse{Code: models.ErrCodeUnauthorized, Message: "Token has expired"}
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, models.ErrorResponse{Code: models.ErrCodeUnauthorized, Message: "Authentication required"}
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, models.ErrorResponse{Code: models.ErrCodeForbidden, Message: "Access denied"}
	case errors.Is(err, models.ErrUserAlreadyExists):
		return http.StatusConflict, models.ErrorResponse{Code: models.ErrCodeConflict, Message: "Email already registered"}
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "User not found"}
	case errors.Is(err, models.ErrChildNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Child not found"}
	case errors.Is(err, models.ErrStoryNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Story not found"}
	case errors.Is(err, models.ErrChapterNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Chapter not found"}
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Reading session not found"}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Resource not found"}
	case errors.Is(err, models.ErrStoryNotPublished):
		return http.StatusUnprocessableEntity, models.ErrorResponse{Code: models.ErrCodeUnprocessable, Message: "Story is not published"}
	case errors.Is(err, models.ErrSessionCompleted):
		return http.StatusConflict, models.ErrorResponse{Code: models.ErrCodeConflict, Message: "Reading session is already completed"}
	case errors.Is(err, models.ErrInvalidChoice):
		return http.StatusUnprocessableEntity, models.ErrorResponse{Code: models.ErrCodeUnprocessable, Message: "Choice does not belong to the current chapter"}
	case errors.Is(err, models.ErrSafetyRejected):
		return http.StatusUnprocessableEntity, models.ErrorResponse{Code: models.ErrCodeSafetyRejected, Message: "Generated content did not pass safety checks"}
	case errors.Is(err, models.ErrGenerationParse):
		return http.StatusBadGateway, models.ErrorResponse{Code: models.ErrCodeGenerationFail, Message: "Story generation failed"}
	case errors.Is(err, ai.ErrAIGenerationFailed):
		return http.StatusBadGateway, models.ErrorResponse{Code: models.ErrCodeBadGateway, Message: "AI backend is unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, models.ErrorResponse{Code: models.ErrCodeBadGateway, Message: "Request timed out"}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{Code: models.ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}
}
