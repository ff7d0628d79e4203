package models

import "errors"

// Стандартные ошибки приложения
var (
	// Common Resource/DB Errors
	ErrNotFound       = errors.New("resource not found")
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")

	// User & Authentication Errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized") // Требуется аутентификация
	ErrForbidden          = errors.New("forbidden")    // Аутентифицирован, но нет прав
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token has expired")

	// Children
	ErrChildNotFound = errors.New("child not found")

	// Stories & chapters
	ErrStoryNotFound     = errors.New("story not found")
	ErrChapterNotFound   = errors.New("chapter not found")
	ErrStoryNotPublished = errors.New("story is not published")

	// Generation
	ErrGenerationParse = errors.New("failed to parse generated story")
	ErrSafetyRejected  = errors.New("generated content rejected by safety checks")

	// Reading sessions
	ErrSessionNotFound  = errors.New("reading session not found")
	ErrSessionCompleted = errors.New("reading session is already completed")
	ErrInvalidChoice    = errors.New("invalid choice for the current chapter")
)
