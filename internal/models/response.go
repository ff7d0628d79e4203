package models

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Коды ошибок API.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeForbidden      = "forbidden"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeUnprocessable  = "unprocessable"
	ErrCodeGenerationFail = "generation_failed"
	ErrCodeSafetyRejected = "safety_rejected"
	ErrCodeInternal       = "internal_error"
	ErrCodeBadGateway     = "upstream_error"
)

// PaginatedResponse - список с признаком наличия следующей страницы.
type PaginatedResponse[T any] struct {
	Items   []T  `json:"items"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}
