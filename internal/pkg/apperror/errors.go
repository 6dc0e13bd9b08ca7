package apperror

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeStateConflict ErrorCode = "STATE_CONFLICT"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

