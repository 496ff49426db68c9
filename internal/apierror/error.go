package apierror

import (
	"net/http"

	"github.com/pkg/errors"
)

// Tags used by the server.
const (
	TagInvalidAuth    = "invalid-auth"
	TagForbidden      = "forbidden"
	TagNotFound       = "not-found"
	TagInvalidRecord  = "invalid-record"
	TagAlreadyExists  = "already-exists"
	TagTooLarge       = "too-large"
	TagInvalidRequest = "invalid-request"
)

type (
	// An APIError represents the error format that can be rendered by unionboard server.
	APIError struct {
		HTTPCode   int `json:"-"`
		FieldError err `json:"error"`
	}

	err struct {
		Tag     string `json:"tag,omitempty"`
		Message string `json:"message"`
	}
)

// StatusCode returns the HTTP status code.
func StatusCode(e error) int {
	var apierr *APIError
	if errors.As(e, &apierr) && apierr.HTTPCode != 0 {
		return apierr.HTTPCode
	}
	return http.StatusInternalServerError
}

// New returns a new APIError with the given message.
func New(message string) *APIError {
	return &APIError{FieldError: err{Message: message}}
}

// NewWithTagCode returns a new APIError with the given code, tag and message.
func NewWithTagCode(code int, tag, message string) *APIError {
	return &APIError{HTTPCode: code, FieldError: err{Tag: tag, Message: message}}
}

// Unauthorized returns an invalid-auth error.
func Unauthorized(message string) *APIError {
	return NewWithTagCode(http.StatusUnauthorized, TagInvalidAuth, message)
}

// NotFound returns a not-found error.
func NotFound(message string) *APIError {
	return NewWithTagCode(http.StatusNotFound, TagNotFound, message)
}

// BadRequest returns an invalid-request error.
func BadRequest(message string) *APIError {
	return NewWithTagCode(http.StatusBadRequest, TagInvalidRequest, message)
}

// Error implements error interface.
func (e *APIError) Error() string {
	return e.FieldError.Message
}

// Tag returns the tag of the error.
func (e *APIError) Tag() string {
	return e.FieldError.Tag
}
