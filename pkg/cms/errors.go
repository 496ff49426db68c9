package cms

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized is returned when the Authorizer denies a write. It is terminal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when an id is absent from the collection.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned by a Store used after Close.
	ErrClosed = errors.New("store closed")
)

type (
	// A FieldError describes why a draft field is invalid.
	FieldError struct {
		Field   string
		Message string
		Err     error
	}

	// A ValidationError is returned when a draft is rejected before any network call.
	ValidationError struct {
		Fields []FieldError
	}

	// A RemoteError wraps an error reported by the backend for a collection operation.
	// Its message is the backend's message, verbatim.
	RemoteError struct {
		Op         string
		Collection string
		Err        error
	}

	// An UploadError aborts the write that required the attachment.
	UploadError struct {
		Class AttachmentClass
		Name  string
		Size  int64
		Limit int64
		Err   error
	}
)

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Error())
	}
	return "invalid draft: " + strings.Join(messages, "; ")
}

// Unwrap exposes the causes attached to field errors (e.g. an *UploadError for an oversized attachment).
func (e *ValidationError) Unwrap() []error {
	var errs []error
	for _, f := range e.Fields {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

func (e *RemoteError) Error() string {
	return e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *UploadError) Error() string {
	if e.Limit > 0 && e.Size > e.Limit {
		return fmt.Sprintf("%s is too large (%d bytes, maximum is %d bytes)", e.Name, e.Size, e.Limit)
	}
	return fmt.Sprintf("could not upload %s: %s", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized returns true if err is or wraps ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
