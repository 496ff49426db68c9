package libub

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// An APIError represents an HTTP error returned by unionboard server.
type APIError struct {
	StatusCode int
	Err        struct {
		Tag     string `json:"tag"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseAPIError(r io.Reader, code int) error {
	apierr := &APIError{StatusCode: code}

	payload, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return err
	}
	if err = json.Unmarshal(payload, apierr); err != nil || apierr.Err.Message == "" {
		apierr.Err.Message = strings.TrimSpace(string(payload))
	}
	if apierr.Err.Message == "" {
		apierr.Err.Message = http.StatusText(code)
	}

	return apierr
}

func (e *APIError) Error() string {
	return e.Err.Message
}

// IsStatus returns true if err is or wraps an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apierr *APIError
	return errors.As(err, &apierr) && apierr.StatusCode == code
}
