package apierror_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAPIError(t *testing.T) {
	err := apierror.New("some message")

	assert.Equal(t, "some message", err.Error())
	assert.Equal(t, http.StatusInternalServerError, apierror.StatusCode(err))
}

func TestStatusCode(t *testing.T) {
	err := apierror.NotFound("No such record.")
	assert.Equal(t, http.StatusNotFound, apierror.StatusCode(err))
	assert.Equal(t, http.StatusNotFound, apierror.StatusCode(errors.Wrap(err, "could not find record")))
	assert.Equal(t, http.StatusInternalServerError, apierror.StatusCode(errors.New("boom")))
}

func TestAPIError_JSON(t *testing.T) {
	err := apierror.NewWithTagCode(http.StatusConflict, apierror.TagAlreadyExists, "The object already exists.")

	payload, e := json.Marshal(err)
	assert.NoError(t, e)
	assert.JSONEq(t, `{"error":{"tag":"already-exists","message":"The object already exists."}}`, string(payload))
	assert.Equal(t, apierror.TagAlreadyExists, err.Tag())
}
