package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// HTTPErrorHandler returns a middleware that formats rendered errors.
// Internal errors are logged and rendered with an id that can be found in the logs.
func HTTPErrorHandler(logger logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			httperr *echo.HTTPError
			apierr  *apierror.APIError
		)
		switch {
		case errors.As(err, &apierr):
			status := apierror.StatusCode(apierr)
			if status < 500 {
				_ = c.JSON(status, apierr)
				return
			}

			internal(logger, err, c)
		case errors.As(err, &httperr):
			if httperr.Code >= 500 {
				internal(logger, err, c)
				return
			}
			if httperr.Internal != nil {
				logger.WithError(httperr.Internal).Debug("Error [ECHO]")
			}

			_ = c.JSON(httperr.Code, echo.Map{
				"error": echo.Map{
					"message": fmt.Sprint(httperr.Message),
				},
			})
		default:
			internal(logger, err, c)
		}
	}
}

func internal(logger logrus.FieldLogger, err error, c echo.Context) {
	id := uuid.Must(uuid.NewV4()).String()
	logger.WithFields(logrus.Fields{
		"id":     id,
		"method": c.Request().Method,
		"uri":    c.Request().RequestURI,
	}).WithError(err).Error("Unexpected error")

	_ = c.JSON(http.StatusInternalServerError, echo.Map{
		"error": echo.Map{
			"message": fmt.Sprintf("Unexpected error (id: %s)", id),
		},
	})
}
