package middlewares

import (
	"github.com/labstack/echo/v4"
	"github.com/mdouchement/unionboard/internal/apierror"
)

type binder struct{}

// NewBinder returns a binder decoding request bodies as JSON, whatever their Content-Type.
func NewBinder() echo.Binder {
	return &binder{}
}

// Bind implements the echo.Bind interface.
// Path and query parameters are never bound, handlers read them explicitly.
func (b *binder) Bind(i any, c echo.Context) error {
	if c.Request().ContentLength == 0 {
		return apierror.BadRequest("Request body can't be empty.")
	}

	if err := c.Echo().JSONSerializer.Deserialize(c, i); err != nil {
		return apierror.BadRequest("Request body must be a JSON document.")
	}
	return nil
}
