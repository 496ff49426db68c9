package server

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/mdouchement/unionboard/internal/realtime"
	"github.com/mdouchement/unionboard/internal/server/service"
	"github.com/pkg/errors"
)

// MaxDocumentSize is the maximum size of a record document.
const MaxDocumentSize = 1 << 20

// collection contains all record handlers.
type collection struct {
	service service.CollectionService
	metrics *Metrics
}

///// List
////
//

// List returns all the records of a collection.
// The order query param uses the `field.asc` or `field.desc` notation.
func (h *collection) List(c echo.Context) error {
	order, err := service.ParseOrder(c.QueryParam("order"))
	if err != nil {
		return err
	}

	records, err := h.service.List(c.Param("collection"), order)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}

///// Create
////
//

// Create inserts a record in the collection and returns it with its id and timestamps.
func (h *collection) Create(c echo.Context) error {
	document, err := readDocument(c)
	if err != nil {
		return err
	}

	name := c.Param("collection")
	record, err := h.service.Insert(c.Request().Context(), name, document)
	if err != nil {
		return err
	}
	h.metrics.Write(name, realtime.TypeInsert)

	return c.JSON(http.StatusCreated, record)
}

///// Update
////
//

// Update replaces all the editable fields of a record.
func (h *collection) Update(c echo.Context) error {
	document, err := readDocument(c)
	if err != nil {
		return err
	}

	name := c.Param("collection")
	record, err := h.service.Update(c.Request().Context(), name, c.Param("id"), document)
	if err != nil {
		return err
	}
	h.metrics.Write(name, realtime.TypeUpdate)

	return c.JSON(http.StatusOK, record)
}

///// Delete
////
//

// Delete removes a record.
func (h *collection) Delete(c echo.Context) error {
	name := c.Param("collection")
	if err := h.service.Delete(c.Request().Context(), name, c.Param("id")); err != nil {
		return err
	}
	h.metrics.Write(name, realtime.TypeDelete)

	return c.NoContent(http.StatusNoContent)
}

func readDocument(c echo.Context) ([]byte, error) {
	if c.Request().ContentLength > MaxDocumentSize {
		return nil, apierror.NewWithTagCode(http.StatusRequestEntityTooLarge, apierror.TagTooLarge, "Document is too large.")
	}

	document, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxDocumentSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "could not read document")
	}
	if len(document) == 0 {
		return nil, apierror.BadRequest("Request body can't be empty.")
	}
	if len(document) > MaxDocumentSize {
		return nil, apierror.NewWithTagCode(http.StatusRequestEntityTooLarge, apierror.TagTooLarge, "Document is too large.")
	}
	return document, nil
}
