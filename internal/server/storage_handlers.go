package server

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/mdouchement/unionboard/internal/database"
	"github.com/mdouchement/unionboard/internal/model"
	"github.com/mdouchement/unionboard/internal/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// objects contains all storage handlers.
type objects struct {
	db      database.Client
	fs      *storage.FS
	buckets map[string]int64 // name => max size
	metrics *Metrics
	logger  logrus.FieldLogger
}

///// Upload
////
//

// Upload stores the request body as a new object. Existing objects are never overwritten.
func (h *objects) Upload(c echo.Context) error {
	bucket, path, err := h.key(c)
	if err != nil {
		return err
	}

	size := c.Request().ContentLength
	if size < 0 {
		return apierror.NewWithTagCode(http.StatusLengthRequired, apierror.TagInvalidRequest, "Content-Length is required.")
	}
	if max := h.buckets[bucket]; max > 0 && size > max {
		return apierror.NewWithTagCode(http.StatusRequestEntityTooLarge, apierror.TagTooLarge, "The object exceeds the maximum size of the bucket.")
	}

	err = h.fs.Create(bucket, path, c.Request().Body, size)
	switch {
	case errors.Is(err, storage.ErrExists):
		return apierror.NewWithTagCode(http.StatusConflict, apierror.TagAlreadyExists, "The object already exists.")
	case errors.Is(err, storage.ErrInvalidKey):
		return apierror.BadRequest("Invalid object path.")
	case errors.Is(err, storage.ErrTruncated):
		return apierror.BadRequest("The object does not match its Content-Length.")
	case err != nil:
		return err
	}

	object := model.NewObject(bucket, path)
	object.ContentType = c.Request().Header.Get(echo.HeaderContentType)
	object.Size = size
	if err = h.db.Save(object); err != nil {
		if rerr := h.fs.Remove(bucket, path); rerr != nil {
			h.logger.WithField("key", object.Key).WithError(rerr).Error("Could not remove unsaved object")
		}
		return errors.Wrap(err, "could not save object")
	}
	h.metrics.Upload(bucket)

	return c.JSON(http.StatusOK, echo.Map{
		"key": object.Key,
	})
}

///// Download
////
//

// Download renders a public object.
func (h *objects) Download(c echo.Context) error {
	bucket, path, err := h.key(c)
	if err != nil {
		return err
	}

	object, err := h.db.FindObject(bucket, path)
	if err != nil {
		if h.db.IsNotFound(err) {
			return apierror.NotFound("No such object.")
		}
		return err
	}

	f, err := h.fs.Open(bucket, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apierror.NotFound("No such object.")
		}
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "could not stat object")
	}

	if object.ContentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, object.ContentType)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(c.Response(), c.Request(), fi.Name(), fi.ModTime(), f)
	return nil
}

///// Remove
////
//

// Remove deletes the listed objects of a bucket. Missing objects are ignored.
func (h *objects) Remove(c echo.Context) error {
	bucket := c.Param("bucket")
	if _, ok := h.buckets[bucket]; !ok {
		return apierror.NotFound("No such bucket.")
	}

	var params struct {
		Prefixes []string `json:"prefixes"`
	}
	if err := c.Bind(&params); err != nil {
		return apierror.BadRequest("Could not get the objects to remove.")
	}

	removed := []string{}
	for _, path := range params.Prefixes {
		if err := h.fs.Remove(bucket, path); err != nil {
			if errors.Is(err, storage.ErrInvalidKey) {
				return apierror.BadRequest("Invalid object path.")
			}
			return err
		}

		err := h.db.DeleteObject(bucket, path)
		if err != nil && !h.db.IsNotFound(err) {
			return err
		}
		if err == nil {
			removed = append(removed, model.ObjectKey(bucket, path))
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"removed": removed,
	})
}

func (h *objects) key(c echo.Context) (bucket, path string, err error) {
	bucket = c.Param("bucket")
	if _, ok := h.buckets[bucket]; !ok {
		return "", "", apierror.NotFound("No such bucket.")
	}

	path, err = url.PathUnescape(c.Param("*"))
	if err != nil || path == "" {
		return "", "", apierror.BadRequest("Invalid object path.")
	}
	return bucket, path, nil
}
