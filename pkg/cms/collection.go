package cms

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

type (
	// A Backend performs raw operations on named collections.
	// Records are JSON objects; server-assigned fields are id, created_at and updated_at.
	Backend interface {
		// Select returns all the records of the collection ordered by the given JSON key.
		Select(ctx context.Context, collection, orderBy string, ascending bool) ([]json.RawMessage, error)
		// Insert creates a record and returns it as stored.
		Insert(ctx context.Context, collection string, record json.RawMessage) (json.RawMessage, error)
		// Update replaces the editable fields of the record identified by id.
		Update(ctx context.Context, collection, id string, record json.RawMessage) error
		// Delete removes the record identified by id.
		Delete(ctx context.Context, collection, id string) error
	}

	// A Collection is a typed view of a remote collection.
	Collection[T Entity] interface {
		List(ctx context.Context, orderBy string, ascending bool) ([]T, error)
		Insert(ctx context.Context, draft T) (T, error)
		Update(ctx context.Context, id string, record T) error
		Delete(ctx context.Context, id string) error
	}

	// A RemoteCollection implements Collection on top of a Backend.
	RemoteCollection[T Entity] struct {
		backend Backend
		name    string
	}
)

var serverFields = []string{"id", "created_at", "updated_at"}

// NewRemoteCollection returns a typed client of the named collection.
func NewRemoteCollection[T Entity](backend Backend, name string) *RemoteCollection[T] {
	return &RemoteCollection[T]{
		backend: backend,
		name:    name,
	}
}

// Name returns the collection name.
func (c *RemoteCollection[T]) Name() string {
	return c.name
}

// List returns all the records of the collection.
func (c *RemoteCollection[T]) List(ctx context.Context, orderBy string, ascending bool) ([]T, error) {
	raws, err := c.backend.Select(ctx, c.name, orderBy, ascending)
	if err != nil {
		return nil, &RemoteError{Op: "list", Collection: c.name, Err: err}
	}

	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, errors.Wrapf(err, "could not parse %s record", c.name)
		}
		items = append(items, item)
	}
	return items, nil
}

// Insert creates the given draft. Server-assigned fields of the draft are ignored.
func (c *RemoteCollection[T]) Insert(ctx context.Context, draft T) (T, error) {
	var created T

	payload, err := editable(draft)
	if err != nil {
		return created, errors.Wrapf(err, "could not serialize %s draft", c.name)
	}

	raw, err := c.backend.Insert(ctx, c.name, payload)
	if err != nil {
		return created, &RemoteError{Op: "insert", Collection: c.name, Err: err}
	}

	if err = json.Unmarshal(raw, &created); err != nil {
		return created, &responseError{err: errors.Wrapf(err, "could not parse created %s record", c.name)}
	}
	return created, nil
}

// Update replaces all the editable fields of the record identified by id.
func (c *RemoteCollection[T]) Update(ctx context.Context, id string, record T) error {
	payload, err := editable(record)
	if err != nil {
		return errors.Wrapf(err, "could not serialize %s record", c.name)
	}

	if err = c.backend.Update(ctx, c.name, id, payload); err != nil {
		return &RemoteError{Op: "update", Collection: c.name, Err: err}
	}
	return nil
}

// Delete removes the record identified by id.
func (c *RemoteCollection[T]) Delete(ctx context.Context, id string) error {
	if err := c.backend.Delete(ctx, c.name, id); err != nil {
		return &RemoteError{Op: "delete", Collection: c.name, Err: err}
	}
	return nil
}

// A responseError is returned when the backend committed a write but its response is unreadable.
type responseError struct {
	err error
}

func (e *responseError) Error() string {
	return e.err.Error()
}

func (e *responseError) Unwrap() error {
	return e.err
}

// editable serializes v without its server-assigned fields.
func editable(v any) (json.RawMessage, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err = json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	for _, k := range serverFields {
		delete(fields, k)
	}

	return json.Marshal(fields)
}
