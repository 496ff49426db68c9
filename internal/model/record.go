package model

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Reserved keys of a record document.
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// A Record is a document stored in a collection.
// Payload holds the editable fields, the reserved keys are never stored in it.
type Record struct {
	Base `msgpack:",inline" storm:"inline"`

	Collection string `json:"collection" msgpack:"collection" storm:"index"`
	Payload    []byte `json:"-"          msgpack:"payload"`
}

// NewRecord returns a record of the collection holding the editable fields of document.
func NewRecord(collection string, document []byte) (*Record, error) {
	r := &Record{Collection: collection}
	return r, r.SetDocument(document)
}

// SetDocument replaces all the editable fields of the record.
func (r *Record) SetDocument(document []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(document, &fields); err != nil {
		return errors.Wrap(err, "document is not a JSON object")
	}
	if fields == nil {
		return errors.New("document is not a JSON object")
	}

	delete(fields, KeyID)
	delete(fields, KeyCreatedAt)
	delete(fields, KeyUpdatedAt)

	payload, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "could not serialize document")
	}
	r.Payload = payload
	return nil
}

// Fields returns the editable fields of the record.
func (r *Record) Fields() (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(r.Payload) == 0 {
		return fields, nil
	}

	err := json.Unmarshal(r.Payload, &fields)
	return fields, errors.Wrap(err, "could not parse payload")
}

// MarshalJSON renders the record as a flat document including its reserved keys.
func (r *Record) MarshalJSON() ([]byte, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}

	if fields[KeyID], err = json.Marshal(r.ID); err != nil {
		return nil, err
	}
	if fields[KeyCreatedAt], err = json.Marshal(r.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if fields[KeyUpdatedAt], err = json.Marshal(r.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}
