package model

import (
	"time"
)

type (
	// A Model defines an object that can be stored in database.
	Model interface {
		// GetID returns the model's ID.
		GetID() string
		// SetID defines the model's ID.
		SetID(string)
		// Touch sets the modification date, and the creation date of a new model.
		Touch(time.Time)
	}

	// A Base contains the fields assigned by the database.
	Base struct {
		ID        string    `json:"id"         msgpack:"id"         storm:"id"`
		CreatedAt time.Time `json:"created_at" msgpack:"created_at" storm:"index"`
		UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
	}
)

// GetID returns the model's ID.
func (m *Base) GetID() string {
	return m.ID
}

// SetID defines the model's ID.
func (m *Base) SetID(id string) {
	m.ID = id
}

// Touch sets UpdatedAt to t. CreatedAt is set to t when it is not defined yet.
func (m *Base) Touch(t time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = t
	}
	m.UpdatedAt = t
}
