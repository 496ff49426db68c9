package database

import (
	"time"

	"github.com/mdouchement/unionboard/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Save inserts or updates the entry in database with the given model.
		Save(m model.Model) error
		// Delete deletes the entry in database with the given model.
		Delete(m model.Model) error
		// Close the database.
		Close() error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool
		// IsAlreadyExists returns true if err is an already exists error.
		IsAlreadyExists(err error) bool

		RecordInteraction
		ObjectInteraction
	}

	// A RecordInteraction defines all the methods used to interact with collection records.
	RecordInteraction interface {
		// FindRecord returns the record of the collection for the given id.
		FindRecord(collection, id string) (*model.Record, error)
		// FindRecords returns all the records of the collection.
		FindRecords(collection string) ([]*model.Record, error)
		// DeleteRecord deletes the record of the collection for the given id.
		DeleteRecord(collection, id string) error
		// DeleteRecords deletes all the records of the collection and returns how many were deleted.
		DeleteRecords(collection string) (int, error)
	}

	// An ObjectInteraction defines all the methods used to interact with the stored objects metadata.
	ObjectInteraction interface {
		// FindObject returns the object stored at bucket/path.
		FindObject(bucket, path string) (*model.Object, error)
		// FindObjects returns the objects of the bucket created before the given date.
		// A zero date means all objects.
		FindObjects(bucket string, before time.Time) ([]*model.Object, error)
		// DeleteObject deletes the object stored at bucket/path.
		DeleteObject(bucket, path string) error
	}
)
