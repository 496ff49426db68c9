package database

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/msgpack"
	"github.com/asdine/storm/v3/q"
	"github.com/gofrs/uuid"
	"github.com/mdouchement/unionboard/internal/model"
	"github.com/pkg/errors"
)

type strm struct {
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(msgpack.Codec)

// StormInit initializes Storm database.
func StormInit(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	if err := db.Init(&model.Record{}); err != nil {
		return errors.Wrap(err, "could not init record index")
	}

	err = db.Init(&model.Object{})
	return errors.Wrap(err, "could not init object index")
}

// StormReIndex reindex Storm database.
func StormReIndex(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	if err := db.ReIndex(&model.Record{}); err != nil {
		return errors.Wrap(err, "could not ReIndex records")
	}

	err = db.ReIndex(&model.Object{})
	return errors.Wrap(err, "could not ReIndex objects")
}

// StormOpen returns a new Storm database connection.
func StormOpen(database string) (Client, error) {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return nil, errors.Wrap(err, "could not get database connection")
	}

	return &strm{
		db: db,
	}, nil
}

// Save inserts or updates the entry in database with the given model.
func (c *strm) Save(m model.Model) error {
	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
	}
	m.Touch(time.Now().UTC())

	return errors.Wrap(c.db.Save(m), "could not save the model")
}

// Delete deletes the entry in database with the given model.
func (c *strm) Delete(m model.Model) error {
	return errors.Wrap(c.db.DeleteStruct(m), "could not delete the model")
}

// Close the database.
func (c *strm) Close() error {
	return c.db.Close()
}

// IsNotFound returns true if err is a not found error.
func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

// IsAlreadyExists returns true if err is an already exists error.
func (c *strm) IsAlreadyExists(err error) bool {
	return errors.Cause(err) == storm.ErrAlreadyExists
}

// FindRecord returns the record of the collection for the given id.
func (c *strm) FindRecord(collection, id string) (*model.Record, error) {
	var record model.Record
	err := c.db.Select(q.Eq("ID", id), q.Eq("Collection", collection)).First(&record)
	if err != nil {
		return nil, errors.Wrap(err, "could not find record")
	}
	return &record, nil
}

// FindRecords returns all the records of the collection.
func (c *strm) FindRecords(collection string) ([]*model.Record, error) {
	records := make([]*model.Record, 0)
	err := c.db.Find("Collection", collection, &records)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find records")
	}
	return records, nil
}

// DeleteRecord deletes the record of the collection for the given id.
func (c *strm) DeleteRecord(collection, id string) error {
	err := c.db.Select(q.Eq("ID", id), q.Eq("Collection", collection)).Delete(&model.Record{})
	return errors.Wrap(err, "could not delete record")
}

// DeleteRecords deletes all the records of the collection and returns how many were deleted.
func (c *strm) DeleteRecords(collection string) (int, error) {
	query := c.db.Select(q.Eq("Collection", collection))

	n, err := query.Count(&model.Record{})
	if err != nil {
		return 0, errors.Wrap(err, "could not count records")
	}
	if n == 0 {
		return 0, nil
	}

	err = query.Delete(&model.Record{})
	return n, errors.Wrap(err, "could not delete records")
}

// FindObject returns the object stored at bucket/path.
func (c *strm) FindObject(bucket, path string) (*model.Object, error) {
	var object model.Object
	if err := c.db.One("Key", model.ObjectKey(bucket, path), &object); err != nil {
		return nil, errors.Wrap(err, "could not find object")
	}
	return &object, nil
}

// FindObjects returns the objects of the bucket created before the given date.
func (c *strm) FindObjects(bucket string, before time.Time) ([]*model.Object, error) {
	query := []q.Matcher{q.Eq("Bucket", bucket)}
	if !before.IsZero() {
		query = append(query, q.Lt("CreatedAt", before))
	}

	objects := make([]*model.Object, 0)
	err := c.db.Select(query...).OrderBy("CreatedAt").Find(&objects)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find objects")
	}
	return objects, nil
}

// DeleteObject deletes the object stored at bucket/path.
func (c *strm) DeleteObject(bucket, path string) error {
	err := c.db.Select(q.Eq("Key", model.ObjectKey(bucket, path))).Delete(&model.Object{})
	return errors.Wrap(err, "could not delete object")
}
