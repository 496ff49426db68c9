package service

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/mdouchement/unionboard/internal/model"
	"github.com/mdouchement/unionboard/internal/realtime"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

// timestamp is a fixed width layout so formatted dates sort lexicographically.
const timestamp = "2006-01-02T15:04:05.000000000Z"

type (
	// An Order describes how the records of a collection are sorted.
	Order struct {
		Field     string
		Ascending bool
	}

	// A CollectionService manages the records of the collections.
	CollectionService interface {
		// List returns the records of the collection sorted by the given order.
		// Ties are broken by creation date, newest first, then by id.
		List(collection string, order Order) ([]*model.Record, error)
		// Insert creates a record from the given document.
		Insert(ctx context.Context, collection string, document []byte) (*model.Record, error)
		// Update replaces all the editable fields of the record.
		Update(ctx context.Context, collection, id string, document []byte) (*model.Record, error)
		// Delete removes the record.
		Delete(ctx context.Context, collection, id string) error
	}

	collectionService struct {
		Params
	}

	sortable struct {
		record *model.Record
		value  *fastjson.Value
	}
)

// NewCollection instantiates a new Collection service.
func NewCollection(params Params) CollectionService {
	return &collectionService{Params: params}
}

// ParseOrder parses the `field.asc` or `field.desc` notation. The direction defaults to ascending.
func ParseOrder(s string) (Order, error) {
	if s == "" {
		return Order{Field: model.KeyCreatedAt}, nil
	}

	field, direction, _ := strings.Cut(s, ".")
	if field == "" {
		return Order{}, apierror.BadRequest("Missing order field.")
	}

	switch direction {
	case "", "asc":
		return Order{Field: field, Ascending: true}, nil
	case "desc":
		return Order{Field: field}, nil
	default:
		return Order{}, apierror.BadRequest("Invalid order direction: " + direction)
	}
}

func (s *collectionService) List(collection string, order Order) ([]*model.Record, error) {
	records, err := s.Database.FindRecords(collection)
	if err != nil {
		return nil, errors.Wrap(err, "could not get records")
	}

	entries := make([]sortable, len(records))
	for i, record := range records {
		entries[i] = sortable{record: record, value: field(record, order.Field)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		// Missing values are always last.
		ni, nj := isNull(entries[i].value), isNull(entries[j].value)
		if ni != nj {
			return nj
		}
		if !ni {
			if c := compare(entries[i].value, entries[j].value); c != 0 {
				if order.Ascending {
					return c < 0
				}
				return c > 0
			}
		}

		ri, rj := entries[i].record, entries[j].record
		if !ri.CreatedAt.Equal(rj.CreatedAt) {
			return ri.CreatedAt.After(rj.CreatedAt)
		}
		return ri.ID < rj.ID
	})

	for i := range entries {
		records[i] = entries[i].record
	}
	return records, nil
}

func (s *collectionService) Insert(ctx context.Context, collection string, document []byte) (*model.Record, error) {
	record, err := model.NewRecord(collection, document)
	if err != nil {
		return nil, apierror.NewWithTagCode(http.StatusBadRequest, apierror.TagInvalidRecord, err.Error())
	}

	if err = s.Database.Save(record); err != nil {
		return nil, errors.Wrap(err, "could not save record")
	}

	s.publish(ctx, realtime.NewEvent(collection, realtime.TypeInsert, record.ID))
	return record, nil
}

func (s *collectionService) Update(ctx context.Context, collection, id string, document []byte) (*model.Record, error) {
	record, err := s.Database.FindRecord(collection, id)
	if err != nil {
		if s.Database.IsNotFound(err) {
			return nil, apierror.NotFound("No such record.")
		}
		return nil, errors.Wrap(err, "could not get record")
	}

	if err = record.SetDocument(document); err != nil {
		return nil, apierror.NewWithTagCode(http.StatusBadRequest, apierror.TagInvalidRecord, err.Error())
	}

	if err = s.Database.Save(record); err != nil {
		return nil, errors.Wrap(err, "could not save record")
	}

	s.publish(ctx, realtime.NewEvent(collection, realtime.TypeUpdate, record.ID))
	return record, nil
}

func (s *collectionService) Delete(ctx context.Context, collection, id string) error {
	if err := s.Database.DeleteRecord(collection, id); err != nil {
		if s.Database.IsNotFound(err) {
			return apierror.NotFound("No such record.")
		}
		return errors.Wrap(err, "could not delete record")
	}

	s.publish(ctx, realtime.NewEvent(collection, realtime.TypeDelete, id))
	return nil
}

// publish never fails the write, the change is already committed.
func (s *collectionService) publish(ctx context.Context, event realtime.Event) {
	if s.Broker == nil {
		return
	}

	if err := s.Broker.Publish(ctx, event); err != nil {
		s.logger().WithFields(logrus.Fields{
			"collection": event.Collection,
			"type":       event.Type,
			"id":         event.ID,
		}).WithError(err).Error("Could not publish change")
	}
}

// field returns the JSON value of the record used for sorting.
// Reserved keys are read from the record itself.
func field(record *model.Record, key string) *fastjson.Value {
	var a fastjson.Arena
	switch key {
	case model.KeyID:
		return a.NewString(record.ID)
	case model.KeyCreatedAt:
		return a.NewString(record.CreatedAt.UTC().Format(timestamp))
	case model.KeyUpdatedAt:
		return a.NewString(record.UpdatedAt.UTC().Format(timestamp))
	}

	v, err := fastjson.ParseBytes(record.Payload)
	if err != nil {
		return nil
	}
	return v.Get(key)
}

// compare orders two non-null JSON values.
func compare(a, b *fastjson.Value) int {
	ta, tb := a.Type(), b.Type()
	switch {
	case ta == fastjson.TypeNumber && tb == fastjson.TypeNumber:
		fa, fb := a.GetFloat64(), b.GetFloat64()
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case ta == fastjson.TypeString && tb == fastjson.TypeString:
		return bytes.Compare(a.GetStringBytes(), b.GetStringBytes())
	case isBool(ta) && isBool(tb):
		return boolean(ta) - boolean(tb)
	}
	return strings.Compare(a.String(), b.String())
}

func isNull(v *fastjson.Value) bool {
	return v == nil || v.Type() == fastjson.TypeNull
}

func isBool(t fastjson.Type) bool {
	return t == fastjson.TypeTrue || t == fastjson.TypeFalse
}

func boolean(t fastjson.Type) int {
	if t == fastjson.TypeTrue {
		return 1
	}
	return 0
}
