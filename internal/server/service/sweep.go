package service

import (
	"net/url"
	"strings"
	"time"

	"github.com/mdouchement/unionboard/internal/model"
	"github.com/mdouchement/unionboard/internal/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

// PublicObjects is the path prefix of the public object URLs.
const PublicObjects = "/storage/v1/object/public/"

type (
	// A SweepParams configures a sweep of the unreferenced objects.
	SweepParams struct {
		Params
		Storage     *storage.FS
		Collections []string
		Buckets     []string
		// GracePeriod protects the objects uploaded for a record that is not written yet.
		GracePeriod time.Duration
	}

	// A SweepService removes the objects no record references.
	SweepService interface {
		// Execute performs the sweep and returns the removed object keys.
		Execute() ([]string, error)
	}

	sweepService struct {
		SweepParams
	}
)

// NewSweep instantiates a new Sweep service.
func NewSweep(params SweepParams) SweepService {
	return &sweepService{SweepParams: params}
}

func (s *sweepService) Execute() ([]string, error) {
	referenced, err := s.references()
	if err != nil {
		return nil, err
	}

	before := time.Now().Add(-s.GracePeriod)
	removed := []string{}

	for _, bucket := range s.Buckets {
		objects, err := s.Database.FindObjects(bucket, before)
		if err != nil {
			return removed, errors.Wrapf(err, "could not get objects of %s", bucket)
		}

		for _, object := range objects {
			if referenced[object.Key] {
				continue
			}

			if err = s.remove(object); err != nil {
				return removed, err
			}
			removed = append(removed, object.Key)

			s.logger().WithFields(logrus.Fields{
				"bucket": object.Bucket,
				"path":   object.Path,
			}).Info("Removed unreferenced object")
		}
	}

	return removed, nil
}

func (s *sweepService) remove(object *model.Object) error {
	if err := s.Storage.Remove(object.Bucket, object.Path); err != nil {
		return errors.Wrapf(err, "could not remove %s", object.Key)
	}

	err := s.Database.Delete(object)
	return errors.Wrapf(err, "could not remove %s", object.Key)
}

// references returns the object keys found in the string fields of all the records.
func (s *sweepService) references() (map[string]bool, error) {
	referenced := map[string]bool{}

	var parser fastjson.Parser
	for _, collection := range s.Collections {
		records, err := s.Database.FindRecords(collection)
		if err != nil {
			return nil, errors.Wrapf(err, "could not get records of %s", collection)
		}

		for _, record := range records {
			v, err := parser.ParseBytes(record.Payload)
			if err != nil {
				continue
			}
			collect(v, referenced)
		}
	}

	return referenced, nil
}

func collect(v *fastjson.Value, referenced map[string]bool) {
	switch v.Type() {
	case fastjson.TypeString:
		_, key, ok := strings.Cut(string(v.GetStringBytes()), PublicObjects)
		if !ok {
			return
		}
		key, _, _ = strings.Cut(key, "?")
		if unescaped, err := url.PathUnescape(key); err == nil {
			key = unescaped
		}
		referenced[key] = true
	case fastjson.TypeArray:
		for _, e := range v.GetArray() {
			collect(e, referenced)
		}
	case fastjson.TypeObject:
		v.GetObject().Visit(func(_ []byte, e *fastjson.Value) {
			collect(e, referenced)
		})
	}
}
