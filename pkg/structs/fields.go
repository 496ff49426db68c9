package structs

import (
	"reflect"
	"strings"
	"time"

	"github.com/oleiade/reflections"
)

// GetField returns the value of the provided obj field. obj can whether be a structure or pointer to structure.
func GetField(obj any, name string) any {
	v, err := reflections.GetField(obj, name)
	if err != nil {
		panic(err)
	}

	return v
}

// SetField sets the provided obj field with provided value.
// obj param has to be a pointer to a struct, otherwise it will soundly fail.
// Provided value type should match with the struct field you're trying to set.
func SetField(obj any, name string, value any) {
	if err := reflections.SetField(obj, name, value); err != nil {
		panic(err)
	}
}

// Tags returns the value of the given tag key for every exported field of obj.
// Fields without the tag are omitted.
func Tags(obj any, key string) map[string]string {
	tags, err := reflections.Tags(obj, key)
	if err != nil {
		panic(err)
	}

	for name, tag := range tags {
		if tag == "" {
			delete(tags, name)
		}
	}
	return tags
}

// JSONName returns the JSON key of the given field, falling back to the field name.
func JSONName(obj any, name string) string {
	tag, err := reflections.GetFieldTag(obj, name, "json")
	if err != nil {
		return name
	}

	tag = strings.Split(tag, ",")[0]
	if tag == "" || tag == "-" {
		return name
	}
	return tag
}

// IsBlank returns true if the given value carries no data:
// nil, zero value, whitespace-only string or empty collection.
func IsBlank(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case time.Time:
		return v.IsZero()
	case *time.Time:
		return v == nil || v.IsZero()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	case reflect.Bool:
		// A false flag is a value, not an absence.
		return false
	}
	return rv.IsZero()
}
