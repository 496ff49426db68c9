package cms

import (
	"sort"
	"strings"
	"time"

	"github.com/mdouchement/unionboard/pkg/structs"
)

// TagKey is the struct tag holding field annotations consumed by Kind.
//
//	Title  string `json:"title"   cms:"required,search"`
//	PDFURL string `json:"pdf_url" cms:"required,attachment=pdf"`
//	Type   string `json:"type"    cms:"category"`
//	Date   string `json:"date"    cms:"date"`
//	Time   string `json:"time"    cms:"time"`
const TagKey = "cms"

type (
	// An Entity is a record persisted in a collection.
	Entity interface {
		// GetID returns the server-assigned identifier.
		GetID() string
		// GetCreatedAt returns the server-assigned creation date.
		GetCreatedAt() time.Time
	}

	// A Base contains the server-assigned fields shared by all content kinds.
	Base struct {
		ID        string    `json:"id,omitempty"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// A Kind is the declarative configuration of one content kind.
	Kind[T Entity] struct {
		// Collection is the remote collection name.
		Collection string
		// SortField is the Go field name used for ordering. Empty means CreatedAt.
		SortField string
		// Ascending reverses the default descending order.
		Ascending bool
		// Public lists the operations allowed to any actor.
		Public []Op

		schema schema
	}

	// A KindOption configures a Kind.
	KindOption func(*kindOptions)

	kindOptions struct {
		sortField string
		ascending bool
		public    []Op
	}

	schema struct {
		required    []string
		search      []string
		category    string
		date        string
		time        string
		attachments map[string]AttachmentClass
		order       []string // attachment fields in declaration order
	}
)

// GetID returns the record's ID.
func (b Base) GetID() string {
	return b.ID
}

// GetCreatedAt returns the record's creation date.
func (b Base) GetCreatedAt() time.Time {
	return b.CreatedAt
}

// SortBy orders the collection by the given Go field name.
func SortBy(field string) KindOption {
	return func(o *kindOptions) {
		o.sortField = field
	}
}

// Ascending orders the collection in ascending order.
func Ascending() KindOption {
	return func(o *kindOptions) {
		o.ascending = true
	}
}

// PublicCreate allows any actor to create records of the kind.
func PublicCreate() KindOption {
	return func(o *kindOptions) {
		o.public = append(o.public, OpCreate)
	}
}

// Define declares a content kind stored in the given collection.
// Field annotations are read from T's `cms` struct tags.
func Define[T Entity](collection string, opts ...KindOption) Kind[T] {
	var o kindOptions
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	k := Kind[T]{
		Collection: collection,
		SortField:  o.sortField,
		Ascending:  o.ascending,
		Public:     o.public,
		schema: schema{
			attachments: map[string]AttachmentClass{},
		},
	}

	tags := structs.Tags(zero, TagKey)
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, annotation := range strings.Split(tags[name], ",") {
			key, value, _ := strings.Cut(strings.TrimSpace(annotation), "=")
			switch key {
			case "required":
				k.schema.required = append(k.schema.required, name)
			case "search":
				k.schema.search = append(k.schema.search, name)
			case "category":
				k.schema.category = name
			case "date":
				k.schema.date = name
			case "time":
				k.schema.time = name
			case "attachment":
				k.schema.attachments[name] = AttachmentClass(value)
				k.schema.order = append(k.schema.order, name)
			}
		}
	}

	return k
}

// Required returns the Go field names that must be present.
func (k Kind[T]) Required() []string {
	return k.schema.required
}

// SearchFields returns the Go field names matched by text queries.
func (k Kind[T]) SearchFields() []string {
	return k.schema.search
}

// CategoryField returns the Go field name used as categorical filter.
func (k Kind[T]) CategoryField() string {
	return k.schema.category
}

// Attachments returns the attachment fields and their class.
func (k Kind[T]) Attachments() map[string]AttachmentClass {
	return k.schema.attachments
}

// AttachmentClassOf returns the attachment class of the given field.
func (k Kind[T]) AttachmentClassOf(field string) (AttachmentClass, bool) {
	class, ok := k.schema.attachments[field]
	return class, ok
}

// AttachmentURLs returns the non-empty attachment URLs of the given record, by field.
func (k Kind[T]) AttachmentURLs(item T) map[string]string {
	urls := map[string]string{}
	for _, field := range k.schema.order {
		if u, ok := structs.GetField(item, field).(string); ok && u != "" {
			urls[field] = u
		}
	}
	return urls
}

// OrderKey returns the JSON key used for server-side ordering.
func (k Kind[T]) OrderKey() string {
	if k.SortField == "" {
		return "created_at"
	}

	var zero T
	return structs.JSONName(zero, k.SortField)
}

// IsPublic returns true if any actor may perform op on the kind.
func (k Kind[T]) IsPublic(op Op) bool {
	for _, p := range k.Public {
		if p == op {
			return true
		}
	}
	return false
}

// Validate checks that every required field is present.
// Attachment fields listed in pending are considered present.
func (k Kind[T]) Validate(draft T, pending ...string) []FieldError {
	var errs []FieldError
	for _, field := range k.schema.required {
		if structs.IsBlank(structs.GetField(draft, field)) && !contains(pending, field) {
			errs = append(errs, FieldError{Field: field, Message: "is required"})
		}
	}
	return errs
}

// Sort orders items in place according to the kind's declaration.
// Ties are broken by CreatedAt (newest first) then ID so that the order is deterministic.
func (k Kind[T]) Sort(items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		if k.SortField != "" {
			c := compare(structs.GetField(items[i], k.SortField), structs.GetField(items[j], k.SortField))
			if c != 0 {
				if k.Ascending {
					return c < 0
				}
				return c > 0
			}
		} else if !items[i].GetCreatedAt().Equal(items[j].GetCreatedAt()) {
			if k.Ascending {
				return items[i].GetCreatedAt().Before(items[j].GetCreatedAt())
			}
			return items[i].GetCreatedAt().After(items[j].GetCreatedAt())
		}

		if !items[i].GetCreatedAt().Equal(items[j].GetCreatedAt()) {
			return items[i].GetCreatedAt().After(items[j].GetCreatedAt())
		}
		return items[i].GetID() < items[j].GetID()
	})
}

func compare(a, b any) int {
	switch a := a.(type) {
	case string:
		return strings.Compare(a, b.(string))
	case time.Time:
		return a.Compare(b.(time.Time))
	case bool:
		switch {
		case a == b.(bool):
			return 0
		case a:
			return 1
		}
		return -1
	case int:
		return cmpOrdered(a, b.(int))
	case int64:
		return cmpOrdered(a, b.(int64))
	case float64:
		return cmpOrdered(a, b.(float64))
	}
	return 0
}

func cmpOrdered[N int | int64 | float64](a, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
