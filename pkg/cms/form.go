package cms

import (
	"context"
	"sort"
	"sync"
)

// A Mode tells whether a Form creates or edits a record.
type Mode int

// Form modes.
const (
	ModeCreate Mode = iota
	ModeEdit
)

type (
	// A Writer persists drafts of one kind. It is implemented by Store.
	Writer[T Entity] interface {
		Kind() Kind[T]
		Create(ctx context.Context, draft T, attachments ...Attachment) (T, error)
		Edit(ctx context.Context, id string, draft T, attachments ...Attachment) (T, error)
	}

	// A Form binds one draft to a Writer.
	Form[T Entity] struct {
		store    Writer[T]
		pipeline *AttachmentPipeline

		mu      sync.Mutex
		id      string
		draft   T
		pending map[string]Blob
	}
)

// NewForm returns an empty create form bound to store.
// pipeline is used for pre-flight attachment checks, it may be nil.
func NewForm[T Entity](store Writer[T], pipeline *AttachmentPipeline) *Form[T] {
	return &Form[T]{
		store:    store,
		pipeline: pipeline,
		pending:  map[string]Blob{},
	}
}

// Mode returns the current mode of the form.
func (f *Form[T]) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.id != "" {
		return ModeEdit
	}
	return ModeCreate
}

// Edit loads item into the form, switching it to edit mode.
func (f *Form[T]) Edit(item T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.id = item.GetID()
	f.draft = item
	f.pending = map[string]Blob{}
}

// Draft returns the current draft.
func (f *Form[T]) Draft() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Set replaces the current draft.
func (f *Form[T]) Set(draft T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = draft
}

// Attach sets the blob to upload for the given attachment field on submit.
func (f *Form[T]) Attach(field string, blob Blob) error {
	class, ok := f.store.Kind().AttachmentClassOf(field)
	if !ok {
		return &ValidationError{Fields: []FieldError{{Field: field, Message: "is not an attachment field"}}}
	}
	if f.pipeline != nil {
		if err := f.pipeline.Check(class, blob.Name, blob.Size); err != nil {
			return &ValidationError{Fields: []FieldError{{Field: field, Message: err.Error(), Err: err}}}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[field] = blob
	return nil
}

// Validate returns the errors preventing the draft from being submitted.
func (f *Form[T]) Validate() []FieldError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validate()
}

// Submit uploads pending attachments and creates or updates the record.
// On success the form is reset, on failure the draft and attachments are kept.
func (f *Form[T]) Submit(ctx context.Context) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if errs := f.validate(); len(errs) > 0 {
		var zero T
		return zero, &ValidationError{Fields: errs}
	}

	attachments := f.attachments()

	var (
		result T
		err    error
	)
	if f.id == "" {
		result, err = f.store.Create(ctx, f.draft, attachments...)
	} else {
		result, err = f.store.Edit(ctx, f.id, f.draft, attachments...)
	}
	if err != nil {
		return result, err
	}

	f.reset()
	return result, nil
}

// Reset empties the form and switches it to create mode.
func (f *Form[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

func (f *Form[T]) reset() {
	var zero T
	f.id = ""
	f.draft = zero
	f.pending = map[string]Blob{}
}

func (f *Form[T]) validate() []FieldError {
	kind := f.store.Kind()

	pending := make([]string, 0, len(f.pending))
	for field := range f.pending {
		pending = append(pending, field)
	}
	errs := kind.Validate(f.draft, pending...)

	if f.pipeline != nil {
		for _, a := range f.attachments() {
			class, _ := kind.AttachmentClassOf(a.Field)
			if err := f.pipeline.Check(class, a.Blob.Name, a.Blob.Size); err != nil {
				errs = append(errs, FieldError{Field: a.Field, Message: err.Error(), Err: err})
			}
		}
	}
	return errs
}

// attachments returns the pending attachments in a stable order.
func (f *Form[T]) attachments() []Attachment {
	fields := make([]string, 0, len(f.pending))
	for field := range f.pending {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	attachments := make([]Attachment, 0, len(fields))
	for _, field := range fields {
		attachments = append(attachments, Attachment{Field: field, Blob: f.pending[field]})
	}
	return attachments
}
