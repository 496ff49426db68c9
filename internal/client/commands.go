package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/cms/content"
	"github.com/mdouchement/unionboard/pkg/structs"
	"github.com/pkg/errors"
)

type (
	handler interface {
		list(ctx context.Context, a *App, q cms.Query) error
		show(ctx context.Context, a *App, id string) error
		create(ctx context.Context, a *App, d Draft) error
		edit(ctx context.Context, a *App, id string, d Draft) error
		remove(ctx context.Context, a *App, id string) error
		watch(ctx context.Context, a *App, q cms.Query) error
	}

	commands[T cms.Entity] struct {
		kind cms.Kind[T]
		// arrange reorders the filtered records before they are printed.
		arrange func([]T) []T
	}
)

var registry = map[string]handler{
	content.BlogPosts.Collection:             commands[content.BlogPost]{kind: content.BlogPosts},
	content.CommunityMembers.Collection:      commands[content.CommunityMember]{kind: content.CommunityMembers},
	content.Events.Collection:                commands[content.Event]{kind: content.Events},
	content.JudicialDecisions.Collection:     commands[content.JudicialDecision]{kind: content.JudicialDecisions},
	content.LibraryDocuments.Collection:      commands[content.LibraryDocument]{kind: content.LibraryDocuments},
	content.NewsletterSubscribers.Collection: commands[content.NewsletterSubscriber]{kind: content.NewsletterSubscribers},
	content.Notices.Collection:               commands[content.Notice]{kind: content.Notices, arrange: content.NoticesByUrgency},
	content.Suggestions.Collection:           commands[content.Suggestion]{kind: content.Suggestions},
}

func (h commands[T]) list(ctx context.Context, a *App, q cms.Query) error {
	store, err := open(ctx, a, h.kind, false)
	if err != nil {
		return err
	}
	defer store.Close()

	return a.renderRecords(h.kind.Collection, h.rows(store.Snapshot(), q))
}

func (h commands[T]) show(ctx context.Context, a *App, id string) error {
	store, err := open(ctx, a, h.kind, false)
	if err != nil {
		return err
	}
	defer store.Close()

	item, err := store.Get(id)
	if err != nil {
		return err
	}
	return a.renderRecord(item)
}

func (h commands[T]) create(ctx context.Context, a *App, d Draft) error {
	store, err := open(ctx, a, h.kind, false)
	if err != nil {
		return err
	}
	defer store.Close()

	var zero T
	draft, err := decode(d.Document, zero)
	if err != nil {
		return err
	}

	form := cms.NewForm[T](store, a.pipeline)
	form.Set(draft)
	if err = h.attach(form, d.Attachments); err != nil {
		return err
	}

	created, err := form.Submit(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Created %s %s\n", h.kind.Collection, created.GetID())
	return a.renderRecord(created)
}

func (h commands[T]) edit(ctx context.Context, a *App, id string, d Draft) error {
	store, err := open(ctx, a, h.kind, false)
	if err != nil {
		return err
	}
	defer store.Close()

	item, err := store.Get(id)
	if err != nil {
		return err
	}

	// Fields missing from the document keep their current value.
	draft, err := decode(d.Document, item)
	if err != nil {
		return err
	}

	form := cms.NewForm[T](store, a.pipeline)
	form.Edit(item)
	form.Set(draft)
	if err = h.attach(form, d.Attachments); err != nil {
		return err
	}

	if _, err = form.Submit(ctx); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Updated %s %s\n", h.kind.Collection, id)
	if item, err = store.Get(id); err != nil {
		return nil
	}
	return a.renderRecord(item)
}

func (h commands[T]) remove(ctx context.Context, a *App, id string) error {
	store, err := open(ctx, a, h.kind, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err = store.Remove(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Deleted %s %s\n", h.kind.Collection, id)
	return nil
}

func (h commands[T]) watch(ctx context.Context, a *App, q cms.Query) error {
	store, err := open(ctx, a, h.kind, true)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		mu     sync.Mutex
		latest = store.Snapshot()
		signal = make(chan struct{}, 1)
	)
	signal <- struct{}{}

	unlisten := store.Listen(func(items []T) {
		mu.Lock()
		latest = items
		mu.Unlock()

		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer unlisten()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signal:
		}

		mu.Lock()
		items := latest
		mu.Unlock()

		a.clear()
		fmt.Fprintf(a.out, "%s (%s)\n", h.kind.Collection, store.State())
		if err := store.Err(); err != nil {
			fmt.Fprintf(a.out, "Last reload failed: %s\n", err)
		}
		if err := a.renderRecords(h.kind.Collection, h.rows(items, q)); err != nil {
			return err
		}
	}
}

func (h commands[T]) rows(snapshot []T, q cms.Query) []row {
	items := cms.Filter(h.kind, snapshot, q)
	if h.arrange != nil {
		items = h.arrange(items)
	}

	rows := make([]row, 0, len(items))
	for _, item := range items {
		rows = append(rows, row{
			ID:        item.GetID(),
			Label:     label(item),
			Category:  category(h.kind, item),
			CreatedAt: item.GetCreatedAt(),
			Record:    item,
		})
	}
	return rows
}

func (h commands[T]) attach(form *cms.Form[T], attachments map[string]string) error {
	for name, filename := range attachments {
		field, ok := attachmentField(h.kind, name)
		if !ok {
			return errors.Errorf("%s has no attachment field %q", h.kind.Collection, name)
		}

		blob, err := cms.FileBlob(filename)
		if err != nil {
			return err
		}
		if err = form.Attach(field, blob); err != nil {
			return err
		}
	}
	return nil
}

// attachmentField returns the Go field of the attachment named by its Go or JSON name.
func attachmentField[T cms.Entity](kind cms.Kind[T], name string) (string, bool) {
	var zero T
	for field := range kind.Attachments() {
		if field == name || structs.JSONName(zero, field) == name {
			return field, true
		}
	}
	return "", false
}

func category[T cms.Entity](kind cms.Kind[T], item T) string {
	field := kind.CategoryField()
	if field == "" {
		return ""
	}
	return fmt.Sprint(structs.GetField(item, field))
}
