package client

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/cms/content"
	"github.com/mdouchement/unionboard/pkg/libub"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	// A Backend is the remote side used by the App.
	Backend interface {
		cms.Backend
		cms.ObjectStorage
		cms.Notifier
	}

	// Options configures an App.
	Options struct {
		Out      io.Writer
		Debug    bool
		Debounce time.Duration
		Logger   logrus.FieldLogger
		// Rules of the attachments, cms.DefaultAttachmentRules when nil.
		Rules map[cms.AttachmentClass]cms.AttachmentRule
		// Location used by the calendar, time.Local when nil.
		Location *time.Location
	}

	// An App runs the ubctl commands against a Backend.
	App struct {
		out        io.Writer
		debug      bool
		location   *time.Location
		backend    Backend
		authorizer cms.Authorizer
		feed       *cms.ChangeFeed
		pipeline   *cms.AttachmentPipeline
		logger     logrus.FieldLogger
	}

	// A Draft is a record read from a YAML document plus the files to attach to it.
	Draft struct {
		Document    []byte
		Attachments map[string]string // field => filename
	}
)

// New returns an App working on backend.
func New(backend Backend, authorizer cms.Authorizer, opts Options) *App {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	return &App{
		out:        opts.Out,
		debug:      opts.Debug,
		location:   opts.Location,
		backend:    backend,
		authorizer: authorizer,
		feed: cms.NewChangeFeed(backend,
			cms.WithDebounce(opts.Debounce),
			cms.WithFeedLogger(opts.Logger),
		),
		pipeline: cms.NewAttachmentPipeline(backend, opts.Rules, opts.Logger),
		logger:   opts.Logger,
	}
}

// Connect returns an App working on the server described by cfg.
func Connect(cfg Config, opts Options) (*App, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("no endpoint configured, run `ubctl login` or set UBCTL_ENDPOINT")
	}

	client, err := libub.NewDefaultClient(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "could not reach given endpoint")
	}
	client.SetBearerToken(cfg.Token)

	if opts.Debounce == 0 {
		opts.Debounce = cfg.Debounce
	}
	return New(client, libub.NewTokenAuthorizer(client), opts), nil
}

// Collections returns the names of the managed collections.
func Collections() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List prints the records of the collection matching q.
func (a *App) List(ctx context.Context, collection string, q cms.Query) error {
	h, err := lookup(collection)
	if err != nil {
		return err
	}
	return h.list(ctx, a, q)
}

// Show prints the record of the collection identified by id.
func (a *App) Show(ctx context.Context, collection, id string) error {
	h, err := lookup(collection)
	if err != nil {
		return err
	}
	return h.show(ctx, a, id)
}

// Create creates a record in the collection from the given draft.
func (a *App) Create(ctx context.Context, collection string, draft Draft) error {
	h, err := lookup(collection)
	if err != nil {
		return err
	}
	return h.create(ctx, a, draft)
}

// Edit replaces the editable fields of the record identified by id with the given draft.
func (a *App) Edit(ctx context.Context, collection, id string, draft Draft) error {
	h, err := lookup(collection)
	if err != nil {
		return err
	}
	return h.edit(ctx, a, id, draft)
}

// Delete removes the record of the collection identified by id.
func (a *App) Delete(ctx context.Context, collection, id string) error {
	h, err := lookup(collection)
	if err != nil {
		return err
	}
	return h.remove(ctx, a, id)
}

// Watch prints the records of the collection matching q again on every change, until ctx is done.
func (a *App) Watch(ctx context.Context, collection string, q cms.Query) error {
	h, err := lookup(collection)
	if err != nil {
		return err
	}
	return h.watch(ctx, a, q)
}

// Calendar prints the events overlapping [from, to).
// A zero from means today, a zero to means 30 days after from.
func (a *App) Calendar(ctx context.Context, from, to time.Time) error {
	if from.IsZero() {
		y, m, d := time.Now().In(a.location).Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, a.location)
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 30)
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, err := open(ctx, a, content.Events, false)
	if err != nil {
		return err
	}
	defer store.Close()

	slots := cms.Window(cms.Project(content.Events, store.Snapshot(), cms.Calendar{Location: a.location}), from, to)
	return a.renderCalendar(slots)
}

func lookup(collection string) (handler, error) {
	h, ok := registry[strings.TrimSpace(collection)]
	if !ok {
		return nil, errors.Errorf("unknown collection %q, expected one of %s", collection, strings.Join(Collections(), ", "))
	}
	return h, nil
}

// open returns a loaded store of the given kind.
func open[T cms.Entity](ctx context.Context, a *App, kind cms.Kind[T], live bool) (*cms.Store[T], error) {
	opts := []cms.StoreOption{
		cms.WithAttachments(a.pipeline),
		cms.WithAuthorizer(a.authorizer),
		cms.WithLogger(a.logger),
	}
	if live {
		opts = append(opts, cms.WithFeed(a.feed))
	}

	store := cms.NewStore(kind, cms.NewRemoteCollection[T](a.backend, kind.Collection), opts...)
	if err := store.Open(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
