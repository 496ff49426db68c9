package cms

import (
	"context"
	"sync"

	"github.com/mdouchement/unionboard/pkg/structs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// A State is a step of the Store lifecycle.
type State int

// Store states.
const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateMutating
	StateRefreshing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateMutating:
		return "mutating"
	case StateRefreshing:
		return "refreshing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type (
	// A Store owns the local cache of one collection.
	//
	// The cache is only ever replaced by a full reload: after each write and
	// after each change signal received from the feed.
	Store[T Entity] struct {
		kind        Kind[T]
		remote      Collection[T]
		feed        Subscriber
		attachments *AttachmentPipeline
		authorizer  Authorizer
		logger      logrus.FieldLogger

		// wmu serializes writes.
		wmu sync.Mutex

		mu        sync.Mutex
		ctx       context.Context // cancelled by Close, used by feed-driven loads
		cancel    context.CancelFunc
		items     []T
		err       error
		loaded    bool
		loading   int
		writing   bool
		closed    bool
		issued    uint64 // sequence of the last issued load
		barrier   uint64 // loads issued before barrier are stale
		refresh   bool   // a feed-driven refresh is running
		pending   bool   // a signal arrived during the running refresh
		sub       *Subscription
		listenSeq int
		listeners map[int]func([]T)
		applied   uint64 // generation of the cache
		delivered uint64 // generation last handed to the listeners
		notifying bool
	}

	// A StoreOption configures a Store.
	StoreOption func(*storeOptions)

	storeOptions struct {
		feed        Subscriber
		attachments *AttachmentPipeline
		authorizer  Authorizer
		logger      logrus.FieldLogger
	}
)

// WithFeed makes the store reload on every change signal of its collection.
func WithFeed(feed Subscriber) StoreOption {
	return func(o *storeOptions) {
		o.feed = feed
	}
}

// WithAttachments sets the pipeline used for attachment fields.
func WithAttachments(p *AttachmentPipeline) StoreOption {
	return func(o *storeOptions) {
		o.attachments = p
	}
}

// WithAuthorizer sets the authorization collaborator checked before every write.
func WithAuthorizer(a Authorizer) StoreOption {
	return func(o *storeOptions) {
		o.authorizer = a
	}
}

// WithLogger sets the logger of the store.
func WithLogger(logger logrus.FieldLogger) StoreOption {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// NewStore returns an idle store of the given kind.
func NewStore[T Entity](kind Kind[T], remote Collection[T], opts ...StoreOption) *Store[T] {
	o := storeOptions{
		authorizer: Anonymous,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store[T]{
		kind:        kind,
		remote:      remote,
		feed:        o.feed,
		attachments: o.attachments,
		authorizer:  o.authorizer,
		logger:      o.logger.WithField("collection", kind.Collection),
		ctx:         ctx,
		cancel:      cancel,
		listeners:   map[int]func([]T){},
	}
}

// Kind returns the kind declaration of the store.
func (s *Store[T]) Kind() Kind[T] {
	return s.kind
}

// Open subscribes to the change feed, if any, and performs the initial load.
func (s *Store[T]) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.feed != nil && s.sub == nil {
		s.sub = s.feed.Subscribe(s.kind.Collection, s.changed)
	}
	s.mu.Unlock()

	return s.Load(ctx)
}

// Close releases the change feed subscription. Pending completions are ignored afterwards.
func (s *Store[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.listeners = map[int]func([]T){}
	s.mu.Unlock()

	s.cancel()
	if sub != nil {
		sub.Close()
	}
}

// State returns the current state of the store.
func (s *Store[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return StateClosed
	case s.writing:
		return StateMutating
	case s.loading > 0 && !s.loaded:
		return StateLoading
	case s.loading > 0:
		return StateRefreshing
	case s.loaded:
		return StateReady
	}
	return StateIdle
}

// Err returns the error of the last load, if any.
func (s *Store[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Snapshot returns a copy of the cache.
func (s *Store[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Get returns the cached record identified by id.
func (s *Store[T]) Get(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.GetID() == id {
			return item, nil
		}
	}

	var zero T
	return zero, errors.Wrapf(ErrNotFound, "%s %s", s.kind.Collection, id)
}

// Listen registers fn, called with a fresh snapshot after every cache replacement.
// Calls are sequential and never deliver an older cache after a newer one;
// replacements made during a call are coalesced into the next one.
// The returned function unregisters fn.
func (s *Store[T]) Listen(fn func([]T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listenSeq++
	id := s.listenSeq
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Load replaces the cache with the current content of the remote collection.
// On failure the cache is left unchanged and the error is returned.
//
// Overlapping loads are resolved by completion order, except that a load issued
// before a write committed never replaces the result of that write's reload.
func (s *Store[T]) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.issued++
	seq := s.issued
	s.loading++
	s.mu.Unlock()

	items, err := s.remote.List(ctx, s.kind.OrderKey(), s.kind.Ascending)

	s.mu.Lock()
	s.loading--
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loaded = true

	if err != nil {
		s.err = err
		s.mu.Unlock()
		return err
	}

	if seq < s.barrier {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale load")
		return nil
	}

	s.kind.Sort(items)
	s.items = items
	s.err = nil
	s.applied++
	s.mu.Unlock()

	s.notify()
	return nil
}

// notify hands the current cache to the listeners until they have seen the latest generation.
// Only one goroutine delivers at a time, the others leave the newer generations to it.
func (s *Store[T]) notify() {
	s.mu.Lock()
	if s.notifying {
		s.mu.Unlock()
		return
	}
	s.notifying = true

	for !s.closed && s.delivered != s.applied {
		s.delivered = s.applied
		snapshot := s.snapshot()
		listeners := make([]func([]T), 0, len(s.listeners))
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(snapshot)
		}
		s.mu.Lock()
	}

	s.notifying = false
	s.mu.Unlock()
}

// Create persists a new record built from draft, uploading the given attachments first.
// The created record is returned as stored by the backend.
func (s *Store[T]) Create(ctx context.Context, draft T, attachments ...Attachment) (T, error) {
	var created T

	err := s.write(ctx, OpCreate, &draft, attachments, func() error {
		var err error
		created, err = s.remote.Insert(ctx, draft)

		var rerr *responseError
		if errors.As(err, &rerr) {
			// The record is persisted and comes back with the reload.
			s.logger.WithError(err).Warn("Could not read created record")
			created = draft
			return nil
		}
		return err
	})
	return created, err
}

// Edit replaces the editable fields of the record identified by id with draft.
// The persisted draft, attachment URLs included, is returned.
// Attachments replaced by the edit are removed once the update is committed.
func (s *Store[T]) Edit(ctx context.Context, id string, draft T, attachments ...Attachment) (T, error) {
	err := s.write(ctx, OpUpdate, &draft, attachments, func() error {
		// Read under the write lock so a queued edit sees the result of the previous one.
		previous, _ := s.Get(id)

		if err := s.remote.Update(ctx, id, draft); err != nil {
			return err
		}

		if s.attachments != nil && previous.GetID() != "" {
			current := s.kind.AttachmentURLs(draft)
			var superseded []string
			for field, u := range s.kind.AttachmentURLs(previous) {
				if current[field] != u {
					superseded = append(superseded, u)
				}
			}
			s.attachments.Discard(ctx, superseded...)
		}
		return nil
	})
	return draft, err
}

// Remove deletes the record identified by id and, best-effort, its attachments.
func (s *Store[T]) Remove(ctx context.Context, id string) error {
	if err := s.authorize(ctx, OpDelete); err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	// Read under the write lock so a queued removal sees the attachments of a previous edit.
	item, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	urls := s.kind.AttachmentURLs(item)

	var g errgroup.Group
	if s.attachments != nil && len(urls) > 0 {
		g.Go(func() error {
			for _, u := range urls {
				s.attachments.Discard(ctx, u)
			}
			return nil // Best-effort.
		})
	}
	g.Go(func() error {
		return s.remote.Delete(ctx, id)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.commit(ctx)
	return nil
}

// write runs the common write sequence: authorization, validation, uploads, remote call and reload.
func (s *Store[T]) write(ctx context.Context, op Op, draft *T, attachments []Attachment, remote func() error) error {
	if err := s.authorize(ctx, op); err != nil {
		return err
	}

	pending := make([]string, 0, len(attachments))
	for _, a := range attachments {
		pending = append(pending, a.Field)
	}
	if errs := s.check(*draft, attachments, pending); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	uploaded := make([]string, 0, len(attachments))
	for _, a := range attachments {
		class, _ := s.kind.AttachmentClassOf(a.Field)
		u, err := s.attachments.Upload(ctx, class, a.Blob)
		if err != nil {
			// Nothing is persisted when an upload fails.
			s.attachments.Discard(ctx, uploaded...)
			return err
		}
		uploaded = append(uploaded, u)
		structs.SetField(draft, a.Field, u)
	}

	if err := remote(); err != nil {
		if len(uploaded) > 0 {
			s.attachments.Discard(ctx, uploaded...)
		}
		return err
	}

	s.commit(ctx)
	return nil
}

func (s *Store[T]) check(draft T, attachments []Attachment, pending []string) []FieldError {
	errs := s.kind.Validate(draft, pending...)
	for _, a := range attachments {
		class, ok := s.kind.AttachmentClassOf(a.Field)
		if !ok {
			errs = append(errs, FieldError{Field: a.Field, Message: "is not an attachment field"})
			continue
		}
		if s.attachments == nil {
			errs = append(errs, FieldError{Field: a.Field, Message: "attachments are not supported"})
			continue
		}
		if err := s.attachments.Check(class, a.Blob.Name, a.Blob.Size); err != nil {
			errs = append(errs, FieldError{Field: a.Field, Message: err.Error(), Err: err})
		}
	}
	return errs
}

func (s *Store[T]) authorize(ctx context.Context, op Op) error {
	action := Action{
		Collection: s.kind.Collection,
		Op:         op,
		Public:     s.kind.IsPublic(op),
	}
	if !s.authorizer.Allowed(ctx, action) {
		return errors.Wrapf(ErrUnauthorized, "%s %s", op, s.kind.Collection)
	}
	return nil
}

func (s *Store[T]) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.writing = true
	return nil
}

func (s *Store[T]) end() {
	s.mu.Lock()
	s.writing = false
	s.mu.Unlock()
}

// commit reloads the cache after a successful remote write.
// Loads issued before this point can no longer replace the cache.
func (s *Store[T]) commit(ctx context.Context) {
	s.mu.Lock()
	s.barrier = s.issued + 1
	s.mu.Unlock()

	err := s.Load(ctx)
	if err != nil && !errors.Is(err, ErrClosed) {
		// The write is committed, the next change signal will bring the cache up to date.
		s.logger.WithError(err).Warn("Could not reload after write")
	}
}

// changed is the change feed callback.
// Signals received while a refresh is running are coalesced into one follow-up refresh.
func (s *Store[T]) changed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.refresh {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.refresh = true
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		for {
			if err := s.Load(ctx); err != nil && !errors.Is(err, ErrClosed) {
				s.logger.WithError(err).Warn("Could not refresh collection")
			}

			s.mu.Lock()
			if !s.pending || s.closed {
				s.refresh = false
				s.mu.Unlock()
				return
			}
			s.pending = false
			s.mu.Unlock()
		}
	}()
}

func (s *Store[T]) snapshot() []T {
	snapshot := make([]T, len(s.items))
	copy(snapshot, s.items)
	return snapshot
}
