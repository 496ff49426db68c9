package cms

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

type (
	// A Notification tells that a collection changed.
	// It is a signal, consumers must re-fetch the collection.
	Notification struct {
		Collection string `json:"collection"`
		Type       string `json:"type"`
		ID         string `json:"id,omitempty"`
	}

	// A Notifier opens push channels on collections.
	Notifier interface {
		// Listen returns a channel receiving the notifications of the collection.
		// The channel is closed when the underlying connection is lost or ctx is done.
		Listen(ctx context.Context, collection string) (<-chan Notification, error)
	}

	// A Subscriber delivers change signals of collections.
	Subscriber interface {
		Subscribe(collection string, onChange func()) *Subscription
	}

	// A ChangeFeed delivers "collection changed" signals to subscribers.
	// Subscribers of the same collection share one underlying channel.
	ChangeFeed struct {
		notifier   Notifier
		logger     logrus.FieldLogger
		debounce   time.Duration
		newBackOff func() backoff.BackOff

		mu       sync.Mutex
		seq      uint64
		channels map[string]*channel
	}

	// A FeedOption configures a ChangeFeed.
	FeedOption func(*ChangeFeed)

	// A Subscription is an open registration on a ChangeFeed.
	Subscription struct {
		feed       *ChangeFeed
		collection string
		id         uint64
		once       sync.Once
	}

	channel struct {
		collection string
		cancel     context.CancelFunc
		subs       map[uint64]func()
		signal     func()
	}
)

// WithDebounce coalesces the signals of a burst: only the last one is delivered, after d of quiet.
func WithDebounce(d time.Duration) FeedOption {
	return func(f *ChangeFeed) {
		f.debounce = d
	}
}

// WithFeedLogger sets the logger of the feed.
func WithFeedLogger(logger logrus.FieldLogger) FeedOption {
	return func(f *ChangeFeed) {
		f.logger = logger
	}
}

// WithBackOff sets the reconnection policy of the underlying channels.
func WithBackOff(fn func() backoff.BackOff) FeedOption {
	return func(f *ChangeFeed) {
		f.newBackOff = fn
	}
}

// NewChangeFeed returns a ChangeFeed listening through notifier.
func NewChangeFeed(notifier Notifier, opts ...FeedOption) *ChangeFeed {
	f := &ChangeFeed{
		notifier: notifier,
		logger:   logrus.StandardLogger(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0 // Retry forever, until the subscription is closed.
			return b
		},
		channels: map[string]*channel{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe registers onChange for the given collection.
// onChange is invoked at least once after every committed change, from another goroutine.
// It is also invoked each time the underlying channel opens, for the changes committed before.
func (f *ChangeFeed) Subscribe(collection string, onChange func()) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	s := &Subscription{
		feed:       f,
		collection: collection,
		id:         f.seq,
	}

	ch, ok := f.channels[collection]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		ch = &channel{
			collection: collection,
			cancel:     cancel,
			subs:       map[uint64]func(){},
		}
		ch.signal = func() { f.fanout(ch) }
		if f.debounce > 0 {
			debounced := debounce.New(f.debounce)
			ch.signal = func() { debounced(func() { f.fanout(ch) }) }
		}

		f.channels[collection] = ch
		go f.run(ctx, ch)
	}
	ch.subs[s.id] = onChange

	return s
}

// Close releases the subscription. The underlying channel is closed with its last subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		f := s.feed
		f.mu.Lock()
		defer f.mu.Unlock()

		ch, ok := f.channels[s.collection]
		if !ok {
			return
		}
		delete(ch.subs, s.id)

		if len(ch.subs) == 0 {
			ch.cancel()
			delete(f.channels, s.collection)
		}
	})
}

func (f *ChangeFeed) fanout(ch *channel) {
	f.mu.Lock()
	callbacks := make([]func(), 0, len(ch.subs))
	for _, fn := range ch.subs {
		callbacks = append(callbacks, fn)
	}
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (f *ChangeFeed) run(ctx context.Context, ch *channel) {
	logger := f.logger.WithField("collection", ch.collection)
	b := backoff.WithContext(f.newBackOff(), ctx)

	for {
		notifications, err := f.notifier.Listen(ctx, ch.collection)
		if err == nil {
			b.Reset()
			// Changes committed before the channel was open, or while it was down, were not notified.
			ch.signal()

			for range notifications {
				ch.signal()
			}
		}

		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			logger.WithError(err).Error("Change feed stopped")
			return
		}
		if err != nil {
			logger.WithError(err).Warnf("Could not listen to changes, retrying in %s", wait)
		} else {
			logger.Warnf("Change feed disconnected, reconnecting in %s", wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
