// Package realtime broadcasts the changes committed on collections.
package realtime

import (
	"context"
	"time"
)

// Event types.
const (
	TypeInsert = "INSERT"
	TypeUpdate = "UPDATE"
	TypeDelete = "DELETE"
)

type (
	// An Event describes a change committed on a record.
	Event struct {
		Collection      string    `json:"collection"`
		Type            string    `json:"type"`
		ID              string    `json:"id"`
		CommitTimestamp time.Time `json:"commit_timestamp"`
	}

	// A Handler receives the events of a subscription.
	// It must not block.
	Handler func(Event)

	// A Broker dispatches events to the subscribers of a collection.
	Broker interface {
		// Publish sends the event to the subscribers of its collection.
		Publish(ctx context.Context, event Event) error
		// Subscribe registers h for the events of the collection.
		// The returned function cancels the subscription.
		Subscribe(collection string, h Handler) (unsubscribe func(), err error)
		// Close releases the broker resources.
		Close() error
	}
)

// NewEvent returns an event committed now.
func NewEvent(collection, typ, id string) Event {
	return Event{
		Collection:      collection,
		Type:            typ,
		ID:              id,
		CommitTimestamp: time.Now().UTC(),
	}
}
