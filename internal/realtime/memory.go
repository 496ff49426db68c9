package realtime

import (
	"context"
	"sync"
)

type memory struct {
	mu       sync.RWMutex
	seq      int
	handlers map[string]map[int]Handler
}

// NewMemory returns a Broker dispatching the events inside the current process.
func NewMemory() Broker {
	return &memory{
		handlers: map[string]map[int]Handler{},
	}
}

func (b *memory) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Collection]))
	for _, h := range b.handlers[event.Collection] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *memory) Subscribe(collection string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := b.seq
	if b.handlers[collection] == nil {
		b.handlers[collection] = map[int]Handler{}
	}
	b.handlers[collection][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.handlers[collection], id)
			if len(b.handlers[collection]) == 0 {
				delete(b.handlers, collection)
			}
		})
	}, nil
}

func (b *memory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = map[string]map[int]Handler{}
	return nil
}
