// Package cmstest provides an in-memory backend for testing cms stores.
package cmstest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/pkg/errors"
)

// PublicURL is the base URL of the objects stored by a Backend.
const PublicURL = "https://storage.test/object/public"

type (
	// A Backend is an in-memory implementation of cms.Backend, cms.ObjectStorage and cms.Notifier.
	// It is safe for concurrent use.
	Backend struct {
		mu          sync.Mutex
		now         func() time.Time
		collections map[string][]map[string]any
		objects     map[string][]byte
		listeners   map[string][]chan cms.Notification
		failures    map[string]error
		gates       map[string]chan struct{}
		calls       map[string]int
	}
)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		now:         time.Now,
		collections: map[string][]map[string]any{},
		objects:     map[string][]byte{},
		listeners:   map[string][]chan cms.Notification{},
		failures:    map[string]error{},
		gates:       map[string]chan struct{}{},
		calls:       map[string]int{},
	}
}

// Fail makes every following call of op fail with err until Recover is called.
// op is one of select, insert, update, delete, upload, remove and listen.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

// Recover cancels a failure injected by Fail.
func (b *Backend) Recover(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, op)
}

// Hold blocks the next call of op until the returned function is called.
func (b *Backend) Hold(op string) (release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gate := make(chan struct{})
	b.gates[op] = gate

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gates[op] == gate {
				delete(b.gates, op)
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the number of calls received for op, including failed ones.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Seed inserts records as is, without notifying listeners.
// Missing ids and creation dates are generated.
func (b *Backend) Seed(collection string, records ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range records {
		record := toMap(r)
		if id, _ := record["id"].(string); id == "" {
			record["id"] = uuid.Must(uuid.NewV4()).String()
		}
		if ts, _ := record["created_at"].(string); ts == "" || strings.HasPrefix(ts, "0001-01-01") {
			record["created_at"] = b.now().UTC().Format(time.RFC3339Nano)
		}
		b.collections[collection] = append(b.collections[collection], record)
	}
}

// Len returns the number of records of the collection.
func (b *Backend) Len(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.collections[collection])
}

// Objects returns the stored object keys (bucket/path), sorted.
func (b *Backend) Objects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object returns the content of bucket/path.
func (b *Backend) Object(bucket, path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+path]
	return data, ok
}

// Drop closes every open listener, simulating a connection loss.
func (b *Backend) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for collection, chs := range b.listeners {
		for _, ch := range chs {
			close(ch)
		}
		delete(b.listeners, collection)
	}
}

// Listeners returns the number of open listeners on the collection.
func (b *Backend) Listeners(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[collection])
}

//
// cms.Backend
//

// Select implements cms.Backend.
func (b *Backend) Select(ctx context.Context, collection, orderBy string, ascending bool) ([]json.RawMessage, error) {
	// The records are read when the request is received, a held select returns them as they were.
	b.mu.Lock()
	records := make([]map[string]any, len(b.collections[collection]))
	copy(records, b.collections[collection])
	b.mu.Unlock()

	if err := b.enter(ctx, "select"); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, z := fmt.Sprint(records[i][orderBy]), fmt.Sprint(records[j][orderBy])
		if ascending {
			return a < z
		}
		return a > z
	})

	raws := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// Insert implements cms.Backend.
func (b *Backend) Insert(ctx context.Context, collection string, payload json.RawMessage) (json.RawMessage, error) {
	if err := b.enter(ctx, "insert"); err != nil {
		return nil, err
	}

	var record map[string]any
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, err
	}
	now := b.now().UTC().Format(time.RFC3339Nano)
	record["id"] = uuid.Must(uuid.NewV4()).String()
	record["created_at"] = now
	record["updated_at"] = now

	b.mu.Lock()
	b.collections[collection] = append(b.collections[collection], record)
	b.notify(collection, "INSERT", record["id"].(string))
	b.mu.Unlock()

	return json.Marshal(record)
}

// Update implements cms.Backend.
func (b *Backend) Update(ctx context.Context, collection, id string, payload json.RawMessage) error {
	if err := b.enter(ctx, "update"); err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, r := range b.collections[collection] {
		if r["id"] != id {
			continue
		}

		fields["id"] = id
		fields["created_at"] = r["created_at"]
		fields["updated_at"] = b.now().UTC().Format(time.RFC3339Nano)
		b.collections[collection][i] = fields
		b.notify(collection, "UPDATE", id)
		return nil
	}
	return errors.Errorf("record %s not found", id)
}

// Delete implements cms.Backend.
func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	if err := b.enter(ctx, "delete"); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.collections[collection]
	for i, r := range records {
		if r["id"] != id {
			continue
		}

		b.collections[collection] = append(records[:i:i], records[i+1:]...)
		b.notify(collection, "DELETE", id)
		return nil
	}
	return errors.Errorf("record %s not found", id)
}

//
// cms.ObjectStorage
//

// Upload implements cms.ObjectStorage.
func (b *Backend) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, size int64) error {
	if err := b.enter(ctx, "upload"); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	if int64(buf.Len()) != size {
		return errors.Errorf("size mismatch: %d != %d", buf.Len(), size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := bucket + "/" + path
	if _, ok := b.objects[key]; ok {
		return errors.Errorf("%s already exists", key)
	}
	b.objects[key] = buf.Bytes()
	return nil
}

// PublicURL implements cms.ObjectStorage.
func (b *Backend) PublicURL(bucket, path string) string {
	return PublicURL + "/" + bucket + "/" + path
}

// Remove implements cms.ObjectStorage.
func (b *Backend) Remove(ctx context.Context, bucket string, paths []string) error {
	if err := b.enter(ctx, "remove"); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, path := range paths {
		delete(b.objects, bucket+"/"+path)
	}
	return nil
}

// Locate implements cms.ObjectStorage.
func (b *Backend) Locate(u string) (bucket, path string, err error) {
	if !strings.HasPrefix(u, PublicURL+"/") {
		return "", "", errors.Errorf("foreign URL %s", u)
	}

	key, err := url.PathUnescape(strings.TrimPrefix(u, PublicURL+"/"))
	if err != nil {
		return "", "", err
	}

	bucket, path, ok := strings.Cut(key, "/")
	if !ok || path == "" {
		return "", "", errors.Errorf("malformed URL %s", u)
	}
	return bucket, path, nil
}

//
// cms.Notifier
//

// Listen implements cms.Notifier.
func (b *Backend) Listen(ctx context.Context, collection string) (<-chan cms.Notification, error) {
	if err := b.enter(ctx, "listen"); err != nil {
		return nil, err
	}

	ch := make(chan cms.Notification, 64)

	b.mu.Lock()
	b.listeners[collection] = append(b.listeners[collection], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		defer b.mu.Unlock()
		chs := b.listeners[collection]
		for i, c := range chs {
			if c == ch {
				b.listeners[collection] = append(chs[:i:i], chs[i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch, nil
}

// notify must be called with b.mu held.
func (b *Backend) notify(collection, event, id string) {
	n := cms.Notification{Collection: collection, Type: event, ID: id}
	for _, ch := range b.listeners[collection] {
		select {
		case ch <- n:
		default:
			// Signals are level-triggered, a full buffer already holds one.
		}
	}
}

func (b *Backend) enter(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	gate := b.gates[op]
	delete(b.gates, op)
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[op]
}

func toMap(v any) map[string]any {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	var m map[string]any
	if err = json.Unmarshal(payload, &m); err != nil {
		panic(err)
	}
	return m
}
