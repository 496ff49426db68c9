package cms_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/cms/cmstest"
	"github.com/mdouchement/unionboard/pkg/cms/content"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = cms.AuthorizerFunc(func(context.Context, cms.Action) bool { return true })

func TestStore_Open(t *testing.T) {
	backend := cmstest.New()
	backend.Seed("notices",
		content.Notice{Title: "Library Hours", Content: "...", Date: "2025-02-01"},
		content.Notice{Title: "Exam Reschedule", Content: "...", Date: "2025-03-01"},
	)

	store := cms.NewStore(content.Notices, remote[content.Notice](backend, content.Notices), cms.WithLogger(quiet()))
	defer store.Close()

	assert.Equal(t, cms.StateIdle, store.State())
	require.NoError(t, store.Open(context.Background()))
	assert.Equal(t, cms.StateReady, store.State())

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "Exam Reschedule", snapshot[0].Title) // Date descending
	assert.Equal(t, "Library Hours", snapshot[1].Title)
}

func TestStore_Load_Failure(t *testing.T) {
	backend := cmstest.New()
	backend.Seed("notices", content.Notice{Title: "Library Hours", Content: "...", Date: "2025-02-01"})
	store := newStore(t, backend, content.Notices)

	backend.Fail("select", errors.New("relation \"notices\" does not exist"))

	err := store.Load(context.Background())
	var rerr *cms.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "relation \"notices\" does not exist", err.Error())
	assert.Equal(t, err, store.Err())

	assert.Equal(t, cms.StateReady, store.State())
	assert.Len(t, store.Snapshot(), 1)

	backend.Recover("select")
	require.NoError(t, store.Load(context.Background()))
	assert.NoError(t, store.Err())
}

func TestStore_Create(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)

	calls := 0
	unlisten := store.Listen(func(snapshot []content.Notice) {
		calls++
	})
	defer unlisten()

	created, err := store.Create(context.Background(), content.Notice{
		Base:     cms.Base{ID: "ignored"},
		Title:    "Exam Reschedule",
		Content:  "The exam is moved to Friday.",
		Date:     "2025-03-01",
		IsUrgent: true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.NotEqual(t, "ignored", created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, "Exam Reschedule", created.Title)

	assert.Equal(t, 1, calls)
	item, err := store.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, item.Title)
	assert.True(t, item.IsUrgent)
}

func TestStore_CacheFidelity(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.CommunityMembers)
	ctx := context.Background()

	charlie, err := store.Create(ctx, content.CommunityMember{Name: "Charlie"})
	require.NoError(t, err)
	_, err = store.Create(ctx, content.CommunityMember{Name: "Alice"})
	require.NoError(t, err)
	bob, err := store.Create(ctx, content.CommunityMember{Name: "Bob"})
	require.NoError(t, err)

	_, err = store.Edit(ctx, bob.ID, content.CommunityMember{Name: "Bobby", Role: "Treasurer"})
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, charlie.ID))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, backend.Len("community_members"), len(snapshot))
	assert.Equal(t, "Alice", snapshot[0].Name)
	assert.Equal(t, "Bobby", snapshot[1].Name)
	assert.Equal(t, "Treasurer", snapshot[1].Role)
	assert.Equal(t, bob.ID, snapshot[1].ID)
	assert.Equal(t, bob.CreatedAt, snapshot[1].CreatedAt)

	_, err = store.Get(charlie.ID)
	assert.True(t, cms.IsNotFound(err))
}

func TestStore_Unauthorized(t *testing.T) {
	backend := cmstest.New()
	backend.Seed("notices", content.Notice{Base: cms.Base{ID: "n1"}, Title: "Library Hours", Content: "...", Date: "2025-02-01"})

	store := cms.NewStore(content.Notices, remote[content.Notice](backend, content.Notices), cms.WithLogger(quiet()))
	defer store.Close()
	require.NoError(t, store.Open(context.Background()))

	_, err := store.Create(context.Background(), content.Notice{Title: "Hacked", Content: "...", Date: "2025-01-01"})
	assert.True(t, cms.IsUnauthorized(err))

	_, err = store.Edit(context.Background(), "n1", content.Notice{Title: "Hacked", Content: "...", Date: "2025-01-01"})
	assert.True(t, cms.IsUnauthorized(err))

	err = store.Remove(context.Background(), "n1")
	assert.True(t, cms.IsUnauthorized(err))

	assert.Zero(t, backend.Calls("insert"))
	assert.Zero(t, backend.Calls("update"))
	assert.Zero(t, backend.Calls("delete"))
	assert.Len(t, store.Snapshot(), 1)
}

func TestStore_PublicCreate(t *testing.T) {
	backend := cmstest.New()
	store := cms.NewStore(content.Suggestions, remote[content.Suggestion](backend, content.Suggestions), cms.WithLogger(quiet()))
	defer store.Close()

	_, err := store.Create(context.Background(), content.Suggestion{Subject: "Coffee", Message: "More coffee in the library."})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Len("suggestions"))

	s := store.Snapshot()[0]
	err = store.Remove(context.Background(), s.ID)
	assert.True(t, cms.IsUnauthorized(err))
}

func TestStore_Validation(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)

	_, err := store.Create(context.Background(), content.Notice{Title: "  ", Date: "2025-03-01"})

	var verr *cms.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := []string{}
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"Title", "Content"}, fields)
	assert.Zero(t, backend.Calls("insert"))
}

func TestStore_Create_WithAttachment(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.LibraryDocuments)

	doc, err := store.Create(context.Background(), content.LibraryDocument{Title: "Civil Law 101"},
		cms.Attachment{Field: "PDFURL", Blob: cms.BytesBlob("Syllabus.PDF", []byte("%PDF-1.7"))},
	)
	require.NoError(t, err)

	assert.Regexp(t, `^https://storage\.test/object/public/documents/[0-9A-Z]{26}\.pdf$`, doc.PDFURL)
	assert.Len(t, backend.Objects(), 1)
	assert.Equal(t, doc.PDFURL, store.Snapshot()[0].PDFURL)
}

func TestStore_Create_OversizedPDF(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.LibraryDocuments)

	opened := false
	blob := cms.Blob{
		Name: "thesis.pdf",
		Size: 25 * cms.MB,
		Open: func() (io.ReadCloser, error) {
			opened = true
			return nil, errors.New("must not be read")
		},
	}

	_, err := store.Create(context.Background(), content.LibraryDocument{Title: "Thesis"},
		cms.Attachment{Field: "PDFURL", Blob: blob},
	)

	var uerr *cms.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 20*cms.MB, uerr.Limit)
	assert.False(t, opened)
	assert.Zero(t, backend.Calls("upload"))
	assert.Zero(t, backend.Calls("insert"))
	assert.Zero(t, backend.Len("library_documents"))
	assert.Empty(t, store.Snapshot())
}

func TestStore_Create_UploadFailure(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.LibraryDocuments)

	backend.Fail("upload", errors.New("bucket not found"))

	_, err := store.Create(context.Background(), content.LibraryDocument{Title: "Civil Law 101"},
		cms.Attachment{Field: "PDFURL", Blob: cms.BytesBlob("syllabus.pdf", []byte("%PDF-1.7"))},
	)

	var uerr *cms.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Contains(t, err.Error(), "bucket not found")
	assert.Zero(t, backend.Calls("insert"))
	assert.Zero(t, backend.Len("library_documents"))
}

func TestStore_Create_RecordFailureDiscardsUploads(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.LibraryDocuments)

	backend.Fail("insert", errors.New("permission denied for table library_documents"))

	_, err := store.Create(context.Background(), content.LibraryDocument{Title: "Civil Law 101"},
		cms.Attachment{Field: "PDFURL", Blob: cms.BytesBlob("syllabus.pdf", []byte("%PDF-1.7"))},
	)

	var rerr *cms.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "permission denied for table library_documents", err.Error())
	assert.Equal(t, 1, backend.Calls("upload"))
	assert.Empty(t, backend.Objects())
}

func TestStore_Edit_ReplacesAttachment(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.BlogPosts)
	ctx := context.Background()

	post, err := store.Create(ctx, content.BlogPost{Title: "Strike", Content: "..."},
		cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.png", []byte("v1"))},
	)
	require.NoError(t, err)

	post.Title = "Strike!"
	persisted, err := store.Edit(ctx, post.ID, post,
		cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.jpg", []byte("v2"))},
	)
	require.NoError(t, err)
	assert.Equal(t, "Strike!", persisted.Title)

	edited, err := store.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Strike!", edited.Title)
	assert.NotEqual(t, post.ImageURL, edited.ImageURL)
	assert.Equal(t, edited.ImageURL, persisted.ImageURL)

	objects := backend.Objects()
	require.Len(t, objects, 1)
	assert.Regexp(t, `^images/[0-9A-Z]{26}\.jpg$`, objects[0])
}

func TestStore_Edit_KeepsAttachment(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.BlogPosts)
	ctx := context.Background()

	post, err := store.Create(ctx, content.BlogPost{Title: "Strike", Content: "..."},
		cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.png", []byte("v1"))},
	)
	require.NoError(t, err)

	post.Content = "Updated"
	_, err = store.Edit(ctx, post.ID, post)
	require.NoError(t, err)
	assert.Len(t, backend.Objects(), 1)
}

func TestStore_Remove(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.JudicialDecisions)
	ctx := context.Background()

	decision, err := store.Create(ctx, content.JudicialDecision{Title: "Ruling 42", Court: "Supreme Court"},
		cms.Attachment{Field: "PDFURL", Blob: cms.BytesBlob("ruling.pdf", []byte("%PDF-1.7"))},
	)
	require.NoError(t, err)
	require.Len(t, backend.Objects(), 1)

	require.NoError(t, store.Remove(ctx, decision.ID))
	assert.Empty(t, store.Snapshot())
	assert.Empty(t, backend.Objects())
	assert.Zero(t, backend.Len("judicial_decisions"))
}

func TestStore_Remove_BlobFailureIsBestEffort(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.JudicialDecisions)
	ctx := context.Background()

	decision, err := store.Create(ctx, content.JudicialDecision{Title: "Ruling 42"},
		cms.Attachment{Field: "PDFURL", Blob: cms.BytesBlob("ruling.pdf", []byte("%PDF-1.7"))},
	)
	require.NoError(t, err)

	backend.Fail("remove", errors.New("storage unavailable"))
	require.NoError(t, store.Remove(ctx, decision.ID))
	assert.Empty(t, store.Snapshot())
	assert.Len(t, backend.Objects(), 1)
}

func TestStore_Remove_NotFound(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)

	err := store.Remove(context.Background(), "missing")
	assert.True(t, cms.IsNotFound(err))
	assert.Zero(t, backend.Calls("delete"))
}

func TestStore_StaleLoadIsDiscarded(t *testing.T) {
	backend := cmstest.New()
	backend.Seed("notices", content.Notice{Title: "Library Hours", Content: "...", Date: "2025-02-01"})
	store := newStore(t, backend, content.Notices)
	ctx := context.Background()

	release := backend.Hold("select")
	defer release()

	var wg sync.WaitGroup
	wg.Add(1)
	var stale error
	go func() {
		defer wg.Done()
		stale = store.Load(ctx)
	}()
	require.Eventually(t, func() bool {
		return backend.Calls("select") == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, cms.StateRefreshing, store.State())

	_, err := store.Create(ctx, content.Notice{Title: "Exam Reschedule", Content: "...", Date: "2025-03-01"})
	require.NoError(t, err)
	require.Len(t, store.Snapshot(), 2)

	release()
	wg.Wait()
	assert.NoError(t, stale)
	assert.Len(t, store.Snapshot(), 2)
	assert.Equal(t, cms.StateReady, store.State())
}

func TestStore_WritesAreSerialized(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)
	ctx := context.Background()

	release := backend.Hold("insert")

	errs := make(chan error, 2)
	go func() {
		_, err := store.Create(ctx, content.Notice{Title: "First", Content: "...", Date: "2025-03-01"})
		errs <- err
	}()
	require.Eventually(t, func() bool {
		return backend.Calls("insert") == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, cms.StateMutating, store.State())

	go func() {
		_, err := store.Create(ctx, content.Notice{Title: "Second", Content: "...", Date: "2025-03-02"})
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, backend.Calls("insert"))

	release()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, 2, backend.Calls("insert"))
	assert.Len(t, store.Snapshot(), 2)
}

func TestStore_Close(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)

	store.Close()
	store.Close()

	assert.Equal(t, cms.StateClosed, store.State())
	assert.ErrorIs(t, store.Load(context.Background()), cms.ErrClosed)
	assert.ErrorIs(t, store.Open(context.Background()), cms.ErrClosed)
}

func TestStore_Close_DuringLoad(t *testing.T) {
	backend := cmstest.New()
	store := cms.NewStore(content.Notices, remote[content.Notice](backend, content.Notices), cms.WithLogger(quiet()))

	called := false
	store.Listen(func([]content.Notice) { called = true })

	release := backend.Hold("select")
	errs := make(chan error, 1)
	go func() {
		errs <- store.Load(context.Background())
	}()
	require.Eventually(t, func() bool {
		return backend.Calls("select") == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, cms.StateLoading, store.State())

	store.Close()
	release()

	assert.ErrorIs(t, <-errs, cms.ErrClosed)
	assert.False(t, called)
	assert.Equal(t, cms.StateClosed, store.State())
}

func TestStore_Listen_NewestLast(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)
	ctx := context.Background()

	var (
		mu        sync.Mutex
		delivered [][]content.Notice
		first     sync.Once
		entered   = make(chan struct{})
		unblock   = make(chan struct{})
	)
	store.Listen(func(snapshot []content.Notice) {
		first.Do(func() {
			close(entered)
			<-unblock
		})

		mu.Lock()
		delivered = append(delivered, snapshot)
		mu.Unlock()
	})

	errs := make(chan error, 1)
	go func() {
		errs <- store.Load(ctx)
	}()
	<-entered

	// This load must not wait for the listener busy with the previous cache.
	backend.Seed("notices", content.Notice{Title: "Exam Reschedule", Content: "...", Date: "2025-03-01"})
	require.NoError(t, store.Load(ctx))
	assert.Len(t, store.Snapshot(), 1)

	close(unblock)
	require.NoError(t, <-errs)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, delivered[0])
	assert.Len(t, delivered[1], 1)
}

func TestStore_QueuedEditsReplaceAttachment(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.BlogPosts)
	ctx := context.Background()

	post, err := store.Create(ctx, content.BlogPost{Title: "Strike", Content: "..."},
		cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.png", []byte("v1"))},
	)
	require.NoError(t, err)

	release := backend.Hold("update")
	errs := make(chan error, 2)
	go func() {
		_, err := store.Edit(ctx, post.ID, post, cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.jpg", []byte("v2"))})
		errs <- err
	}()
	require.Eventually(t, func() bool {
		return backend.Calls("update") == 1
	}, time.Second, time.Millisecond)

	go func() {
		_, err := store.Edit(ctx, post.ID, post, cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.gif", []byte("v3"))})
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)

	release()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	objects := backend.Objects()
	require.Len(t, objects, 1)
	assert.Regexp(t, `\.gif$`, objects[0])

	edited, err := store.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, cmstest.PublicURL+"/"+objects[0], edited.ImageURL)
}

func TestStore_RemoveQueuedBehindEdit(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.BlogPosts)
	ctx := context.Background()

	post, err := store.Create(ctx, content.BlogPost{Title: "Strike", Content: "..."},
		cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.png", []byte("v1"))},
	)
	require.NoError(t, err)

	release := backend.Hold("update")
	errs := make(chan error, 2)
	go func() {
		_, err := store.Edit(ctx, post.ID, post, cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.jpg", []byte("v2"))})
		errs <- err
	}()
	require.Eventually(t, func() bool {
		return backend.Calls("update") == 1
	}, time.Second, time.Millisecond)

	go func() {
		errs <- store.Remove(ctx, post.ID)
	}()
	time.Sleep(20 * time.Millisecond)

	release()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Empty(t, backend.Objects())
	assert.Zero(t, backend.Len("blog_posts"))
}

func TestStore_Create_UnreadableResponse(t *testing.T) {
	backend := cmstest.New()
	store := cms.NewStore(content.BlogPosts, remote[content.BlogPost](garbled{backend}, content.BlogPosts),
		cms.WithAuthorizer(admin),
		cms.WithAttachments(cms.NewAttachmentPipeline(backend, nil, quiet())),
		cms.WithLogger(quiet()),
	)
	defer store.Close()
	require.NoError(t, store.Open(context.Background()))

	created, err := store.Create(context.Background(), content.BlogPost{Title: "Strike", Content: "..."},
		cms.Attachment{Field: "ImageURL", Blob: cms.BytesBlob("cover.png", []byte("v1"))},
	)
	require.NoError(t, err)
	assert.Equal(t, "Strike", created.Title)

	// The record references a blob that is still stored.
	objects := backend.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, cmstest.PublicURL+"/"+objects[0], created.ImageURL)

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, created.ImageURL, snapshot[0].ImageURL)
}

//
// Helpers
//

// garbled commits inserts but answers with an unreadable record.
type garbled struct {
	*cmstest.Backend
}

func (g garbled) Insert(ctx context.Context, collection string, payload json.RawMessage) (json.RawMessage, error) {
	if _, err := g.Backend.Insert(ctx, collection, payload); err != nil {
		return nil, err
	}
	return json.RawMessage(`"oops"`), nil
}

func newStore[T cms.Entity](t *testing.T, backend *cmstest.Backend, kind cms.Kind[T], opts ...cms.StoreOption) *cms.Store[T] {
	t.Helper()

	opts = append([]cms.StoreOption{
		cms.WithAuthorizer(admin),
		cms.WithAttachments(cms.NewAttachmentPipeline(backend, nil, quiet())),
		cms.WithLogger(quiet()),
	}, opts...)

	store := cms.NewStore(kind, remote[T](backend, kind), opts...)
	t.Cleanup(store.Close)

	require.NoError(t, store.Open(context.Background()))
	return store
}

func remote[T cms.Entity](backend cms.Backend, kind cms.Kind[T]) cms.Collection[T] {
	return cms.NewRemoteCollection[T](backend, kind.Collection)
}

func quiet() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
