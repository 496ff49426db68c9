package cms_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/cms/cmstest"
	"github.com/mdouchement/unionboard/pkg/cms/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForm_Submit(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Events)
	form := cms.NewForm[content.Event](store, cms.NewAttachmentPipeline(backend, nil, quiet()))

	assert.Equal(t, cms.ModeCreate, form.Mode())

	form.Set(content.Event{Title: "General Assembly", Date: "2025-04-01", Time: "18:00"})
	require.NoError(t, form.Attach("ImageURL", cms.BytesBlob("poster.PNG", []byte("png"))))
	assert.Empty(t, form.Validate())

	event, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Regexp(t, `/images/[0-9A-Z]{26}\.png$`, event.ImageURL)

	assert.Equal(t, cms.ModeCreate, form.Mode())
	assert.Equal(t, content.Event{}, form.Draft())
	assert.Len(t, store.Snapshot(), 1)
}

func TestForm_Submit_Invalid(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.LibraryDocuments)
	form := cms.NewForm[content.LibraryDocument](store, cms.NewAttachmentPipeline(backend, nil, quiet()))

	form.Set(content.LibraryDocument{Author: "J. Doe"})

	errs := form.Validate()
	require.Len(t, errs, 2)
	assert.Equal(t, "PDFURL", errs[0].Field)
	assert.Equal(t, "Title", errs[1].Field)

	_, err := form.Submit(context.Background())
	var verr *cms.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, backend.Calls("insert"))
	assert.Equal(t, "J. Doe", form.Draft().Author)
}

func TestForm_Attach(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.CommunityMembers)
	form := cms.NewForm[content.CommunityMember](store, cms.NewAttachmentPipeline(backend, nil, quiet()))

	err := form.Attach("Name", cms.BytesBlob("logo.png", []byte("png")))
	var verr *cms.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Name", verr.Fields[0].Field)

	err = form.Attach("LogoURL", cms.Blob{Name: "logo.png", Size: 8 * cms.MB})
	var uerr *cms.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, cms.ClassLogo, uerr.Class)
	assert.Equal(t, "logo.png is too large (8388608 bytes, maximum is 7340032 bytes)", uerr.Error())
}

func TestForm_Submit_FailurePreservesDraft(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.LibraryDocuments)
	form := cms.NewForm[content.LibraryDocument](store, cms.NewAttachmentPipeline(backend, nil, quiet()))

	form.Set(content.LibraryDocument{Title: "Civil Law 101"})
	require.NoError(t, form.Attach("PDFURL", cms.BytesBlob("syllabus.pdf", []byte("%PDF-1.7"))))

	backend.Fail("insert", errors.New("connection reset by peer"))
	_, err := form.Submit(context.Background())
	var rerr *cms.RemoteError
	require.ErrorAs(t, err, &rerr)

	assert.Equal(t, "Civil Law 101", form.Draft().Title)
	assert.Empty(t, form.Draft().PDFURL)
	assert.Empty(t, form.Validate())

	backend.Recover("insert")
	doc, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, doc.PDFURL)
	assert.Len(t, backend.Objects(), 1)
}

func TestForm_Edit(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)
	ctx := context.Background()

	notice, err := store.Create(ctx, content.Notice{Title: "Library Hours", Content: "Open until 20:00.", Date: "2025-03-01"})
	require.NoError(t, err)

	form := cms.NewForm[content.Notice](store, nil)
	form.Edit(notice)
	assert.Equal(t, cms.ModeEdit, form.Mode())

	draft := form.Draft()
	draft.Content = "Open until 22:00."
	draft.IsUrgent = true
	form.Set(draft)

	_, err = form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, cms.ModeCreate, form.Mode())

	edited, err := store.Get(notice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Open until 22:00.", edited.Content)
	assert.True(t, edited.IsUrgent)
	assert.Len(t, store.Snapshot(), 1)
}

func TestForm_Reset(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.Notices)
	form := cms.NewForm[content.Notice](store, nil)

	form.Edit(content.Notice{Base: cms.Base{ID: "n1"}, Title: "Library Hours"})
	form.Reset()

	assert.Equal(t, cms.ModeCreate, form.Mode())
	assert.Equal(t, content.Notice{}, form.Draft())
}

func TestForm_Edit_ReturnsAttachmentURLs(t *testing.T) {
	backend := cmstest.New()
	store := newStore(t, backend, content.BlogPosts)
	ctx := context.Background()

	post, err := store.Create(ctx, content.BlogPost{Title: "Strike", Content: "..."})
	require.NoError(t, err)

	form := cms.NewForm[content.BlogPost](store, cms.NewAttachmentPipeline(backend, nil, quiet()))
	form.Edit(post)
	require.NoError(t, form.Attach("ImageURL", cms.BytesBlob("cover.png", []byte("png"))))

	result, err := form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, post.ID, result.ID)
	assert.Regexp(t, `/images/[0-9A-Z]{26}\.png$`, result.ImageURL)

	edited, err := store.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, edited.ImageURL, result.ImageURL)
}
