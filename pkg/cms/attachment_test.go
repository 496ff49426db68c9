package cms_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/cms/cmstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentPipeline_Upload(t *testing.T) {
	backend := cmstest.New()
	pipeline := cms.NewAttachmentPipeline(backend, nil, quiet())

	u1, err := pipeline.Upload(context.Background(), cms.ClassImage, cms.BytesBlob("Photo.JPG", []byte("jpeg")))
	require.NoError(t, err)
	u2, err := pipeline.Upload(context.Background(), cms.ClassImage, cms.BytesBlob("Photo.JPG", []byte("jpeg")))
	require.NoError(t, err)

	assert.NotEqual(t, u1, u2)
	assert.True(t, strings.HasPrefix(u1, cmstest.PublicURL+"/images/"))
	assert.True(t, strings.HasSuffix(u1, ".jpg"))

	bucket, path, err := backend.Locate(u1)
	require.NoError(t, err)
	data, ok := backend.Object(bucket, path)
	require.True(t, ok)
	assert.Equal(t, "jpeg", string(data))

	require.NoError(t, pipeline.Remove(context.Background(), u1))
	assert.Len(t, backend.Objects(), 1)
}

func TestAttachmentPipeline_Check(t *testing.T) {
	pipeline := cms.NewAttachmentPipeline(cmstest.New(), map[cms.AttachmentClass]cms.AttachmentRule{
		cms.ClassImage: {Bucket: "images", MaxSize: 10},
	}, quiet())

	assert.NoError(t, pipeline.Check(cms.ClassImage, "a.png", 10))

	var uerr *cms.UploadError
	assert.ErrorAs(t, pipeline.Check(cms.ClassImage, "a.png", 11), &uerr)
	assert.ErrorAs(t, pipeline.Check(cms.ClassPDF, "a.pdf", 1), &uerr)
}

func TestAttachmentPipeline_Remove_ForeignURL(t *testing.T) {
	pipeline := cms.NewAttachmentPipeline(cmstest.New(), nil, quiet())

	err := pipeline.Remove(context.Background(), "https://elsewhere.test/a.png")
	assert.Error(t, err)
}

func TestFileBlob(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "minutes.pdf")
	require.NoError(t, os.WriteFile(filename, []byte("%PDF-1.7"), 0600))

	blob, err := cms.FileBlob(filename)
	require.NoError(t, err)
	assert.Equal(t, "minutes.pdf", blob.Name)
	assert.EqualValues(t, 8, blob.Size)

	backend := cmstest.New()
	pipeline := cms.NewAttachmentPipeline(backend, nil, quiet())
	_, err = pipeline.Upload(context.Background(), cms.ClassPDF, blob)
	require.NoError(t, err)
	assert.Len(t, backend.Objects(), 1)

	_, err = cms.FileBlob(filepath.Dir(filename))
	assert.Error(t, err)
}
