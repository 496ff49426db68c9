package cms

import (
	"bytes"
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// An AttachmentClass selects the bucket and ceiling of an upload.
type AttachmentClass string

// Attachment classes.
const (
	ClassImage AttachmentClass = "image"
	ClassPDF   AttachmentClass = "pdf"
	ClassLogo  AttachmentClass = "logo"
)

// Size units.
const (
	KB int64 = 1 << 10
	MB int64 = 1 << 20
)

type (
	// An ObjectStorage stores blobs in named buckets.
	ObjectStorage interface {
		// Upload stores the blob at bucket/path. It must fail if the path already exists.
		Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, size int64) error
		// PublicURL returns the URL of bucket/path. It does not perform any request.
		PublicURL(bucket, path string) string
		// Remove deletes the given paths of the bucket.
		Remove(ctx context.Context, bucket string, paths []string) error
		// Locate returns the bucket and path of a URL built by PublicURL.
		Locate(url string) (bucket, path string, err error)
	}

	// A Blob is a file pending upload.
	// Open may be called several times, once per upload attempt.
	Blob struct {
		// Name is the original filename, its extension is kept.
		Name        string
		ContentType string
		Size        int64
		Open        func() (io.ReadCloser, error)
	}

	// An AttachmentRule configures one attachment class.
	AttachmentRule struct {
		Bucket  string
		MaxSize int64
	}

	// An Attachment binds a blob to an attachment field of a draft.
	Attachment struct {
		Field string
		Blob  Blob
	}

	// An AttachmentPipeline uploads blobs to the object storage.
	AttachmentPipeline struct {
		storage ObjectStorage
		rules   map[AttachmentClass]AttachmentRule
		logger  logrus.FieldLogger
	}
)

// DefaultAttachmentRules are the ceilings used by the website.
var DefaultAttachmentRules = map[AttachmentClass]AttachmentRule{
	ClassImage: {Bucket: "images", MaxSize: 7 * MB},
	ClassPDF:   {Bucket: "documents", MaxSize: 20 * MB},
	ClassLogo:  {Bucket: "logos", MaxSize: 7 * MB},
}

// NewAttachmentPipeline returns a pipeline uploading to storage according to rules.
// A nil rules map means DefaultAttachmentRules.
func NewAttachmentPipeline(storage ObjectStorage, rules map[AttachmentClass]AttachmentRule, logger logrus.FieldLogger) *AttachmentPipeline {
	if rules == nil {
		rules = DefaultAttachmentRules
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &AttachmentPipeline{
		storage: storage,
		rules:   rules,
		logger:  logger,
	}
}

// BytesBlob returns a Blob holding data.
func BytesBlob(name string, data []byte) Blob {
	return Blob{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FileBlob returns a Blob reading the file at path.
func FileBlob(path string) (Blob, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Blob{}, errors.Wrapf(err, "could not stat %s", path)
	}
	if fi.IsDir() {
		return Blob{}, errors.Errorf("%s is a directory", path)
	}

	return Blob{
		Name: filepath.Base(path),
		Size: fi.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Check returns an *UploadError if a blob of the given size cannot be uploaded as class.
func (p *AttachmentPipeline) Check(class AttachmentClass, name string, size int64) error {
	rule, ok := p.rules[class]
	if !ok {
		return &UploadError{Class: class, Name: name, Size: size, Err: errors.Errorf("unknown attachment class %q", class)}
	}
	if size < 0 {
		return &UploadError{Class: class, Name: name, Size: size, Err: errors.New("unknown blob size")}
	}
	if rule.MaxSize > 0 && size > rule.MaxSize {
		return &UploadError{Class: class, Name: name, Size: size, Limit: rule.MaxSize}
	}
	return nil
}

// Upload stores the blob under a unique name and returns its public URL.
// The ceiling of the class is enforced before any request is sent.
func (p *AttachmentPipeline) Upload(ctx context.Context, class AttachmentClass, blob Blob) (string, error) {
	if err := p.Check(class, blob.Name, blob.Size); err != nil {
		return "", err
	}
	rule := p.rules[class]

	ext := strings.ToLower(filepath.Ext(blob.Name))
	path := ulid.Make().String() + ext

	contentType := blob.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if blob.Open == nil {
		return "", &UploadError{Class: class, Name: blob.Name, Size: blob.Size, Err: errors.New("no content")}
	}
	body, err := blob.Open()
	if err != nil {
		return "", &UploadError{Class: class, Name: blob.Name, Size: blob.Size, Err: err}
	}
	defer body.Close()

	// Never read more than announced.
	err = p.storage.Upload(ctx, rule.Bucket, path, contentType, io.LimitReader(body, blob.Size), blob.Size)
	if err != nil {
		return "", &UploadError{Class: class, Name: blob.Name, Size: blob.Size, Err: err}
	}

	return p.storage.PublicURL(rule.Bucket, path), nil
}

// Remove deletes the blob referenced by url.
func (p *AttachmentPipeline) Remove(ctx context.Context, url string) error {
	bucket, path, err := p.storage.Locate(url)
	if err != nil {
		return errors.Wrapf(err, "could not locate %s", url)
	}

	err = p.storage.Remove(ctx, bucket, []string{path})
	return errors.Wrapf(err, "could not remove %s", url)
}

// Discard removes the blobs referenced by urls, logging failures.
func (p *AttachmentPipeline) Discard(ctx context.Context, urls ...string) {
	for _, u := range urls {
		if err := p.Remove(ctx, u); err != nil {
			p.logger.WithError(err).WithField("url", u).Warn("Could not remove attachment")
		}
	}
}
