// Package storage stores the uploaded objects on the filesystem.
// An object bucket/path is stored in <root>/<bucket>/<path>.
package storage

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidKey is returned when the bucket or the path cannot be stored.
	ErrInvalidKey = errors.New("invalid object key")
	// ErrExists is returned when an object is created over an existing one.
	ErrExists = errors.New("object already exists")
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrTruncated is returned when the content does not match the announced size.
	ErrTruncated = errors.New("object content does not match its size")

	bucketname = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// A FS is a filesystem object store.
type FS struct {
	root string
}

// New returns a FS rooted at the given directory. The directory is created if needed.
func New(root string) (*FS, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "could not resolve storage path")
	}

	if err = os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create storage path")
	}
	return &FS{root: root}, nil
}

// Filename returns the location of bucket/path on the filesystem.
func (fs *FS) Filename(bucket, p string) (string, error) {
	if !bucketname.MatchString(bucket) {
		return "", errors.Wrapf(ErrInvalidKey, "bucket %q", bucket)
	}

	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" || clean != p || strings.ContainsAny(p, `\`+"\x00") {
		return "", errors.Wrapf(ErrInvalidKey, "path %q", p)
	}
	for _, segment := range strings.Split(clean, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", errors.Wrapf(ErrInvalidKey, "path %q", p)
		}
	}

	return filepath.Join(fs.root, bucket, filepath.FromSlash(clean)), nil
}

// Create stores the size bytes read from r at bucket/path.
// It never overwrites an existing object.
func (fs *FS) Create(bucket, p string, r io.Reader, size int64) error {
	filename, err := fs.Filename(bucket, p)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrap(err, "could not create bucket")
	}

	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrExists, "%s/%s", bucket, p)
		}
		return errors.Wrap(err, "could not create object")
	}

	n, err := io.Copy(f, io.LimitReader(r, size+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n != size {
		err = errors.Wrapf(ErrTruncated, "got %d bytes, expected %d", n, size)
	}
	if err != nil {
		os.Remove(filename)
		return errors.Wrap(err, "could not write object")
	}
	return nil
}

// Open returns the content of bucket/path.
func (fs *FS) Open(bucket, p string) (*os.File, error) {
	filename, err := fs.Filename(bucket, p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s/%s", bucket, p)
		}
		return nil, errors.Wrap(err, "could not open object")
	}
	return f, nil
}

// Remove deletes bucket/path. Removing a missing object is not an error.
func (fs *FS) Remove(bucket, p string) error {
	filename, err := fs.Filename(bucket, p)
	if err != nil {
		return err
	}

	if err = os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "could not remove object")
	}
	return nil
}
