package model

// An Object describes a blob stored in a bucket.
type Object struct {
	Base `msgpack:",inline" storm:"inline"`

	Key         string `json:"key"          msgpack:"key"          storm:"unique"` // bucket/path
	Bucket      string `json:"bucket"       msgpack:"bucket"       storm:"index"`
	Path        string `json:"path"         msgpack:"path"`
	ContentType string `json:"content_type" msgpack:"content_type"`
	Size        int64  `json:"size"         msgpack:"size"`
}

// NewObject returns the description of bucket/path.
func NewObject(bucket, path string) *Object {
	return &Object{
		Key:    ObjectKey(bucket, path),
		Bucket: bucket,
		Path:   path,
	}
}

// ObjectKey returns the unique key of bucket/path.
func ObjectKey(bucket, path string) string {
	return bucket + "/" + path
}
