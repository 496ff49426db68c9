package libub

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const publicObjects = "/storage/v1/object/public/"

func (c *client) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, size int64) error {
	//
	// Build request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(nil, "storage", "v1", "object", bucket, path), body)
	if err != nil {
		return errors.Wrap(err, "could not build request")
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if bearer := c.BearerToken(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	//
	// Perform request
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "could not perform request")
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return parseAPIError(res.Body, res.StatusCode)
	}
	return nil
}

func (c *client) PublicURL(bucket, path string) string {
	return c.url(nil, "storage", "v1", "object", "public", bucket, path)
}

func (c *client) Remove(ctx context.Context, bucket string, paths []string) error {
	body, err := json.Marshal(p{"prefixes": paths})
	if err != nil {
		return errors.Wrap(err, "could not serialize paths")
	}

	res, err := c.do(ctx, http.MethodDelete, c.url(nil, "storage", "v1", "object", bucket), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (c *client) Locate(rawurl string) (bucket, path string, err error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", "", errors.Wrap(err, "could not parse url")
	}
	if u.Host != c.endpoint.Host {
		return "", "", errors.Errorf("%s is not hosted by %s", rawurl, c.endpoint.Host)
	}

	prefix := strings.TrimSuffix(c.endpoint.Path, "/") + publicObjects
	key, ok := strings.CutPrefix(u.Path, prefix)
	if !ok {
		return "", "", errors.Errorf("%s is not a public object url", rawurl)
	}

	bucket, path, ok = strings.Cut(key, "/")
	if !ok || bucket == "" || path == "" {
		return "", "", errors.Errorf("%s is not a public object url", rawurl)
	}
	return bucket, path, nil
}
