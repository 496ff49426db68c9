package libub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/pkg/errors"
)

type (
	// A Client defines all interactions that can be performed on a unionboard server.
	// It is safe for concurrent use.
	Client interface {
		cms.Backend
		cms.ObjectStorage
		cms.Notifier

		// Version returns the version of the server.
		Version(ctx context.Context) (string, error)
		// Login authenticates the Client as an administrator.
		Login(ctx context.Context, email, password string) error
		// BearerToken returns the authentication used for requests sent to the server.
		BearerToken() string
		// SetBearerToken sets the authentication used for requests sent to the server.
		SetBearerToken(token string)
	}

	p      map[string]any
	client struct {
		http     *http.Client
		dialer   *websocket.Dialer
		endpoint *url.URL

		mu     sync.RWMutex
		bearer string
	}
)

// NewDefaultClient returns a new Client with default HTTP client.
func NewDefaultClient(endpoint string) (Client, error) {
	return NewClient(http.DefaultClient, endpoint)
}

// NewClient returns a new Client.
func NewClient(c *http.Client, endpoint string) (Client, error) {
	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	return &client{
		http:     c,
		dialer:   websocket.DefaultDialer,
		endpoint: u,
	}, nil
}

func (c *client) BearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

func (c *client) SetBearerToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = token
}

func (c *client) Version(ctx context.Context) (string, error) {
	res, err := c.do(ctx, http.MethodGet, c.url(nil, "version"), "", nil)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	//
	// Process response
	var version struct {
		Version string `json:"version"`
	}
	dec := json.NewDecoder(res.Body)
	return version.Version, errors.Wrap(dec.Decode(&version), "could not parse response")
}

func (c *client) Login(ctx context.Context, email, password string) error {
	//
	// Build request
	body, err := json.Marshal(p{"email": email, "password": password})
	if err != nil {
		return errors.Wrap(err, "could not serialize email & password")
	}

	res, err := c.do(ctx, http.MethodPost, c.url(nil, "auth", "v1", "token"), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	//
	// Process response
	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	dec := json.NewDecoder(res.Body)
	if err = dec.Decode(&token); err != nil {
		return errors.Wrap(err, "could not parse response")
	}

	c.SetBearerToken(token.AccessToken)
	return nil
}

//
// Collections
//

func (c *client) Select(ctx context.Context, collection, orderBy string, ascending bool) ([]json.RawMessage, error) {
	query := url.Values{}
	if orderBy != "" {
		direction := "desc"
		if ascending {
			direction = "asc"
		}
		query.Set("order", fmt.Sprintf("%s.%s", orderBy, direction))
	}

	res, err := c.do(ctx, http.MethodGet, c.url(query, "rest", "v1", collection), "", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	//
	// Process response
	var records []json.RawMessage
	dec := json.NewDecoder(res.Body)
	return records, errors.Wrap(dec.Decode(&records), "could not parse response")
}

func (c *client) Insert(ctx context.Context, collection string, record json.RawMessage) (json.RawMessage, error) {
	res, err := c.do(ctx, http.MethodPost, c.url(nil, "rest", "v1", collection), "application/json", bytes.NewReader(record))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	//
	// Process response
	var created json.RawMessage
	dec := json.NewDecoder(res.Body)
	return created, errors.Wrap(dec.Decode(&created), "could not parse response")
}

func (c *client) Update(ctx context.Context, collection, id string, record json.RawMessage) error {
	res, err := c.do(ctx, http.MethodPut, c.url(nil, "rest", "v1", collection, id), "application/json", bytes.NewReader(record))
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (c *client) Delete(ctx context.Context, collection, id string) error {
	res, err := c.do(ctx, http.MethodDelete, c.url(nil, "rest", "v1", collection, id), "", nil)
	if err != nil {
		return err
	}
	return res.Body.Close()
}

//
// Helpers
//

func (c *client) url(query url.Values, elems ...string) string {
	u := *c.endpoint

	escaped := []string{"/", u.EscapedPath()}
	for _, e := range elems {
		escaped = append(escaped, url.PathEscape(e))
	}
	u.RawPath = path.Join(escaped...)
	u.Path, _ = url.PathUnescape(u.RawPath)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs the request and returns the response when its status is successful.
// The caller must close the response body.
func (c *client) do(ctx context.Context, method, u, contentType string, body io.Reader) (*http.Response, error) {
	//
	// Build request
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if bearer := c.BearerToken(); bearer != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))
	}

	//
	// Perform request
	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not perform request")
	}

	if res.StatusCode >= 400 {
		defer res.Body.Close()
		return nil, parseAPIError(res.Body, res.StatusCode)
	}
	return res, nil
}
