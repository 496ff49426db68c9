package libub

import (
	"context"
	"net/http"
	"strings"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

// Listen opens a websocket on the realtime endpoint of the collection.
// The returned channel is closed when the connection is lost or ctx is done.
func (c *client) Listen(ctx context.Context, collection string) (<-chan cms.Notification, error) {
	u := c.url(nil, "realtime", "v1", collection)
	u = "ws" + strings.TrimPrefix(u, "http") // http => ws & https => wss

	header := http.Header{}
	if bearer := c.BearerToken(); bearer != "" {
		header.Set("Authorization", "Bearer "+bearer)
	}

	conn, res, err := c.dialer.DialContext(ctx, u, header)
	if err != nil {
		if res != nil && res.StatusCode >= 400 {
			defer res.Body.Close()
			return nil, parseAPIError(res.Body, res.StatusCode)
		}
		return nil, errors.Wrap(err, "could not open realtime connection")
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	notifications := make(chan cms.Notification, 16)
	go func() {
		defer close(notifications)
		defer close(done)

		var parser fastjson.Parser
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}

			v, err := parser.ParseBytes(message)
			if err != nil {
				continue
			}

			n := cms.Notification{
				Collection: string(v.GetStringBytes("collection")),
				Type:       string(v.GetStringBytes("type")),
				ID:         string(v.GetStringBytes("id")),
			}
			if n.Collection != collection {
				continue
			}

			select {
			case notifications <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	return notifications, nil
}
