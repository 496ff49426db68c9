package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/mdouchement/unionboard/internal/realtime"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// changes contains the realtime handlers.
type changes struct {
	broker     realtime.Broker
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
	metrics    *Metrics
	logger     logrus.FieldLogger
}

func newChanges(broker realtime.Broker, pingPeriod time.Duration, metrics *Metrics, logger logrus.FieldLogger) *changes {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}

	return &changes{
		broker: broker,
		upgrader: websocket.Upgrader{
			// The public pages are served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingPeriod: pingPeriod,
		metrics:    metrics,
		logger:     logger,
	}
}

///// Listen
////
//

// Listen streams the changes of a collection over a websocket.
func (h *changes) Listen(c echo.Context) error {
	collection := c.Param("collection")

	// A frame waiting in the buffer already triggers a reload on the client,
	// so the events that do not fit are dropped.
	events := make(chan realtime.Event, 16)
	unsubscribe, err := h.broker.Subscribe(collection, func(e realtime.Event) {
		select {
		case events <- e:
		default:
		}
	})
	if err != nil {
		return errors.Wrap(err, "could not subscribe")
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already replied to the client.
		h.logger.WithField("collection", collection).WithError(err).Debug("Could not upgrade connection")
		return nil
	}
	defer conn.Close()
	defer h.metrics.Listen(collection)()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case e := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}
