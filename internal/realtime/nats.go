package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultSubjectPrefix is the prefix of the subjects used when none is configured.
const DefaultSubjectPrefix = "unionboard.changes"

type broker struct {
	conn     *nats.Conn
	embedded *server.Server
	prefix   string
	logger   logrus.FieldLogger
}

// DialNATS returns a Broker publishing the events on the NATS server at url.
// Several server instances sharing the same NATS server and prefix see each other changes.
func DialNATS(url, prefix string, logger logrus.FieldLogger) (Broker, error) {
	conn, err := nats.Connect(url,
		nats.Name("unionboard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to NATS")
	}

	return newBroker(conn, prefix, logger), nil
}

// EmbeddedNATS starts a NATS server inside the current process and returns a Broker connected to it.
// A negative port picks a random available one.
func EmbeddedNATS(port int, prefix string, logger logrus.FieldLogger) (Broker, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create embedded NATS server")
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server failed to start")
	}

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, errors.Wrap(err, "could not connect to embedded NATS")
	}

	b := newBroker(conn, prefix, logger)
	b.embedded = ns
	return b, nil
}

func newBroker(conn *nats.Conn, prefix string, logger logrus.FieldLogger) *broker {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &broker{
		conn:   conn,
		prefix: prefix,
		logger: logger,
	}
}

// URL returns the URL of the connected NATS server.
func (b *broker) URL() string {
	return b.conn.ConnectedUrl()
}

func (b *broker) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "could not serialize event")
	}

	err = b.conn.Publish(b.subject(event.Collection), payload)
	return errors.Wrap(err, "could not publish event")
}

func (b *broker) Subscribe(collection string, h Handler) (func(), error) {
	sub, err := b.conn.Subscribe(b.subject(collection), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.WithField("subject", msg.Subject).WithError(err).Warn("Ignoring malformed event")
			return
		}
		h(event)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not subscribe")
	}

	// Make sure the server registered the subscription before any publish.
	if err = b.conn.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, errors.Wrap(err, "could not subscribe")
	}

	return func() {
		sub.Unsubscribe()
	}, nil
}

func (b *broker) Close() error {
	err := b.conn.Drain()
	b.conn.Close()

	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded.WaitForShutdown()
	}
	return errors.Wrap(err, "could not drain NATS connection")
}

func (b *broker) subject(collection string) string {
	return b.prefix + "." + collection
}
