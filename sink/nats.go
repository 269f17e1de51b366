package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/supervisor"
)

// DefaultSubject is the subject readings are published on.
const DefaultSubject = "beddit.readings"

// Default NATS connection settings.
const (
	DefaultNATSTimeout       = 5 * time.Second
	DefaultNATSReconnectWait = 2 * time.Second
	DefaultNATSDrainTimeout  = 5 * time.Second
)

// publisher is the part of *nats.Conn the sink publishes through.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each reading as a JSON message.
//
// Publishing is fire-and-forget; while the connection is reconnecting the
// client buffers messages up to its reconnect buffer size.
type NATS struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	logger  logger.Logger
}

var _ supervisor.Sink = (*NATS)(nil)

// ConnectNATS connects to url and returns a sink publishing on subject.
// Extra options are appended after the defaults.
func ConnectNATS(url, subject string, l logger.Logger, opts ...nats.Option) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	if l == nil {
		l = logger.GetLogger()
	}

	l = l.With("component", "nats-sink", "subject", subject)

	defaults := []nats.Option{
		nats.Name("beddit-streamer"),
		nats.Timeout(DefaultNATSTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(DefaultNATSReconnectWait),
		nats.DrainTimeout(DefaultNATSDrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn("nats: disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info("nats: reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			l.Error("nats: async error", "error", err)
		}),
	}

	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("sink: connect nats %s: %w", url, err)
	}

	return &NATS{conn: nc, pub: nc, subject: subject, logger: l}, nil
}

// Record publishes r as JSON.
func (n *NATS) Record(_ context.Context, r supervisor.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("sink: encode reading: %w", err)
	}

	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("sink: publish %s: %w", n.subject, err)
	}

	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}

	if err := n.conn.Drain(); err != nil {
		n.logger.Warn("nats: drain failed, closing", "error", err)
		n.conn.Close()

		return err
	}

	return nil
}
