// Package natspub publishes session, presence and poll events to NATS so
// other services can follow players live. Subjects are
// <prefix>.<message type>, payloads are streaming envelopes.
package natspub

import (
	"fmt"
	"log/slog"

	nats "github.com/nats-io/nats.go"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/pkg/streaming"
)

// Kinds are the dispatcher events the publisher forwards.
var Kinds = []string{
	dispatcher.KindSession,
	dispatcher.KindJoin,
	dispatcher.KindLeave,
	dispatcher.KindPoll,
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher forwards dispatcher events to NATS.
type Publisher struct {
	conn   Conn
	prefix string
	log    *slog.Logger
}

// Connect dials the server. The client reconnects on its own afterwards.
func Connect(cfg config.NATSConfig, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("playermarkers"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return New(nc, cfg.SubjectPrefix, logger), nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, prefix: prefix, log: logger}
}

// Subject returns the subject a message type is published on.
func Subject(prefix, msgType string) string {
	if prefix == "" {
		return msgType
	}
	return prefix + "." + msgType
}

// Handle publishes e.
func (p *Publisher) Handle(e dispatcher.Event) error {
	msgType, payload, err := streaming.ForValue(e.Payload)
	if err != nil {
		return err
	}
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	if err := p.conn.Publish(Subject(p.prefix, msgType), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", msgType, err)
	}
	return nil
}

// Register subscribes p to Kinds through one ordered queue.
func Register(d *dispatcher.Dispatcher, p *Publisher, bufferSize int) {
	d.RegisterMany(Kinds, p.Handle, dispatcher.Buffered(bufferSize))
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
