// Package websocket streams session events to a remote collector over a
// WebSocket. Writes are fire-and-forget except start_session and
// end_session, which wait for an ack.
package websocket

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mapcrafter/playermarkers/pkg/core"
	"github.com/mapcrafter/playermarkers/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket.
type Backend struct {
	cfg     Config
	timing  timing
	log     *slog.Logger
	link    *link
	started atomic.Bool
}

// New creates a new WebSocket storage backend. Init connects.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, timing: defaultTiming, log: logger}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	l, err := newLink(b.cfg.URL, b.cfg.Secret, b.timing, b.log)
	if err != nil {
		return err
	}
	if err := l.open(); err != nil {
		return err
	}
	b.link = l
	return nil
}

// Close ends the current session, if any, and disconnects.
func (b *Backend) Close() error {
	if b.link == nil {
		return nil
	}
	if b.started.Swap(false) {
		if err := b.request(streaming.TypeEndSession, struct{}{}); err != nil {
			b.log.Warn("end_session not acknowledged", "error", err)
		}
		b.link.setGreeting(nil)
	}
	return b.link.close()
}

// StartSession announces s and waits for the server ack. The envelope is
// replayed after every reconnect.
func (b *Backend) StartSession(s *core.Session) error {
	if b.link == nil {
		return errClosed
	}
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.NewStartSessionPayload(s))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeStartSession, err)
	}
	b.link.setGreeting(data)
	b.started.Store(true)
	return b.link.request(data, streaming.TypeStartSession)
}

func (b *Backend) RecordJoin(e *core.PresenceEvent) error {
	return b.send(streaming.TypeJoin, streaming.NewPresencePayload(e))
}

func (b *Backend) RecordLeave(e *core.PresenceEvent) error {
	return b.send(streaming.TypeLeave, streaming.NewPresencePayload(e))
}

func (b *Backend) RecordPosition(s *core.PlayerState) error {
	return b.send(streaming.TypePosition, streaming.NewPositionPayload(s))
}

func (b *Backend) send(msgType string, payload any) error {
	if b.link == nil {
		return errClosed
	}
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return b.link.enqueue(data)
}

func (b *Backend) request(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return b.link.request(data, msgType)
}
