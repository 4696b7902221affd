package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/mapcrafter/playermarkers/pkg/streaming"
)

var errClosed = errors.New("websocket connection closed")

// timing groups the connection's deadlines so tests can shorten them.
type timing struct {
	writeWait    time.Duration
	ackTimeout   time.Duration
	firstBackoff time.Duration
	maxBackoff   time.Duration
	maxRedials   int
}

var defaultTiming = timing{
	writeWait:    10 * time.Second,
	ackTimeout:   10 * time.Second,
	firstBackoff: time.Second,
	maxBackoff:   30 * time.Second,
	maxRedials:   10,
}

const (
	outboxSize = 10_000
	acksSize   = 16
)

// link owns one logical connection to the streaming server. A single writer
// goroutine drains the outbox; a reader goroutine routes acks. When either
// fails the link redials with exponential backoff and replays the greeting
// (the cached start_session envelope) before resuming the outbox.
type link struct {
	target *url.URL
	timing timing
	log    *slog.Logger

	outbox chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}

	mu       sync.Mutex
	conn     *ws.Conn
	detached chan struct{} // closed when conn is replaced
	greeting []byte
	closed   bool
}

func newLink(rawURL, secret string, t timing, logger *slog.Logger) (*link, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()

	return &link{
		target: u,
		timing: t,
		log:    logger,
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, acksSize),
		done:   make(chan struct{}),
	}, nil
}

func (l *link) dial() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(l.target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// open performs the first dial. Unlike redial it does not retry.
func (l *link) open() error {
	conn, err := l.dial()
	if err != nil {
		return err
	}
	l.attach(conn)
	return nil
}

func (l *link) attach(conn *ws.Conn) {
	detached := make(chan struct{})
	l.mu.Lock()
	l.conn = conn
	l.detached = detached
	l.mu.Unlock()

	go l.writer(conn, detached)
	go l.reader(conn)
}

func (l *link) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(l.timing.writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (l *link) writer(conn *ws.Conn, detached <-chan struct{}) {
	for {
		select {
		case <-l.done:
			return
		case <-detached:
			return
		case data := <-l.outbox:
			if err := l.write(conn, data); err != nil {
				l.log.Warn("WebSocket write error", "error", err)
				// hand the message to the next connection's writer
				select {
				case l.outbox <- data:
				default:
				}
				l.lost(conn)
				return
			}
		}
	}
}

func (l *link) reader(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.log.Warn("WebSocket read error", "error", err)
				l.lost(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			l.log.Debug("Ignoring non-ack message", "raw", string(message))
			continue
		}
		select {
		case l.acks <- ack:
		default:
			l.log.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// lost detaches conn if it is still the current one and starts a redial.
// Both goroutines of a broken connection call it; only the first one wins.
func (l *link) lost(conn *ws.Conn) {
	l.mu.Lock()
	if l.closed || l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	close(l.detached)
	l.mu.Unlock()

	_ = conn.Close()
	go l.redial()
}

func (l *link) redial() {
	backoff := l.timing.firstBackoff
	for attempt := 1; attempt <= l.timing.maxRedials; attempt++ {
		l.log.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-l.done:
			return
		case <-time.After(backoff):
		}

		conn, err := l.dial()
		if err == nil {
			l.mu.Lock()
			greeting := l.greeting
			l.mu.Unlock()
			if greeting != nil {
				err = l.write(conn, greeting)
				if err != nil {
					_ = conn.Close()
				}
			}
		}
		if err != nil {
			l.log.Warn("Reconnect failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, l.timing.maxBackoff)
			continue
		}

		l.log.Info("WebSocket reconnected", "attempt", attempt)
		l.attach(conn)
		return
	}

	l.log.Error("WebSocket reconnect gave up", "maxAttempts", l.timing.maxRedials)
}

// setGreeting caches the envelope replayed after every reconnect.
func (l *link) setGreeting(data []byte) {
	l.mu.Lock()
	l.greeting = data
	l.mu.Unlock()
}

// enqueue hands data to the writer without blocking; it drops when the
// outbox is full.
func (l *link) enqueue(data []byte) error {
	select {
	case <-l.done:
		return errClosed
	default:
	}
	select {
	case l.outbox <- data:
		return nil
	default:
		l.log.Warn("WebSocket outbox full, dropping message")
		return nil
	}
}

// request enqueues data and waits for the server to ack msgType.
func (l *link) request(data []byte, msgType string) error {
	if err := l.enqueue(data); err != nil {
		return err
	}

	timer := time.NewTimer(l.timing.ackTimeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-l.acks:
			if ack.For == msgType {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", msgType)
		case <-l.done:
			return fmt.Errorf("%w while waiting for ack of %q", errClosed, msgType)
		}
	}
}

// close sends a close frame and stops both goroutines. It is idempotent.
func (l *link) close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
