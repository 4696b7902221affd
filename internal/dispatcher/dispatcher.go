// Package dispatcher fans tracker events out to the registered sinks
// (session recorder, metrics writer) so slow sinks never stall the loop.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event kinds emitted by the tracker.
const (
	KindSession = "session"
	KindJoin    = "join"
	KindLeave   = "leave"
	KindPoll    = "poll"
)

// Event is one tracker notification.
type Event struct {
	Kind    string
	Payload any
	Time    time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// ErrQueueFull is returned by Dispatch when a non-blocking buffered handler drops an event.
var ErrQueueFull = errors.New("queue full")

type buffer struct {
	kind string
	ch   chan Event
}

// Dispatcher routes events to every handler registered for their kind.
type Dispatcher struct {
	handlers map[string][]HandlerFunc
	logger   Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	mu      sync.RWMutex
	buffers []buffer
	closed  bool
	wg      sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string][]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events waiting for a sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for _, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf.ch)),
					metric.WithAttributes(attribute.String("kind", buf.kind)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed by buffered sinks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind with optional configuration.
// Several handlers may share a kind; each receives every event.
func (d *Dispatcher) Register(kind string, h HandlerFunc, opts ...Option) {
	d.RegisterMany([]string{kind}, h, opts...)
}

// RegisterMany attaches one handler to several kinds. A buffered handler gets
// a single queue, so events of different kinds reach it in dispatch order.
func (d *Dispatcher) RegisterMany(kinds []string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	name := strings.Join(kinds, ",")
	handler := h

	if cfg.logged {
		handler = d.withLogging(name, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(name, cfg.bufferSize, cfg.blocking, !cfg.logged, handler)
	}

	for _, kind := range kinds {
		d.handlers[kind] = append(d.handlers[kind], handler)
	}
}

// Dispatch hands e to every handler of its kind. Events without handlers are
// ignored. Handler errors are joined.
func (d *Dispatcher) Dispatch(e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	var errs []error
	for _, h := range d.handlers[e.Kind] {
		if err := h(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueueLengths returns the number of events waiting in each buffered sink
// queue, keyed by the kinds the queue serves.
func (d *Dispatcher) QueueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.buffers))
	for _, buf := range d.buffers {
		out[buf.kind] += len(buf.ch)
	}
	return out
}

// HasHandler returns true if a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind string) bool {
	return len(d.handlers[kind]) > 0
}

// Close stops accepting buffered events and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf.ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(name string, size int, blocking, logErrors bool, h HandlerFunc) HandlerFunc {
	ch := make(chan Event, size)

	d.mu.Lock()
	d.buffers = append(d.buffers, buffer{kind: name, ch: ch})
	d.mu.Unlock()

	kindAttr := attribute.String("kind", name)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range ch {
			if err := h(e); err != nil && logErrors {
				d.logger.Error("sink failed", "kind", e.Kind, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(kindAttr))
		}
	}()

	return func(e Event) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil
		}

		if blocking {
			ch <- e
			return nil
		}

		select {
		case ch <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(kindAttr))
			return fmt.Errorf("%w: %s", ErrQueueFull, e.Kind)
		}
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "kind", e.Kind, "handler", name)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "kind", e.Kind, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "kind", e.Kind, "duration", time.Since(start))
		}

		return err
	}
}
