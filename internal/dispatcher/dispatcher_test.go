package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(KindJoin, func(e Event) error {
		got = e
		return nil
	})

	err := d.Dispatch(Event{Kind: KindJoin, Payload: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Payload)
	assert.False(t, got.Time.IsZero(), "dispatch stamps the event time")
}

func TestDispatcher_FanOut(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var calls []string
	d.Register(KindPoll, func(Event) error { calls = append(calls, "recorder"); return nil })
	d.Register(KindPoll, func(Event) error { calls = append(calls, "influx"); return nil })

	require.NoError(t, d.Dispatch(Event{Kind: KindPoll}))
	assert.Equal(t, []string{"recorder", "influx"}, calls)
}

func TestDispatcher_NoHandlerIsIgnored(t *testing.T) {
	d, _ := newTestDispatcher(t)
	assert.NoError(t, d.Dispatch(Event{Kind: "unknown"}))
}

func TestDispatcher_JoinsErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	d.Register(KindLeave, func(Event) error { return errA })
	d.Register(KindLeave, func(Event) error { return errB })

	err := d.Dispatch(Event{Kind: KindLeave})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(KindPoll, func(Event) error {
		processed.Add(1)
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch(Event{Kind: KindPoll}))
	}

	d.Close()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(KindPoll, func(Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	require.NoError(t, d.Dispatch(Event{Kind: KindPoll}))
	<-started // first event is being processed
	require.NoError(t, d.Dispatch(Event{Kind: KindPoll}))
	require.NoError(t, d.Dispatch(Event{Kind: KindPoll}))

	err := d.Dispatch(Event{Kind: KindPoll})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	d.Close()
}

func TestDispatcher_QueueLengths(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.RegisterMany([]string{KindJoin, KindLeave}, func(Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(4))

	require.NoError(t, d.Dispatch(Event{Kind: KindJoin}))
	<-started
	require.NoError(t, d.Dispatch(Event{Kind: KindLeave}))
	require.NoError(t, d.Dispatch(Event{Kind: KindJoin}))

	assert.Equal(t, map[string]int{"join,leave": 2}, d.QueueLengths())

	close(block)
	d.Close()
	assert.Equal(t, 0, d.QueueLengths()["join,leave"])
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(KindPoll, func(Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(1), Blocking())

	require.NoError(t, d.Dispatch(Event{Kind: KindPoll}))
	<-started
	require.NoError(t, d.Dispatch(Event{Kind: KindPoll}))

	done := make(chan struct{})
	go func() {
		_ = d.Dispatch(Event{Kind: KindPoll})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
	d.Close()
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(KindJoin, func(Event) error { return nil }, Buffered(1))

	d.Close()
	d.Close()
	assert.NoError(t, d.Dispatch(Event{Kind: KindJoin}), "events after close are discarded")
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(KindSession, func(Event) error { return nil }, Logged())
	require.NoError(t, d.Dispatch(Event{Kind: KindSession}))

	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(KindJoin, func(Event) error { return fmt.Errorf("test error") }, Logged())
	require.Error(t, d.Dispatch(Event{Kind: KindJoin}))

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
		}
	}
	assert.True(t, hasError, "expected error log message")
}

func TestDispatcher_BufferedErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(KindLeave, func(Event) error { return errors.New("disk full") }, Buffered(4))
	require.NoError(t, d.Dispatch(Event{Kind: KindLeave}))
	d.Close()

	msgs := logger.snapshot()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "sink failed")
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(KindJoin, func(Event) error { return nil })

	assert.True(t, d.HasHandler(KindJoin))
	assert.False(t, d.HasHandler(KindLeave))
}

func TestDispatcher_RegisterManyKeepsOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var mu sync.Mutex
	var got []string
	d.RegisterMany([]string{KindSession, KindJoin, KindPoll}, func(e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Kind)
		return nil
	}, Buffered(16))

	for _, kind := range []string{KindSession, KindJoin, KindPoll, KindJoin} {
		require.NoError(t, d.Dispatch(Event{Kind: kind}))
	}
	d.Close()

	assert.Equal(t, []string{KindSession, KindJoin, KindPoll, KindJoin}, got)
	assert.True(t, d.HasHandler(KindPoll))
	assert.False(t, d.HasHandler(KindLeave))
}
