package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestLoop_PostRunsOnLoop(t *testing.T) {
	l := New(120)
	startLoop(t, l)

	ran := make(chan struct{})
	require.True(t, l.Post(func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted callback did not run")
	}
}

func TestLoop_RequestFrame(t *testing.T) {
	l := New(120)
	startLoop(t, l)

	fired := make(chan time.Time, 1)
	l.Post(func() {
		l.RequestFrame(func(now time.Time) { fired <- now })
	})

	select {
	case now := <-fired:
		assert.False(t, now.IsZero())
	case <-time.After(time.Second):
		t.Fatal("frame callback did not run")
	}
}

func TestLoop_CancelFrame(t *testing.T) {
	l := New(120)
	startLoop(t, l)

	var calls atomic.Int32
	l.Post(func() {
		id := l.RequestFrame(func(time.Time) { calls.Add(1) })
		l.CancelFrame(id)
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestLoop_Every(t *testing.T) {
	l := New(60)
	startLoop(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	l.Every(ctx, 5*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestLoop_StopEndsRun(t *testing.T) {
	l := New(60)
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background()) }()

	l.Stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, l.Post(func() {}))
}

func TestManual_FramesRunInRequestOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []int
	m.RequestFrame(func(time.Time) { order = append(order, 1) })
	m.RequestFrame(func(time.Time) { order = append(order, 2) })
	m.RequestFrame(func(time.Time) { order = append(order, 3) })

	m.Frame()
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_RescheduleRunsNextFrame(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var calls int
	var step func(time.Time)
	step = func(time.Time) {
		calls++
		m.RequestFrame(step)
	}
	m.RequestFrame(step)

	m.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.Pending())

	m.Advance(time.Millisecond)
	assert.Equal(t, 2, calls)
}

func TestManual_AdvanceMovesClock(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewManual(start)

	var seen time.Time
	m.RequestFrame(func(now time.Time) { seen = now })
	m.Advance(2 * time.Second)

	assert.Equal(t, start.Add(2*time.Second), m.Now())
	assert.Equal(t, start.Add(2*time.Second), seen)

	m.Set(start)
	assert.Equal(t, start, m.Now())
}

var (
	_ Scheduler = (*Loop)(nil)
	_ Clock     = (*Loop)(nil)
	_ Scheduler = (*Manual)(nil)
	_ Clock     = (*Manual)(nil)
)
