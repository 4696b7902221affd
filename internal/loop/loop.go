// Package loop provides the cooperative event loop every engine mutation runs on:
// posted callbacks, frame requests and interval timers all execute on a single
// goroutine.
package loop

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Run when Stop was called.
var ErrStopped = errors.New("loop stopped")

// FrameID identifies a pending frame request.
type FrameID uint64

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler schedules a callback for the next presented frame.
// Callbacks receive the frame timestamp.
type Scheduler interface {
	RequestFrame(fn func(now time.Time)) FrameID
	CancelFrame(id FrameID)
}

const inboxSize = 256

// Loop runs callbacks on one goroutine. RequestFrame and CancelFrame must only
// be called from that goroutine (i.e. from posted callbacks or frame callbacks).
type Loop struct {
	inbox         chan func()
	frameInterval time.Duration
	now           func() time.Time

	nextID FrameID
	frames map[FrameID]func(time.Time)

	quit chan struct{}
}

// New creates a loop presenting frames at the given rate (frames per second).
func New(frameRate int) *Loop {
	if frameRate <= 0 {
		frameRate = 60
	}
	return &Loop{
		inbox:         make(chan func(), inboxSize),
		frameInterval: time.Second / time.Duration(frameRate),
		now:           time.Now,
		frames:        make(map[FrameID]func(time.Time)),
		quit:          make(chan struct{}),
	}
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return l.now()
}

// Post queues fn to run on the loop goroutine. It returns false if the loop
// has been stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case <-l.quit:
		return false
	case l.inbox <- fn:
		return true
	}
}

// RequestFrame schedules fn for the next frame.
func (l *Loop) RequestFrame(fn func(now time.Time)) FrameID {
	l.nextID++
	l.frames[l.nextID] = fn
	return l.nextID
}

// CancelFrame drops a pending frame request. Unknown ids are ignored.
func (l *Loop) CancelFrame(id FrameID) {
	delete(l.frames, id)
}

// Every posts fn to the loop every d until ctx is done.
func (l *Loop) Every(ctx context.Context, d time.Duration, fn func()) {
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.quit:
				return
			case <-ticker.C:
				if !l.Post(fn) {
					return
				}
			}
		}
	}()
}

// Stop ends Run. It must be called at most once.
func (l *Loop) Stop() {
	close(l.quit)
}

// Run processes posted callbacks and frames until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return ErrStopped
		case fn := <-l.inbox:
			fn()
		case <-ticker.C:
			l.presentFrame(l.now())
		}
	}
}

// presentFrame runs the frame requests pending at the start of the frame.
// Requests made by the callbacks themselves run on the next frame.
func (l *Loop) presentFrame(now time.Time) {
	if len(l.frames) == 0 {
		return
	}
	pending := l.frames
	l.frames = make(map[FrameID]func(time.Time))
	for _, id := range sortedIDs(pending) {
		pending[id](now)
	}
}
