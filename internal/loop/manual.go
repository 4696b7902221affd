package loop

import (
	"slices"
	"time"
)

// Manual is a deterministic Clock and Scheduler. Time only moves when Advance
// or Set is called, and frames only run when Advance or Frame is called.
type Manual struct {
	now    time.Time
	nextID FrameID
	frames map[FrameID]func(time.Time)
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		frames: make(map[FrameID]func(time.Time)),
	}
}

// Now returns the manual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// RequestFrame schedules fn for the next Frame call.
func (m *Manual) RequestFrame(fn func(now time.Time)) FrameID {
	m.nextID++
	m.frames[m.nextID] = fn
	return m.nextID
}

// CancelFrame drops a pending frame request.
func (m *Manual) CancelFrame(id FrameID) {
	delete(m.frames, id)
}

// Pending returns the number of outstanding frame requests.
func (m *Manual) Pending() int {
	return len(m.frames)
}

// Set moves the clock to t without presenting a frame.
func (m *Manual) Set(t time.Time) {
	m.now = t
}

// Frame presents one frame at the current time.
func (m *Manual) Frame() {
	if len(m.frames) == 0 {
		return
	}
	pending := m.frames
	m.frames = make(map[FrameID]func(time.Time))
	for _, id := range sortedIDs(pending) {
		pending[id](m.now)
	}
}

// Advance moves the clock forward by d and presents one frame.
func (m *Manual) Advance(d time.Duration) {
	m.now = m.now.Add(d)
	m.Frame()
}

func sortedIDs(frames map[FrameID]func(time.Time)) []FrameID {
	ids := make([]FrameID, 0, len(frames))
	for id := range frames {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
