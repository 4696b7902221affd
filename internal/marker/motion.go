package marker

import (
	"time"

	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Phase is the state of a marker's motion.
type Phase int

const (
	// Idle: the displayed position is the last known position.
	Idle Phase = iota
	// Interpolating: the displayed position blends From into To over the
	// animation duration, starting at Start.
	Interpolating
)

func (p Phase) String() string {
	if p == Interpolating {
		return "interpolating"
	}
	return "idle"
}

// Motion is the tagged animation state. From, To and Start are only
// meaningful while Phase is Interpolating. All transitions are pure.
type Motion struct {
	Phase Phase
	From  core.Position2D
	To    core.Position2D
	Start time.Time
}

// Begin starts interpolating from one position to another at now.
func Begin(from, to core.Position2D, now time.Time) Motion {
	return Motion{Phase: Interpolating, From: from, To: to, Start: now}
}

// Stop returns the idle state.
func (m Motion) Stop() Motion {
	return Motion{}
}

// At returns the interpolated position after elapsed of a motion lasting d.
func (m Motion) At(elapsed, d time.Duration) core.Position2D {
	return m.From.Lerp(m.To, float64(elapsed)/float64(d))
}

// Step advances the motion to now. It returns the next state and the
// position to display; done is true once the motion has reached its target,
// in which case the position is exactly To. Stepping an idle motion returns
// done with a zero position.
func (m Motion) Step(now time.Time, d time.Duration) (next Motion, pos core.Position2D, done bool) {
	if m.Phase != Interpolating {
		return m, core.Position2D{}, true
	}
	elapsed := now.Sub(m.Start)
	if elapsed >= d {
		return m.Stop(), m.To, true
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return m, m.At(elapsed, d), false
}

// ZoomOutcome tells the marker how to handle a zoom transition.
type ZoomOutcome int

const (
	// ZoomNoMotion: nothing is moving, render the displayed position.
	ZoomNoMotion ZoomOutcome = iota
	// ZoomDeferred: keep the motion but suspend stepping until the zoom ends.
	ZoomDeferred
	// ZoomFinished: the remaining motion is negligible, jump to the target.
	ZoomFinished
)

// ZoomBegin decides what happens to the motion when a zoom transition starts
// at now. lead is how far ahead the transition ends. For ZoomDeferred the
// returned position is where the marker will be when the transition ends;
// for ZoomFinished it is the target.
func (m Motion) ZoomBegin(now time.Time, d, lead time.Duration) (next Motion, pos core.Position2D, outcome ZoomOutcome) {
	if m.Phase != Interpolating {
		return m, core.Position2D{}, ZoomNoMotion
	}
	zoomEnd := now.Sub(m.Start) + lead
	if d-zoomEnd > lead {
		return m, m.At(zoomEnd, d), ZoomDeferred
	}
	return m.Stop(), m.To, ZoomFinished
}
