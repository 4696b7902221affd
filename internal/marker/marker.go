// Package marker implements the player marker: its visual handle, its skin
// rule and the interpolation state machine that smooths position updates.
package marker

import (
	"log/slog"
	"math"
	"time"

	"github.com/mapcrafter/playermarkers/internal/geo"
	"github.com/mapcrafter/playermarkers/internal/layer"
	"github.com/mapcrafter/playermarkers/internal/loop"
	"github.com/mapcrafter/playermarkers/internal/style"
	"github.com/mapcrafter/playermarkers/internal/viewer"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Defaults for Settings.
const (
	DefaultDuration    = 5 * time.Second
	DefaultZoomLead    = 250 * time.Millisecond
	DefaultSkin        = "http://assets.mojang.com/SkinTemplates/steve.png"
	DefaultHealthScale = 9
)

// Settings tune how markers animate and render.
type Settings struct {
	Animated    bool
	Duration    time.Duration
	ZoomLead    time.Duration
	DefaultSkin string
	HealthScale float64
}

// DefaultSettings returns animated markers with a 5s interpolation.
func DefaultSettings() Settings {
	return Settings{
		Animated:    true,
		Duration:    DefaultDuration,
		ZoomLead:    DefaultZoomLead,
		DefaultSkin: DefaultSkin,
		HealthScale: DefaultHealthScale,
	}
}

// Factory holds everything markers share. It is the owner context passed to
// every marker it creates.
type Factory struct {
	Adapter  geo.Adapter
	Views    viewer.MarkerFactory
	Styles   *style.Registry // optional
	Frames   loop.Scheduler
	Clock    loop.Clock
	Settings Settings
	Logger   *slog.Logger
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// New creates the marker for username. Texture rendering is best effort: if
// no skin rule can be acquired the marker shows the viewer's default icon.
func (f *Factory) New(username string) *Marker {
	m := &Marker{
		factory:  f,
		username: username,
	}

	var skinClass string
	if f.Styles != nil {
		rule, err := f.Styles.Acquire(username)
		if err != nil {
			f.logger().Debug("Skin rule unavailable, using default texture", "username", username, "error", err)
		} else {
			m.rule = rule
			skinClass = rule.Class()
		}
	}

	m.view = f.Views.NewMarker(username, skinClass)
	return m
}

// Marker is one player's marker. It is not safe for concurrent use; all calls
// happen on the loop goroutine.
type Marker struct {
	factory  *Factory
	username string
	view     viewer.Marker
	rule     *style.Rule

	layer     *layer.Layer
	world     core.Position3D
	hasWorld  bool
	displayed core.Position2D
	target    core.Position2D

	motion       Motion
	frame        loop.FrameID
	framePending bool
	zoomDeferred bool

	destroyed bool
}

// Username returns the marker's identity.
func (m *Marker) Username() string { return m.username }

// Position returns the displayed position.
func (m *Marker) Position() core.Position2D { return m.displayed }

// Target returns the last computed target position.
func (m *Marker) Target() core.Position2D { return m.target }

// Layer returns the layer the marker belongs to, or nil before the first update.
func (m *Marker) Layer() *layer.Layer { return m.layer }

// Phase returns the motion phase.
func (m *Marker) Phase() Phase { return m.motion.Phase }

// Animating reports whether a frame step is scheduled.
func (m *Marker) Animating() bool { return m.framePending }

// Destroyed reports whether Destroy has been called.
func (m *Marker) Destroyed() bool { return m.destroyed }

// UpdatePlayer applies a snapshot record. A marker moving to another layer
// jumps to its new position; within a layer it interpolates when animation
// is enabled.
func (m *Marker) UpdatePlayer(target *layer.Layer, p core.Player) {
	if m.destroyed {
		return
	}
	settings := m.factory.Settings

	if m.rule != nil {
		skin := p.Skin()
		if skin == "" {
			skin = settings.DefaultSkin
		}
		m.rule.SetImportant("background-image", "url("+skin+")")
	}

	m.view.SetStatus(viewer.Status{
		Name:        p.Username,
		Level:       int(math.Floor(p.Level)),
		HealthWidth: p.Health * settings.HealthScale,
	})

	m.world = p.Location
	m.hasWorld = true
	m.target = geo.Project(m.factory.Adapter, p.Location)

	m.stopMotion()

	switch {
	case m.layer != target:
		if m.layer != nil {
			m.layer.Remove(m.username)
			m.view.Detach()
		}
		m.setPosition(m.target)
		m.layer = target
		m.layer.Add(m.username)
		m.view.Attach(target)
	case settings.Animated:
		now := m.factory.Clock.Now()
		m.motion = Begin(m.displayed, m.target, now)
		m.step(now)
	default:
		m.setPosition(m.target)
	}
}

// ResetLocation stops any interpolation and snaps to the last known world
// position, projected with the adapter's current state.
func (m *Marker) ResetLocation() {
	if m.destroyed {
		return
	}
	m.stopMotion()
	if !m.hasWorld {
		return
	}
	m.target = geo.Project(m.factory.Adapter, m.world)
	m.setPosition(m.target)
}

// ZoomBegin is called when the viewer starts a zoom transition. It returns the
// position the viewer should animate the marker to.
func (m *Marker) ZoomBegin() core.Position2D {
	if m.destroyed || m.motion.Phase != Interpolating {
		return m.displayed
	}

	m.cancelFrame()
	settings := m.factory.Settings
	next, pos, outcome := m.motion.ZoomBegin(m.factory.Clock.Now(), settings.Duration, settings.ZoomLead)
	m.motion = next

	switch outcome {
	case ZoomDeferred:
		m.zoomDeferred = true
		return pos
	case ZoomFinished:
		m.setPosition(pos)
		return pos
	default:
		return m.displayed
	}
}

// ZoomEnd resumes an interpolation deferred by ZoomBegin.
func (m *Marker) ZoomEnd() {
	if m.destroyed || !m.zoomDeferred {
		return
	}
	m.zoomDeferred = false
	m.step(m.factory.Clock.Now())
}

// Destroy stops the marker and releases its view and skin rule. Calling it
// again does nothing.
func (m *Marker) Destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.stopMotion()

	if m.layer != nil {
		m.layer.Remove(m.username)
		m.layer = nil
	}
	m.view.Release()
	if m.rule != nil {
		m.rule.Release()
		m.rule = nil
	}
}

// step is the frame callback: it moves the marker and schedules the next
// frame until the motion is done.
func (m *Marker) step(now time.Time) {
	m.framePending = false
	if m.motion.Phase != Interpolating {
		return
	}

	next, pos, done := m.motion.Step(now, m.factory.Settings.Duration)
	m.motion = next
	m.setPosition(pos)
	if done {
		return
	}
	m.frame = m.factory.Frames.RequestFrame(m.step)
	m.framePending = true
}

func (m *Marker) cancelFrame() {
	if m.framePending {
		m.factory.Frames.CancelFrame(m.frame)
		m.framePending = false
	}
}

func (m *Marker) stopMotion() {
	m.cancelFrame()
	m.zoomDeferred = false
	m.motion = m.motion.Stop()
}

func (m *Marker) setPosition(p core.Position2D) {
	m.displayed = p
	m.view.SetPosition(p)
}
