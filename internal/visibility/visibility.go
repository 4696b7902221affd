// Package visibility tracks which layer is displayed, whether the player
// overlay is shown, and the active/total player counter.
package visibility

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mapcrafter/playermarkers/internal/cache"
	"github.com/mapcrafter/playermarkers/internal/layer"
	"github.com/mapcrafter/playermarkers/internal/marker"
	"github.com/mapcrafter/playermarkers/internal/viewer"
)

// ErrNoControls is returned by ToggleVisibility when the host has no toggle control.
var ErrNoControls = errors.New("no visibility control available")

// Counter is the number of live markers on the active layer and in total.
type Counter struct {
	Active int
	Total  int
}

// Badge formats the counter as "active/total".
func (c Counter) Badge() string {
	return fmt.Sprintf("%d/%d", c.Active, c.Total)
}

// Title prefixes base with "(active/total) ".
func (c Counter) Title(base string) string {
	return fmt.Sprintf("(%d/%d) %s", c.Active, c.Total, base)
}

// Options configure a Controller.
type Options struct {
	// Controls is true when the host offers a toggle control. Without it the
	// overlay is always visible and no badge is shown.
	Controls bool
	// Title is the base window title the counter is prefixed to.
	Title string
	// OnChange receives every recomputed counter.
	OnChange func(Counter)
	Logger   *slog.Logger
}

// Controller owns the active layer and the overlay visibility.
type Controller struct {
	view    viewer.Map
	markers *cache.MarkerCache
	opts    Options
	logger  *slog.Logger

	active  *layer.Layer
	visible bool
	counter Counter
}

// New creates a controller with the overlay visible and no active layer.
func New(view viewer.Map, markers *cache.MarkerCache, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		view:    view,
		markers: markers,
		opts:    opts,
		logger:  logger,
		visible: true,
	}
}

// ActiveLayer returns the displayed layer, or nil before the first map change.
func (c *Controller) ActiveLayer() *layer.Layer { return c.active }

// Visible reports whether the overlay is shown.
func (c *Controller) Visible() bool { return c.visible }

// Counter returns the last computed counter.
func (c *Controller) Counter() Counter { return c.counter }

// Title returns the window title with the counter prefix.
func (c *Controller) Title() string { return c.counter.Title(c.opts.Title) }

// Badge returns the control badge label. ok is false without controls.
func (c *Controller) Badge() (label string, ok bool) {
	if !c.opts.Controls {
		return "", false
	}
	return c.counter.Badge(), true
}

// SetActiveLayer switches the displayed layer. Every live marker snaps to its
// last known position whether or not the layer changed, since the coordinate
// frame may have.
func (c *Controller) SetActiveLayer(l *layer.Layer) {
	if l != c.active {
		if c.active != nil {
			c.view.HideLayer(c.active)
		}
		c.active = l
		if c.visible && c.active != nil {
			c.view.ShowLayer(c.active)
		}
		c.Recompute()
	}
	c.markers.Each(func(m *marker.Marker) {
		m.ResetLocation()
	})
}

// ToggleVisibility shows or hides the overlay and returns the new state.
func (c *Controller) ToggleVisibility() (bool, error) {
	if !c.opts.Controls {
		return c.visible, ErrNoControls
	}

	c.visible = !c.visible
	if c.active != nil {
		if c.visible {
			c.view.ShowLayer(c.active)
		} else {
			c.view.HideLayer(c.active)
		}
	}
	c.logger.Debug("Player overlay toggled", "visible", c.visible)
	return c.visible, nil
}

// Recompute counts live markers on the active layer and notifies OnChange.
func (c *Controller) Recompute() Counter {
	var counter Counter
	c.markers.Each(func(m *marker.Marker) {
		counter.Total++
		if c.active != nil && m.Layer() == c.active {
			counter.Active++
		}
	})
	c.counter = counter

	if c.opts.OnChange != nil {
		c.opts.OnChange(counter)
	}
	return counter
}
