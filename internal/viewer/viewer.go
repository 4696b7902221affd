// Package viewer defines the map viewer primitives the tracker drives, and an
// in-memory viewer used by the headless daemon and by tests.
package viewer

import (
	"github.com/mapcrafter/playermarkers/internal/layer"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Status is the popup content shown for a marker.
type Status struct {
	Name        string
	Level       int
	HealthWidth float64
}

// Marker is the viewer's visual handle for one player marker.
type Marker interface {
	Attach(l *layer.Layer)
	Detach()
	SetPosition(p core.Position2D)
	SetStatus(s Status)
	Release()
}

// MarkerFactory creates marker handles. skinClass is the style class the
// marker's icon must carry so its skin rule applies; it may be empty.
type MarkerFactory interface {
	NewMarker(username, skinClass string) Marker
}

// Map shows and hides whole layers.
type Map interface {
	ShowLayer(l *layer.Layer)
	HideLayer(l *layer.Layer)
}
