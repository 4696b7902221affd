package geo

import (
	"sync"

	"github.com/mapcrafter/playermarkers/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Adapter converts a world position to a display position.
// Axis order is (x, z, y): the vertical axis comes last so that flat
// projections can ignore it.
type Adapter interface {
	WorldToDisplay(x, z, y float64) core.Position2D
}

// AdapterFunc lets an ordinary function act as an Adapter.
type AdapterFunc func(x, z, y float64) core.Position2D

// WorldToDisplay calls f(x, z, y).
func (f AdapterFunc) WorldToDisplay(x, z, y float64) core.Position2D {
	return f(x, z, y)
}

// Rotator is implemented by adapters whose output depends on the map rotation.
type Rotator interface {
	SetRotation(rotation int)
}

// Project runs a world position through the adapter with the (x, z, y) axis order.
func Project(a Adapter, p core.Position3D) core.Position2D {
	return a.WorldToDisplay(p.X, p.Z, p.Y)
}

// Identity maps (x, z) straight onto the display plane.
type Identity struct{}

// WorldToDisplay returns (x, z).
func (Identity) WorldToDisplay(x, z, _ float64) core.Position2D {
	return core.Position2D{X: x, Y: z}
}

// Projection is a top-down projection rotated in quarter turns, the way
// tiled renderers offer the same world from four viewpoints.
type Projection struct {
	mu       sync.RWMutex
	scale    float64
	originX  float64
	originZ  float64
	rotation int
}

// NewProjection creates a projection with the given scale (display units per
// block) and world origin.
func NewProjection(scale, originX, originZ float64) *Projection {
	if scale == 0 {
		scale = 1
	}
	return &Projection{scale: scale, originX: originX, originZ: originZ}
}

// SetRotation sets the rotation in quarter turns. Values wrap modulo 4.
func (p *Projection) SetRotation(rotation int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotation = ((rotation % 4) + 4) % 4
}

// Rotation returns the current rotation in quarter turns.
func (p *Projection) Rotation() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rotation
}

// WorldToDisplay rotates (x, z) around the origin and scales the result.
func (p *Projection) WorldToDisplay(x, z, _ float64) core.Position2D {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dx := x - p.originX
	dz := z - p.originZ

	var rx, rz float64
	switch p.rotation {
	case 1:
		rx, rz = -dz, dx
	case 2:
		rx, rz = -dx, -dz
	case 3:
		rx, rz = dz, -dx
	default:
		rx, rz = dx, dz
	}
	return core.Position2D{X: rx * p.scale, Y: rz * p.scale}
}

// WebMercator treats block coordinates as EPSG:3857 metres offset from an
// origin and returns EPSG:4326 positions, X being longitude and Y latitude.
// North is -z.
type WebMercator struct {
	originX        float64
	originY        float64
	metresPerBlock float64
	toGeographic   func(a, b, c float64) (float64, float64, float64)
}

// NewWebMercator anchors block (0, 0) at the given longitude/latitude.
func NewWebMercator(longitude, latitude, metresPerBlock float64) *WebMercator {
	if metresPerBlock == 0 {
		metresPerBlock = 1
	}
	epsg := wgs84.EPSG()
	ox, oy, _ := epsg.Transform(4326, 3857)(longitude, latitude, 0)
	return &WebMercator{
		originX:        ox,
		originY:        oy,
		metresPerBlock: metresPerBlock,
		toGeographic:   epsg.Transform(3857, 4326),
	}
}

// WorldToDisplay returns (longitude, latitude).
func (w *WebMercator) WorldToDisplay(x, z, _ float64) core.Position2D {
	lon, lat, _ := w.toGeographic(
		w.originX+x*w.metresPerBlock,
		w.originY-z*w.metresPerBlock,
		0,
	)
	return core.Position2D{X: lon, Y: lat}
}

// ToPoint converts a world position to an XYZ point for storage.
// X/Y carry the horizontal plane (x, z), Z carries the height.
// Non-finite coordinates yield an empty point.
func ToPoint(p core.Position3D) geom.Point {
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Z},
		Z:    p.Y,
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ)
	}
	return pt
}
