// pkg/core/position.go
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Position3D is a world position in block coordinates. Y is the vertical axis.
// On the wire it is encoded as a [x, y, z] array.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"` // height
	Z float64 `json:"z"`
}

// MarshalJSON encodes the position as [x, y, z].
func (p Position3D) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Z})
}

// UnmarshalJSON accepts [x, y, z] arrays (shorter arrays leave the missing
// axes at zero) as well as {"x":..,"y":..,"z":..} objects. null is a no-op.
func (p *Position3D) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '[' {
		var coords []float64
		if err := json.Unmarshal(data, &coords); err != nil {
			return fmt.Errorf("failed to parse position array: %w", err)
		}
		*p = Position3D{}
		if len(coords) > 0 {
			p.X = coords[0]
		}
		if len(coords) > 1 {
			p.Y = coords[1]
		}
		if len(coords) > 2 {
			p.Z = coords[2]
		}
		return nil
	}

	type plain Position3D
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to parse position object: %w", err)
	}
	*p = Position3D(obj)
	return nil
}

// Position2D is a position in display space, as produced by a coordinate adapter.
type Position2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Lerp returns the linear interpolation between p and to by factor t.
// t is not clamped.
func (p Position2D) Lerp(to Position2D, t float64) Position2D {
	return Position2D{
		X: p.X + (to.X-p.X)*t,
		Y: p.Y + (to.Y-p.Y)*t,
	}
}
