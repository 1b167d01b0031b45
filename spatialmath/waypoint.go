package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Waypoint is a target coordinate in board tiles.
type Waypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewWaypoint returns a waypoint at tile coordinates (x, y).
func NewWaypoint(x, y float64) Waypoint {
	return Waypoint{X: x, Y: y}
}

// Point converts the waypoint into centimetres given the tile length.
func (w Waypoint) Point(tileLength float64) r3.Vector {
	return r3.Vector{X: w.X * tileLength, Y: w.Y * tileLength}
}

func (w Waypoint) String() string {
	return fmt.Sprintf("[%g, %g]", w.X, w.Y)
}
