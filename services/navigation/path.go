package navigation

import (
	"strings"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"github.com/ecse211/gridbot/spatialmath"
)

// Path describes a series of waypoints the robot will travel through, in board tiles.
type Path struct {
	waypoints []spatialmath.Waypoint
}

// NewPath copies waypoints into a Path.
func NewPath(waypoints ...spatialmath.Waypoint) *Path {
	return &Path{waypoints: append([]spatialmath.Waypoint(nil), waypoints...)}
}

// ElbowPath returns the path from `from` to `to` that first travels along x and then along y.
// Driving parallel to the grid keeps the robot's footprint inside the tiles it crosses.
func ElbowPath(from, to spatialmath.Waypoint) *Path {
	elbow := spatialmath.NewWaypoint(to.X, from.Y)
	waypoints := lo.Reject([]spatialmath.Waypoint{elbow, to}, func(w spatialmath.Waypoint, i int) bool {
		return i == 0 && (w == from || w == to)
	})
	return NewPath(waypoints...)
}

// Waypoints returns a copy of the waypoints.
func (p *Path) Waypoints() []spatialmath.Waypoint {
	return append([]spatialmath.Waypoint(nil), p.waypoints...)
}

// Len returns the number of waypoints.
func (p *Path) Len() int {
	return len(p.waypoints)
}

// Points converts the waypoints into centimetres.
func (p *Path) Points(tileLength float64) []r3.Vector {
	return lo.Map(p.waypoints, func(w spatialmath.Waypoint, _ int) r3.Vector {
		return w.Point(tileLength)
	})
}

func (p *Path) String() string {
	return strings.Join(lo.Map(p.waypoints, func(w spatialmath.Waypoint, _ int) string {
		return w.String()
	}), " -> ")
}
