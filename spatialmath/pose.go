// Package spatialmath defines planar poses and the angle conventions shared by the odometer,
// localizers and navigator.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Pose is a planar pose in centimetres with a heading in radians, measured counter-clockwise
// from the +X axis.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose returns a pose with its heading normalized into [0, 2π).
func NewPose(x, y, theta float64) Pose {
	return Pose{X: x, Y: y, Theta: NormalizeRadians(theta)}
}

// Point returns the position of the pose as a vector with Z = 0.
func (p Pose) Point() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y}
}

// Heading returns the forward unit vector of the pose.
func (p Pose) Heading() r3.Vector {
	return HeadingVector(p.Theta)
}

// DistanceTo returns the planar distance from the pose to pt.
func (p Pose) DistanceTo(pt r3.Vector) float64 {
	return pt.Sub(p.Point()).Norm()
}

// AngleTo returns the signed smallest turn from the pose heading to face pt. Counter-clockwise
// turns are positive.
func (p Pose) AngleTo(pt r3.Vector) float64 {
	return SignedAngle(p.Heading(), pt.Sub(p.Point()))
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.1f°)", p.X, p.Y, p.Theta*180/math.Pi)
}

// PoseAlmostEqual returns whether both poses agree within epsilon on position and heading.
// Headings are compared along the shortest arc.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	return math.Abs(a.X-b.X) <= epsilon &&
		math.Abs(a.Y-b.Y) <= epsilon &&
		math.Abs(WrapToPi(a.Theta-b.Theta)) <= epsilon
}
