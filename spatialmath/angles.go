package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

const twoPi = 2 * math.Pi

// NormalizeRadians returns theta mod 2π in [0, 2π).
func NormalizeRadians(theta float64) float64 {
	theta = math.Mod(theta, twoPi)
	if theta < 0 {
		theta += twoPi
	}
	// math.Mod of a tiny negative number plus 2π can round up to exactly 2π.
	if theta >= twoPi {
		theta = 0
	}
	return theta
}

// WrapToPi maps theta into (-π, π].
func WrapToPi(theta float64) float64 {
	theta = NormalizeRadians(theta)
	if theta > math.Pi {
		theta -= twoPi
	}
	return theta
}

// CCWDelta returns the counter-clockwise arc from `from` to `to` in [0, 2π).
func CCWDelta(from, to float64) float64 {
	return NormalizeRadians(to - from)
}

// HeadingVector returns the forward unit vector for heading theta.
func HeadingVector(theta float64) r3.Vector {
	return r3.Vector{X: math.Cos(theta), Y: math.Sin(theta)}
}

// SignedAngle returns the smallest signed rotation in [-π, π] taking `from` onto `to`, computed as
// atan2(cross, dot) of the two planar vectors. A target directly behind yields ±π and one straight
// ahead yields 0.
func SignedAngle(from, to r3.Vector) float64 {
	cross := from.X*to.Y - from.Y*to.X
	dot := from.X*to.X + from.Y*to.Y
	return math.Atan2(cross, dot)
}

// NearestCardinal snaps theta to the closest of 0, π/2, π and 3π/2.
func NearestCardinal(theta float64) float64 {
	quarter := math.Pi / 2
	return NormalizeRadians(math.Round(NormalizeRadians(theta)/quarter) * quarter)
}
