package wheeled

import "math"

// DistanceToWheelDegrees returns how far a wheel of the given radius turns, in degrees, to roll
// distanceCM.
func DistanceToWheelDegrees(distanceCM, wheelRadiusCM float64) float64 {
	return distanceCM * 180 / (math.Pi * wheelRadiusCM)
}

// WheelDegreesToDistance returns the distance a wheel of the given radius rolls when it turns by
// degrees.
func WheelDegreesToDistance(degrees, wheelRadiusCM float64) float64 {
	return wheelRadiusCM * math.Pi * degrees / 180
}

// SpinWheelDegrees returns how far each wheel turns, in degrees and in opposite directions, to
// spin the base in place by angleDeg.
func SpinWheelDegrees(angleDeg, wheelRadiusCM, wheelBaseCM float64) float64 {
	return angleDeg * wheelBaseCM / (2 * wheelRadiusCM)
}

// SpinRate returns the base's angular speed in degrees per second when both wheels turn in
// opposite directions at wheelDegsPerSec.
func SpinRate(wheelDegsPerSec, wheelRadiusCM, wheelBaseCM float64) float64 {
	return wheelDegsPerSec * 2 * wheelRadiusCM / wheelBaseCM
}
