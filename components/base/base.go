// Package base defines the differential-drive base the localizers and navigator command.
package base

import (
	"context"

	"github.com/ecse211/gridbot/components/motor"
)

// Side selects one or both wheels of a differential base.
type Side int

const (
	// Left is the left wheel.
	Left Side = iota
	// Right is the right wheel.
	Right
	// Both is both wheels.
	Both
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	case Both:
		return "both"
	}
	return "unknown"
}

// A Base is a two-wheeled differential-drive base. Distances are in centimetres and angles in
// degrees. Positive rotations turn counter-clockwise.
type Base interface {
	// SetWheelSpeed sets the speed magnitude, in wheel degrees per second, used by later commands.
	SetWheelSpeed(ctx context.Context, side Side, degsPerSec float64) error

	// Drive runs the chosen wheels continuously until stopped.
	Drive(ctx context.Context, side Side, dir motor.Direction) error

	// Rotate turns the base in place by angleDeg. If returnImmediately is false it blocks until
	// the rotation completes.
	Rotate(ctx context.Context, angleDeg float64, returnImmediately bool) error

	// MoveForward drives straight forward by distanceCM.
	MoveForward(ctx context.Context, distanceCM float64, returnImmediately bool) error

	// MoveBackward drives straight backward by distanceCM.
	MoveBackward(ctx context.Context, distanceCM float64, returnImmediately bool) error

	// Stop stops the chosen wheels.
	Stop(ctx context.Context, side Side) error

	// IsMoving returns whether either wheel is executing a command.
	IsMoving(ctx context.Context) (bool, error)
}

// WheelEncoders reports cumulative wheel positions in degrees.
type WheelEncoders interface {
	WheelPositions(ctx context.Context) (leftDeg, rightDeg float64, err error)
}
