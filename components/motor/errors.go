package motor

import "github.com/pkg/errors"

// NewZeroSpeedError returns an error representing a request to move a motor at
// zero speed (i.e., moving the motor without moving the motor).
func NewZeroSpeedError(motorName string) error {
	return errors.Errorf("cannot move motor %s at a speed that is nearly 0", motorName)
}

// NewNegativeSpeedError returns an error for a speed below zero. Direction is carried by the
// command, not the speed.
func NewNegativeSpeedError(motorName string, degsPerSec float64) error {
	return errors.Errorf("motor %s speed must be a magnitude, not %.2f", motorName, degsPerSec)
}
