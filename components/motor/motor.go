// Package motor defines the regulated wheel motor a differential base drives.
package motor

import (
	"context"
)

// Direction is the sense a motor turns in.
type Direction int

const (
	// Forward turns the wheel so the robot advances.
	Forward Direction = iota
	// Backward turns the wheel so the robot reverses.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return "unknown"
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

// Sign returns 1 for Forward and -1 for Backward.
func (d Direction) Sign() float64 {
	if d == Backward {
		return -1
	}
	return 1
}

// A Motor is a speed-regulated motor with an encoder. Positions and speeds are in wheel degrees.
type Motor interface {
	// SetSpeed sets the speed magnitude used by later Rotate and Run commands.
	SetSpeed(ctx context.Context, degsPerSec float64) error

	// Rotate turns the motor by `degrees` relative to its current position at the set speed.
	// Negative values turn backward. It returns as soon as the command is issued.
	Rotate(ctx context.Context, degrees float64) error

	// Run turns the motor continuously in the given direction until stopped.
	Run(ctx context.Context, dir Direction) error

	// Stop stops the motor.
	Stop(ctx context.Context) error

	// IsMoving returns whether the motor is executing a command.
	IsMoving(ctx context.Context) (bool, error)

	// Position returns the encoder position in degrees.
	Position(ctx context.Context) (float64, error)
}
