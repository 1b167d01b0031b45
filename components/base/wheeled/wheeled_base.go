// Package wheeled implements a differential-drive base on top of two regulated motors.
package wheeled

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/motor"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
)

const motorPollTime = 5 * time.Millisecond

var (
	_ base.Base          = &wheeledBase{}
	_ base.WheelEncoders = &wheeledBase{}
)

type wheeledBase struct {
	left  motor.Motor
	right motor.Motor

	wheelRadiusCM float64
	wheelBaseCM   float64
	rightMult     float64

	logger logging.Logger
}

// WheeledBase is a Base that also reports its wheel encoders.
type WheeledBase interface {
	base.Base
	base.WheelEncoders
}

// New returns a base driving the given motors. A zero right wheel multiplier means the motors
// are matched.
func New(
	left, right motor.Motor,
	geometry config.GeometryConfig,
	rightWheelMultiplier float64,
	logger logging.Logger,
) (WheeledBase, error) {
	if left == nil || right == nil {
		return nil, errors.New("wheeled base needs both a left and a right motor")
	}
	if geometry.WheelRadiusCM <= 0 || geometry.WheelBaseCM <= 0 {
		return nil, errors.Errorf("wheeled base needs a positive wheel radius and base, got %.3f and %.3f",
			geometry.WheelRadiusCM, geometry.WheelBaseCM)
	}
	if rightWheelMultiplier == 0 {
		rightWheelMultiplier = 1
	}
	return &wheeledBase{
		left:          left,
		right:         right,
		wheelRadiusCM: geometry.WheelRadiusCM,
		wheelBaseCM:   geometry.WheelBaseCM,
		rightMult:     rightWheelMultiplier,
		logger:        logger,
	}, nil
}

func (wb *wheeledBase) motors(side base.Side) []motor.Motor {
	switch side {
	case base.Left:
		return []motor.Motor{wb.left}
	case base.Right:
		return []motor.Motor{wb.right}
	case base.Both:
		return []motor.Motor{wb.left, wb.right}
	}
	return nil
}

// SetWheelSpeed sets the speed magnitude of the chosen wheels.
func (wb *wheeledBase) SetWheelSpeed(ctx context.Context, side base.Side, degsPerSec float64) error {
	if degsPerSec < 0 {
		return errors.Errorf("wheel speed must be a magnitude, not %.2f", degsPerSec)
	}
	var err error
	if side == base.Left || side == base.Both {
		err = multierr.Combine(err, wb.left.SetSpeed(ctx, degsPerSec))
	}
	if side == base.Right || side == base.Both {
		err = multierr.Combine(err, wb.right.SetSpeed(ctx, degsPerSec*wb.rightMult))
	}
	return err
}

// Drive runs the chosen wheels continuously.
func (wb *wheeledBase) Drive(ctx context.Context, side base.Side, dir motor.Direction) error {
	wb.logger.Debugf("drive %s %s", side, dir)
	var err error
	for _, m := range wb.motors(side) {
		err = multierr.Combine(err, m.Run(ctx, dir))
	}
	if err != nil {
		return multierr.Combine(err, wb.Stop(ctx, side))
	}
	return nil
}

// Rotate spins the base in place. Positive angles turn counter-clockwise.
func (wb *wheeledBase) Rotate(ctx context.Context, angleDeg float64, returnImmediately bool) error {
	wb.logger.Debugf("received a Rotate with angleDeg:%.2f", angleDeg)
	wheelDeg := SpinWheelDegrees(angleDeg, wb.wheelRadiusCM, wb.wheelBaseCM)
	return wb.runAll(ctx, -wheelDeg, wheelDeg, returnImmediately)
}

// MoveForward drives straight forward.
func (wb *wheeledBase) MoveForward(ctx context.Context, distanceCM float64, returnImmediately bool) error {
	wb.logger.Debugf("received a MoveForward with distanceCM:%.2f", distanceCM)
	wheelDeg := DistanceToWheelDegrees(math.Abs(distanceCM), wb.wheelRadiusCM)
	return wb.runAll(ctx, wheelDeg, wheelDeg, returnImmediately)
}

// MoveBackward drives straight backward.
func (wb *wheeledBase) MoveBackward(ctx context.Context, distanceCM float64, returnImmediately bool) error {
	wb.logger.Debugf("received a MoveBackward with distanceCM:%.2f", distanceCM)
	wheelDeg := DistanceToWheelDegrees(math.Abs(distanceCM), wb.wheelRadiusCM)
	return wb.runAll(ctx, -wheelDeg, -wheelDeg, returnImmediately)
}

// runAll starts both motors on their relative rotations and, unless returnImmediately, waits
// for both to finish.
func (wb *wheeledBase) runAll(ctx context.Context, leftDeg, rightDeg float64, returnImmediately bool) error {
	err := multierr.Combine(
		wb.left.Rotate(ctx, leftDeg),
		wb.right.Rotate(ctx, rightDeg),
	)
	if err != nil {
		return multierr.Combine(err, wb.Stop(ctx, base.Both))
	}
	if returnImmediately {
		return nil
	}
	return wb.WaitForMotorsToStop(ctx)
}

// WaitForMotorsToStop polls both motors until neither is moving. If ctx ends first the motors
// are stopped.
func (wb *wheeledBase) WaitForMotorsToStop(ctx context.Context) error {
	for {
		if !utils.SelectContextOrWait(ctx, motorPollTime) {
			return multierr.Combine(ctx.Err(), wb.Stop(context.Background(), base.Both))
		}
		moving, err := wb.IsMoving(ctx)
		if err != nil {
			return err
		}
		if !moving {
			return nil
		}
	}
}

// Stop stops the chosen wheels.
func (wb *wheeledBase) Stop(ctx context.Context, side base.Side) error {
	var err error
	for _, m := range wb.motors(side) {
		err = multierr.Combine(err, m.Stop(ctx))
	}
	return err
}

// IsMoving returns whether either motor is executing a command.
func (wb *wheeledBase) IsMoving(ctx context.Context) (bool, error) {
	for _, m := range []motor.Motor{wb.left, wb.right} {
		moving, err := m.IsMoving(ctx)
		if err != nil {
			return false, err
		}
		if moving {
			return true, nil
		}
	}
	return false, nil
}

// WheelPositions returns both motor positions in degrees.
func (wb *wheeledBase) WheelPositions(ctx context.Context) (float64, float64, error) {
	left, err := wb.left.Position(ctx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "cannot read left wheel position")
	}
	right, err := wb.right.Position(ctx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "cannot read right wheel position")
	}
	return left, right, nil
}
