package localizer

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	goutils "go.viam.com/utils"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/components/signaler"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/odometry"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

const motorPollTime = 5 * time.Millisecond

// Deps are the collaborators the localizers drive and read.
type Deps struct {
	Base     base.Base
	Odometer odometry.PoseEstimator
	Hub      *sensor.Hub
	Signaler signaler.Signaler
	// Clock times the line and edge searches. Nil uses the wall clock.
	Clock clock.Clock
}

// driver holds the motion helpers shared by both localizers.
type driver struct {
	Deps
	geometry     config.GeometryConfig
	motion       config.MotionConfig
	localization config.LocalizationConfig
	logger       logging.Logger
}

func newDriver(deps Deps, cfg *config.Config, logger logging.Logger) driver {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return driver{
		Deps:         deps,
		geometry:     cfg.Geometry,
		motion:       cfg.Motion,
		localization: cfg.Localization,
		logger:       logger,
	}
}

// settle waits for the wheels to stop and then for two fresh odometer ticks, so the estimate
// includes every bit of the last motion before anyone overwrites it.
func (d *driver) settle(ctx context.Context) error {
	for {
		moving, err := d.Base.IsMoving(ctx)
		if err != nil {
			return err
		}
		if !moving {
			break
		}
		if !goutils.SelectContextOrWait(ctx, motorPollTime) {
			return ctx.Err()
		}
	}
	return d.Odometer.WaitForTicks(ctx, 2)
}

// rotateTo turns in place along the shorter way to the estimated heading.
func (d *driver) rotateTo(ctx context.Context, heading float64) error {
	deg := utils.RadToDeg(spatialmath.WrapToPi(heading - d.Odometer.Pose().Theta))
	if math.Abs(deg) < 1e-3 {
		return nil
	}
	if err := d.Base.SetWheelSpeed(ctx, base.Both, d.motion.RotateSpeedDegsPerSec); err != nil {
		return err
	}
	if err := d.Base.Rotate(ctx, deg, false); err != nil {
		return err
	}
	return d.settle(ctx)
}

// move drives straight; negative distances back up.
func (d *driver) move(ctx context.Context, distanceCM float64) error {
	if err := d.Base.SetWheelSpeed(ctx, base.Both, d.motion.ForwardSpeedDegsPerSec); err != nil {
		return err
	}
	var err error
	if distanceCM < 0 {
		err = d.Base.MoveBackward(ctx, -distanceCM, false)
	} else {
		err = d.Base.MoveForward(ctx, distanceCM, false)
	}
	if err != nil {
		return err
	}
	return d.settle(ctx)
}

// stop stops both wheels even if ctx is already done.
func (d *driver) stop() {
	if err := d.Base.Stop(context.Background(), base.Both); err != nil {
		d.logger.Warnw("cannot stop base", "error", err)
	}
}

func (d *driver) signal(ctx context.Context, event signaler.Event) {
	if d.Signaler == nil {
		return
	}
	if err := d.Signaler.Signal(ctx, event); err != nil {
		d.logger.Warnw("cannot signal", "event", event.String(), "error", err)
	}
}
