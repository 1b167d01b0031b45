package localizer

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/base/wheeled"
	"github.com/ecse211/gridbot/components/motor"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/components/signaler"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/odometry"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

// ErrLineNotFound is returned when the light sensors never both reach a grid line.
var ErrLineNotFound = errors.New("grid line not found")

// Quadrant returns which side of its reference intersection a robot starting in corner is on,
// as signs along x and y.
func Quadrant(corner int) (float64, float64, error) {
	switch corner {
	case 0:
		return -1, -1, nil
	case 1:
		return 1, -1, nil
	case 2:
		return 1, 1, nil
	case 3:
		return -1, 1, nil
	}
	return 0, 0, errors.Errorf("corner must be in [0, 3], not %d", corner)
}

type axis int

const (
	axisX axis = iota
	axisY
)

// A GridLineLocalizer fixes x, y and the heading by driving onto the two grid lines through a
// reference intersection. Each wheel stops when the light sensor on its side reaches the line,
// which squares the robot up with it.
type GridLineLocalizer struct {
	driver
}

// NewGridLineLocalizer returns a grid-line localizer.
func NewGridLineLocalizer(deps Deps, cfg *config.Config, logger logging.Logger) *GridLineLocalizer {
	return &GridLineLocalizer{driver: newDriver(deps, cfg, logger)}
}

// Localize fixes the pose against the lines through ref, approaching from the quadrant of
// corner. When premove is set the robot starts on the intersection and first moves diagonally
// into the quadrant.
func (g *GridLineLocalizer) Localize(ctx context.Context, ref spatialmath.Waypoint, corner int, premove bool) error {
	sx, sy, err := Quadrant(corner)
	if err != nil {
		return err
	}
	lease := g.Hub.Acquire(sensor.LeftLight, sensor.RightLight)
	defer func() {
		if err := lease.Release(); err != nil {
			g.logger.Error(err)
		}
	}()

	if premove {
		if err := g.rotateTo(ctx, math.Atan2(sy, sx)); err != nil {
			return err
		}
		if err := g.move(ctx, g.localization.PremoveDistanceCM); err != nil {
			return err
		}
	}

	headingX := 0.0
	if sx > 0 {
		headingX = math.Pi
	}
	headingY := math.Pi / 2
	if sy > 0 {
		headingY = 3 * math.Pi / 2
	}

	if err := g.fixAxis(ctx, axisX, headingX, ref.X); err != nil {
		return err
	}
	if err := g.move(ctx, -g.localization.BackupDistanceCM); err != nil {
		return err
	}
	if err := g.fixAxis(ctx, axisY, headingY, ref.Y); err != nil {
		return err
	}
	if err := g.move(ctx, -g.localization.BackupDistanceCM); err != nil {
		return err
	}
	if err := g.rotateTo(ctx, headingX); err != nil {
		return err
	}
	if err := g.move(ctx, g.localization.BackupDistanceCM); err != nil {
		return err
	}

	g.logger.Infow("localized", "reference", ref.String(), "pose", g.Odometer.Pose().String())
	g.signal(ctx, signaler.LocalizationComplete)
	return nil
}

// fixAxis drives onto the line ahead at heading, line tiles from the origin along a, and
// corrects that coordinate and the heading. The prior estimate of the coordinate is discarded.
func (g *GridLineLocalizer) fixAxis(ctx context.Context, a axis, heading, line float64) error {
	if err := g.rotateTo(ctx, heading); err != nil {
		return err
	}
	if err := g.findLine(ctx); err != nil {
		return err
	}
	if err := g.settle(ctx); err != nil {
		return err
	}

	tile := g.geometry.TileLengthCM
	offset := g.geometry.LightSensorOffsetCM
	pose := g.Odometer.Pose()
	fields := odometry.FieldTheta
	switch a {
	case axisX:
		along := offset * math.Cos(heading)
		pose.X = line*tile - along
		fields |= odometry.FieldX
	case axisY:
		along := offset * math.Sin(heading)
		pose.Y = line*tile - along
		fields |= odometry.FieldY
	}
	pose.Theta = heading
	g.Odometer.SetPosition(pose, fields)
	g.signal(ctx, signaler.LineFound)
	return nil
}

// findLine drives forward at half speed until both light sensors are on a line. When a search
// times out it sweeps back and forth over a widening span, moving only the wheels whose
// sensor is still off the line.
func (g *GridLineLocalizer) findLine(ctx context.Context) error {
	speed := g.motion.ForwardSpeedDegsPerSec / 2
	if err := g.Base.SetWheelSpeed(ctx, base.Both, speed); err != nil {
		return err
	}
	lineTimeout := g.localization.LineTimeout()

	var found [2]bool
	dir := motor.Forward
	for attempt := 0; attempt <= g.localization.MaxLineRetries; attempt++ {
		limit := lineTimeout
		if attempt > 0 {
			dir = dir.Reverse()
			span := lineTimeout
			if found[base.Left] != found[base.Right] {
				span = g.nudgeDuration(speed)
			}
			limit = time.Duration(attempt) * span
			g.logger.Warnw("line search timed out, retrying",
				"attempt", attempt, "left_found", found[base.Left], "right_found", found[base.Right],
				"direction", dir.String(), "limit", limit.String())
		}
		if err := g.seek(ctx, &found, dir, limit); err != nil {
			return err
		}
		if found[base.Left] && found[base.Right] {
			return nil
		}
	}
	return errors.Wrapf(ErrLineNotFound, "after %d retries", g.localization.MaxLineRetries)
}

// nudgeDuration is how long one wheel runs to pivot the base about the other by the nudge angle.
func (g *GridLineLocalizer) nudgeDuration(speed float64) time.Duration {
	arc := g.geometry.WheelBaseCM * utils.DegToRad(g.localization.NudgeDegrees)
	seconds := wheeled.DistanceToWheelDegrees(arc, g.geometry.WheelRadiusCM) / speed
	return time.Duration(seconds * float64(time.Second))
}

func lightChannel(side base.Side) sensor.Channel {
	if side == base.Left {
		return sensor.LeftLight
	}
	return sensor.RightLight
}

// seek runs every wheel whose sensor is still off the line in dir, stopping each as its own
// sensor reaches the line, until all have or limit passes.
func (g *GridLineLocalizer) seek(ctx context.Context, found *[2]bool, dir motor.Direction, limit time.Duration) error {
	var pending [2]<-chan float64
	for _, side := range []base.Side{base.Left, base.Right} {
		if found[side] {
			continue
		}
		w, err := g.Hub.Watch(lightChannel(side), sensor.Below(g.localization.LightThreshold))
		if err != nil {
			return err
		}
		defer w.Cancel()
		pending[side] = w.C
	}
	for _, side := range []base.Side{base.Left, base.Right} {
		if pending[side] == nil {
			continue
		}
		if err := g.Base.Drive(ctx, side, dir); err != nil {
			g.stop()
			return err
		}
	}

	timer := g.Clock.Timer(limit)
	defer timer.Stop()
	for pending[base.Left] != nil || pending[base.Right] != nil {
		var side base.Side
		select {
		case <-ctx.Done():
			g.stop()
			return ctx.Err()
		case <-timer.C:
			g.stop()
			return nil
		case <-pending[base.Left]:
			side = base.Left
		case <-pending[base.Right]:
			side = base.Right
		}
		if err := g.Base.Stop(ctx, side); err != nil {
			g.stop()
			return err
		}
		found[side] = true
		pending[side] = nil
		g.logger.Debugw("line reached", "side", side.String())
	}
	return nil
}
