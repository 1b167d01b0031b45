package localizer

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/motor"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/components/signaler"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/odometry"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

// ErrEdgeNotFound is returned when a perimeter scan gives up waiting for a wall edge.
var ErrEdgeNotFound = errors.New("wall edge not found")

// CornerHeading returns the heading that points from the centre of a corner's start square
// into the corner.
func CornerHeading(corner int) (float64, error) {
	switch corner {
	case 0:
		return 5 * math.Pi / 4, nil
	case 1:
		return 7 * math.Pi / 4, nil
	case 2:
		return math.Pi / 4, nil
	case 3:
		return 3 * math.Pi / 4, nil
	}
	return 0, errors.Errorf("corner must be in [0, 3], not %d", corner)
}

// A PerimeterLocalizer corrects the heading estimate by sweeping the ultrasonic sensor across
// the two walls of a corner. The walls are close over an arc of headings centred on the
// corner; the midpoint of that arc as estimated is compared with where it really is.
type PerimeterLocalizer struct {
	driver
}

// NewPerimeterLocalizer returns a perimeter localizer.
func NewPerimeterLocalizer(deps Deps, cfg *config.Config, logger logging.Logger) *PerimeterLocalizer {
	return &PerimeterLocalizer{driver: newDriver(deps, cfg, logger)}
}

// Localize scans the walls of corner and corrects the heading estimate. It returns the
// correction applied.
func (p *PerimeterLocalizer) Localize(ctx context.Context, corner int) (float64, error) {
	reference, err := CornerHeading(corner)
	if err != nil {
		return 0, err
	}
	lease := p.Hub.Acquire(sensor.FrontRange)
	defer func() {
		if err := lease.Release(); err != nil {
			p.logger.Error(err)
		}
	}()

	first, err := p.awaitRange(ctx, sensor.Any())
	if err != nil {
		return 0, err
	}
	// Starting close to the walls, the scan looks for the ends of the close arc; starting far
	// from them, for the ends of the far arc.
	edge := sensor.Falling
	if first < p.localization.RangeThresholdCM {
		edge = sensor.Rising
	} else {
		reference += math.Pi
	}
	p.logger.Debugw("perimeter scan", "corner", corner, "first_range", first, "edge", edge.String())

	if err := p.Base.SetWheelSpeed(ctx, base.Both, p.motion.RotateSpeedDegsPerSec); err != nil {
		return 0, err
	}
	cwEdge, err := p.captureEdge(ctx, motor.Forward, edge)
	if err != nil {
		return 0, err
	}
	ccwEdge, err := p.captureEdge(ctx, motor.Backward, edge)
	if err != nil {
		return 0, err
	}
	if err := p.settle(ctx); err != nil {
		return 0, err
	}

	bisector := cwEdge + spatialmath.CCWDelta(cwEdge, ccwEdge)/2
	correction := spatialmath.WrapToPi(reference - bisector)
	pose := p.Odometer.Pose()
	pose.Theta += correction
	p.Odometer.SetPosition(pose, odometry.FieldTheta)
	p.logger.Infow("heading corrected",
		"cw_edge_deg", utils.RadToDeg(cwEdge),
		"ccw_edge_deg", utils.RadToDeg(ccwEdge),
		"correction_deg", utils.RadToDeg(correction),
	)
	return correction, nil
}

// captureEdge spins in place, clockwise when the left wheel runs forward, until the range
// crosses the threshold on edge. It returns the estimated heading at the crossing.
func (p *PerimeterLocalizer) captureEdge(ctx context.Context, leftDir motor.Direction, edge sensor.Edge) (float64, error) {
	defer p.stop()
	if err := p.Base.Drive(ctx, base.Left, leftDir); err != nil {
		return 0, err
	}
	if err := p.Base.Drive(ctx, base.Right, leftDir.Reverse()); err != nil {
		return 0, err
	}
	trigger := sensor.Crossing(p.localization.RangeThresholdCM, p.localization.RangeMarginCM, edge)
	if _, err := p.awaitRange(ctx, trigger); err != nil {
		return 0, err
	}
	theta := p.Odometer.Pose().Theta
	p.signal(ctx, signaler.EdgeCaptured)
	return theta, nil
}

func (p *PerimeterLocalizer) awaitRange(ctx context.Context, trigger sensor.Trigger) (float64, error) {
	timeout := p.localization.EdgeTimeout()
	if timeout <= 0 {
		return p.Hub.Await(ctx, sensor.FrontRange, trigger)
	}
	waitCtx, cancel := p.Clock.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := p.Hub.Await(waitCtx, sensor.FrontRange, trigger)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return 0, errors.Wrapf(ErrEdgeNotFound, "nothing within %s", timeout)
	}
	return v, err
}
