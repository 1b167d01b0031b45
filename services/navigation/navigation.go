// Package navigation drives the robot through a path of waypoints with a tick-driven state
// machine that alternates between turning to face the next waypoint and driving toward it.
package navigation

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/odometry"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

// ErrPathExhausted is returned when the navigator is asked for a waypoint past the end of its
// path.
var ErrPathExhausted = errors.New("path exhausted")

// overshootCM is how far the distance to the target may climb back above its minimum before
// the navigator decides it has driven past the target.
const overshootCM = 0.5

// State is the phase of the navigator.
type State int

// The navigator phases.
const (
	Idle State = iota
	Rotating
	Moving
	ReachedWaypoint
	Avoiding
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rotating:
		return "rotating"
	case Moving:
		return "moving"
	case ReachedWaypoint:
		return "reached_waypoint"
	case Avoiding:
		return "avoiding"
	case Done:
		return "done"
	}
	return "unknown"
}

// Deps are the collaborators the navigator drives and reads.
type Deps struct {
	Base     base.Base
	Odometer odometry.PoseEstimator
	// Hub supplies the front range for obstacle checks. It may be nil when obstacle checks are
	// disabled.
	Hub *sensor.Hub
}

// A Navigator follows a path one tick at a time. Every motion command returns immediately;
// the navigator waits out the motion on later ticks and makes its next decision one tick
// after the base stops, from a pose that includes the whole motion.
type Navigator struct {
	Deps
	tileLength     float64
	angleThreshold float64
	distThreshold  float64
	maxStep        float64
	obstacleCM     float64
	motion         config.MotionConfig
	logger         logging.Logger

	mu          sync.Mutex
	state       State
	session     string
	path        *Path
	targets     []r3.Vector
	cursor      int
	active      bool
	done        bool
	commanded   bool
	minDist     float64
	orientation r3.Vector
	lease       *sensor.Lease
}

// New returns an idle navigator.
func New(deps Deps, cfg *config.Config, logger logging.Logger) (*Navigator, error) {
	if cfg.Navigation.ObstacleDistanceCM > 0 && deps.Hub == nil {
		return nil, errors.New("obstacle checks need a sensor hub")
	}
	return &Navigator{
		Deps:           deps,
		tileLength:     cfg.Geometry.TileLengthCM,
		angleThreshold: utils.DegToRad(cfg.Navigation.AngleThresholdDeg),
		distThreshold:  cfg.Navigation.DistanceThresholdCM,
		maxStep:        cfg.Navigation.MaxStepCM,
		obstacleCM:     cfg.Navigation.ObstacleDistanceCM,
		motion:         cfg.Motion,
		logger:         logger,
		path:           NewPath(),
		minDist:        math.Inf(1),
	}, nil
}

// SetPath replaces the path, rewinds to its first waypoint and clears Done. The navigator
// starts on its next tick.
func (n *Navigator) SetPath(path *Path) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = NewPath(path.Waypoints()...)
	n.targets = n.path.Points(n.tileLength)
	n.cursor = 0
	n.done = false
	n.active = true
	n.commanded = false
	n.minDist = math.Inf(1)
	n.state = Idle
	n.session = uuid.NewString()
	if n.obstacleCM > 0 && n.lease == nil {
		n.lease = n.Hub.Acquire(sensor.FrontRange)
	}
	n.logger.Infow("path set", "session", n.session, "path", n.path.String())
}

// Done returns whether the last path was completed. It stays true until the next SetPath.
func (n *Navigator) Done() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}

// State returns the current phase.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Target returns the waypoint being driven to.
func (n *Navigator) Target() (spatialmath.Waypoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cursor >= n.path.Len() {
		return spatialmath.Waypoint{}, ErrPathExhausted
	}
	return n.path.waypoints[n.cursor], nil
}

// Stop abandons the path and stops the base.
func (n *Navigator) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = false
	n.state = Idle
	return multierr.Combine(n.release(), n.Base.Stop(ctx, base.Both))
}

func (n *Navigator) release() error {
	if n.lease == nil {
		return nil
	}
	err := n.lease.Release()
	n.lease = nil
	return err
}

func (n *Navigator) transition(to State) {
	n.logger.Debugw("navigation state", "session", n.session, "from", n.state.String(), "to", to.String())
	n.state = to
}

// Tick advances the navigator by at most one decision.
func (n *Navigator) Tick(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.active {
		return nil
	}

	// The orientation is always refreshed before anything is decided from it.
	pose := n.Odometer.Pose()
	n.orientation = pose.Heading()

	if n.commanded {
		moving, err := n.Base.IsMoving(ctx)
		if err != nil {
			return err
		}
		if !moving {
			// Decide on the next tick, once the odometer has caught up with the whole motion.
			n.commanded = false
			return nil
		}
		if n.state != Moving {
			return nil
		}
	}

	switch n.state {
	case Idle:
		if n.cursor >= len(n.targets) {
			n.transition(Done)
			return nil
		}
		dist, angle := n.geometry(pose)
		switch {
		case dist <= n.distThreshold:
			n.transition(ReachedWaypoint)
		case math.Abs(angle) > n.angleThreshold:
			n.transition(Rotating)
		default:
			n.startMoving()
		}
	case Rotating:
		dist, angle := n.geometry(pose)
		if math.Abs(angle) > n.angleThreshold {
			if err := n.rotate(ctx, angle); err != nil {
				return err
			}
			return nil
		}
		if dist > n.distThreshold {
			n.startMoving()
		} else {
			n.transition(ReachedWaypoint)
		}
	case Moving:
		return n.tickMoving(ctx, pose)
	case Avoiding:
		if rng, ok := n.Hub.Latest(sensor.FrontRange); ok && rng < n.obstacleCM {
			return nil
		}
		n.logger.Infow("obstacle cleared", "session", n.session)
		n.transition(Rotating)
	case ReachedWaypoint:
		if n.cursor >= len(n.targets) {
			n.logger.Errorw("reached a waypoint past the end of the path", "session", n.session, "cursor", n.cursor)
			n.active = false
			n.transition(Idle)
			return errors.Wrapf(ErrPathExhausted, "cursor %d of %d", n.cursor, len(n.targets))
		}
		n.logger.Infow("waypoint reached",
			"session", n.session, "waypoint", n.path.waypoints[n.cursor].String(), "pose", pose.String())
		n.cursor++
		n.minDist = math.Inf(1)
		if n.cursor >= len(n.targets) {
			n.transition(Done)
			return nil
		}
		dist, angle := n.geometry(pose)
		switch {
		case dist <= n.distThreshold:
			n.transition(ReachedWaypoint)
		case math.Abs(angle) > n.angleThreshold:
			n.transition(Rotating)
		default:
			n.startMoving()
		}
	case Done:
		n.done = true
		n.active = false
		n.transition(Idle)
		n.logger.Infow("path complete", "session", n.session, "pose", pose.String())
		return n.release()
	}
	return nil
}

// tickMoving runs both while a forward step executes and after it ends. Reaching the target
// wins over overshooting it, which wins over drifting off course.
func (n *Navigator) tickMoving(ctx context.Context, pose spatialmath.Pose) error {
	dist, angle := n.geometry(pose)
	if dist < n.minDist {
		n.minDist = dist
	}
	switch {
	case dist <= n.distThreshold:
		n.transition(ReachedWaypoint)
		return n.halt(ctx)
	case dist > n.minDist+overshootCM:
		n.logger.Debugw("overshot waypoint", "session", n.session, "distance", dist, "min_distance", n.minDist)
		n.transition(Rotating)
		return n.halt(ctx)
	case math.Abs(angle) > n.angleThreshold:
		n.transition(Rotating)
		return n.halt(ctx)
	}
	if n.obstacleCM > 0 {
		if rng, ok := n.Hub.Latest(sensor.FrontRange); ok && rng < n.obstacleCM {
			n.logger.Warnw("obstacle ahead", "session", n.session, "range", rng)
			n.transition(Avoiding)
			return n.halt(ctx)
		}
	}
	if n.commanded {
		return nil
	}
	step := dist
	if n.maxStep > 0 {
		step = math.Min(step, n.maxStep)
	}
	if err := n.Base.SetWheelSpeed(ctx, base.Both, n.motion.ForwardSpeedDegsPerSec); err != nil {
		return err
	}
	if err := n.Base.MoveForward(ctx, step, true); err != nil {
		return err
	}
	n.commanded = true
	return nil
}

// startMoving enters Moving with a fresh closest approach, since re-aiming after an overshoot
// leaves the robot further away than before.
func (n *Navigator) startMoving() {
	n.minDist = math.Inf(1)
	n.transition(Moving)
}

func (n *Navigator) rotate(ctx context.Context, angle float64) error {
	if err := n.Base.SetWheelSpeed(ctx, base.Both, n.motion.RotateSpeedDegsPerSec); err != nil {
		return err
	}
	if err := n.Base.Rotate(ctx, utils.RadToDeg(angle), true); err != nil {
		return err
	}
	n.commanded = true
	return nil
}

func (n *Navigator) halt(ctx context.Context) error {
	if !n.commanded {
		return nil
	}
	if err := n.Base.Stop(ctx, base.Both); err != nil {
		return err
	}
	return nil
}

// geometry returns the distance to the current target and the signed turn that faces it.
func (n *Navigator) geometry(pose spatialmath.Pose) (float64, float64) {
	toTarget := n.targets[n.cursor].Sub(pose.Point())
	return toTarget.Norm(), spatialmath.SignedAngle(n.orientation, toTarget)
}
