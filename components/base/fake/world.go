// Package fake implements a simulated differential-drive robot: a World that integrates the true
// pose from two simulated motors, and a Base driving them.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/base/wheeled"
	fakemotor "github.com/ecse211/gridbot/components/motor/fake"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

// StepHook observes the true pose after every world step. Hooks run with the world locked and
// must not call back into the World.
type StepHook func(pose spatialmath.Pose)

var _ base.WheelEncoders = &World{}

// A World holds the true state of a simulated robot.
type World struct {
	Geometry config.GeometryConfig

	mu    sync.Mutex
	left  *fakemotor.Motor
	right *fakemotor.Motor
	pose  spatialmath.Pose
	steps int64
	hooks []StepHook

	workers *utils.StoppableWorkers
	logger  logging.Logger
}

// NewWorld returns a stopped world with the robot at start.
func NewWorld(geometry config.GeometryConfig, start spatialmath.Pose, logger logging.Logger) *World {
	return &World{
		Geometry: geometry,
		left:     fakemotor.NewMotor("left", logger.Sublogger("left")),
		right:    fakemotor.NewMotor("right", logger.Sublogger("right")),
		pose:     spatialmath.NewPose(start.X, start.Y, start.Theta),
		logger:   logger,
	}
}

// Left returns the left motor.
func (w *World) Left() *fakemotor.Motor {
	return w.left
}

// Right returns the right motor.
func (w *World) Right() *fakemotor.Motor {
	return w.right
}

// OnStep registers a hook called after every step. The hook is also called once immediately
// with the current pose.
func (w *World) OnStep(hook StepHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, hook)
	hook(w.pose)
}

// Step advances both motors by dt and integrates the true pose exactly.
func (w *World) Step(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dL := wheeled.WheelDegreesToDistance(w.left.Advance(dt), w.Geometry.WheelRadiusCM)
	dR := wheeled.WheelDegreesToDistance(w.right.Advance(dt), w.Geometry.WheelRadiusCM)
	w.pose = integrateArc(w.pose, dL, dR, w.Geometry.WheelBaseCM)
	w.steps++

	for _, hook := range w.hooks {
		hook(w.pose)
	}
}

// integrateArc moves pose along the circular arc traced by wheel displacements dL and dR.
func integrateArc(pose spatialmath.Pose, dL, dR, wheelBase float64) spatialmath.Pose {
	dist := (dL + dR) / 2
	dTheta := (dR - dL) / wheelBase
	theta := pose.Theta

	if math.Abs(dTheta) < 1e-12 {
		pose.X += dist * math.Cos(theta)
		pose.Y += dist * math.Sin(theta)
	} else {
		radius := dist / dTheta
		pose.X += radius * (math.Sin(theta+dTheta) - math.Sin(theta))
		pose.Y -= radius * (math.Cos(theta+dTheta) - math.Cos(theta))
	}
	pose.Theta = spatialmath.NormalizeRadians(theta + dTheta)
	return pose
}

// TruePose returns where the robot actually is.
func (w *World) TruePose() spatialmath.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pose
}

// SetTruePose teleports the robot.
func (w *World) SetTruePose(pose spatialmath.Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pose = spatialmath.NewPose(pose.X, pose.Y, pose.Theta)
}

// Steps returns how many steps the world has taken.
func (w *World) Steps() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps
}

// WheelPositions returns both encoder readings from the same world step.
func (w *World) WheelPositions(ctx context.Context) (float64, float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	left, err := w.left.Position(ctx)
	if err != nil {
		return 0, 0, err
	}
	right, err := w.right.Position(ctx)
	if err != nil {
		return 0, 0, err
	}
	return left, right, nil
}

// Start steps the world by simDt every stepPeriod of wall time until Close. A simDt larger
// than stepPeriod runs the simulation faster than real time.
func (w *World) Start(stepPeriod, simDt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.workers != nil {
		return
	}
	w.workers = utils.NewStoppableWorkerWithTicker(nil, stepPeriod, func(ctx context.Context) {
		w.Step(simDt)
	})
}

// Close stops the stepping worker, if any.
func (w *World) Close() {
	w.mu.Lock()
	workers := w.workers
	w.workers = nil
	w.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}
