// Package odometry estimates the robot's pose by dead reckoning from its wheel encoders.
package odometry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

// Fields selects pose components for Position and SetPosition.
type Fields uint8

// The pose components.
const (
	FieldX Fields = 1 << iota
	FieldY
	FieldTheta

	AllFields = FieldX | FieldY | FieldTheta
)

// A PoseEstimator is what the localizers and navigator need from the odometer.
type PoseEstimator interface {
	Pose() spatialmath.Pose
	SetPosition(pose spatialmath.Pose, fields Fields)
	WaitForTicks(ctx context.Context, n int) error
}

var _ PoseEstimator = &Odometer{}

// An Odometer integrates wheel rotations into a pose. The pose is only ever read or written
// whole, under one lock.
type Odometer struct {
	encoders      base.WheelEncoders
	wheelRadiusCM float64
	wheelBaseCM   float64
	logger        logging.Logger

	mu     sync.Mutex
	pose   spatialmath.Pose
	lastL  float64
	lastR  float64
	primed bool
	ticks  int64
	ticked chan struct{}

	workersMu sync.Mutex
	workers   *utils.StoppableWorkers
}

// New returns a stopped odometer at the origin.
func New(encoders base.WheelEncoders, geometry config.GeometryConfig, logger logging.Logger) (*Odometer, error) {
	if geometry.WheelRadiusCM <= 0 || geometry.WheelBaseCM <= 0 {
		return nil, errors.Errorf("odometer needs a positive wheel radius and base, got %.3f and %.3f",
			geometry.WheelRadiusCM, geometry.WheelBaseCM)
	}
	return &Odometer{
		encoders:      encoders,
		wheelRadiusCM: geometry.WheelRadiusCM,
		wheelBaseCM:   geometry.WheelBaseCM,
		logger:        logger,
		ticked:        make(chan struct{}),
	}, nil
}

// Update reads the encoders once and integrates the motion since the previous read. The first
// read only records a baseline. If the encoders cannot be read the tick is skipped and the
// baseline kept.
func (o *Odometer) Update(ctx context.Context) error {
	left, right, err := o.encoders.WheelPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot read wheel encoders")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.primed {
		dL := o.wheelRadiusCM * math.Pi * (left - o.lastL) / 180
		dR := o.wheelRadiusCM * math.Pi * (right - o.lastR) / 180
		dist := (dL + dR) / 2
		theta := spatialmath.NormalizeRadians(o.pose.Theta + (dR-dL)/o.wheelBaseCM)
		o.pose = spatialmath.Pose{
			X:     o.pose.X + dist*math.Cos(theta),
			Y:     o.pose.Y + dist*math.Sin(theta),
			Theta: theta,
		}
	}
	o.lastL, o.lastR = left, right
	o.primed = true
	o.ticks++
	close(o.ticked)
	o.ticked = make(chan struct{})
	return nil
}

// Ticks returns how many encoder reads have been integrated.
func (o *Odometer) Ticks() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ticks
}

// WaitForTicks blocks until n more ticks have been integrated.
func (o *Odometer) WaitForTicks(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		o.mu.Lock()
		ticked := o.ticked
		o.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticked:
		}
	}
	return nil
}

// Pose returns a consistent snapshot of the estimate.
func (o *Odometer) Pose() spatialmath.Pose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pose
}

// Position returns the selected components of the estimate; the rest are zero.
func (o *Odometer) Position(fields Fields) spatialmath.Pose {
	pose := o.Pose()
	var out spatialmath.Pose
	if fields&FieldX != 0 {
		out.X = pose.X
	}
	if fields&FieldY != 0 {
		out.Y = pose.Y
	}
	if fields&FieldTheta != 0 {
		out.Theta = pose.Theta
	}
	return out
}

// SetPosition overwrites the selected components of the estimate at once.
func (o *Odometer) SetPosition(pose spatialmath.Pose, fields Fields) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if fields&FieldX != 0 {
		o.pose.X = pose.X
	}
	if fields&FieldY != 0 {
		o.pose.Y = pose.Y
	}
	if fields&FieldTheta != 0 {
		o.pose.Theta = spatialmath.NormalizeRadians(pose.Theta)
	}
	o.logger.Debugw("pose set", "pose", o.pose.String(), "fields", int(fields))
}

// SetX overwrites x.
func (o *Odometer) SetX(x float64) {
	o.SetPosition(spatialmath.Pose{X: x}, FieldX)
}

// SetY overwrites y.
func (o *Odometer) SetY(y float64) {
	o.SetPosition(spatialmath.Pose{Y: y}, FieldY)
}

// SetTheta overwrites the heading.
func (o *Odometer) SetTheta(theta float64) {
	o.SetPosition(spatialmath.Pose{Theta: theta}, FieldTheta)
}

// Start records a baseline and then integrates every period on clk until Close. A nil clock
// uses the wall clock.
func (o *Odometer) Start(ctx context.Context, clk clock.Clock, period time.Duration) error {
	o.workersMu.Lock()
	defer o.workersMu.Unlock()
	if o.workers != nil {
		return errors.New("odometer already started")
	}
	if err := o.Update(ctx); err != nil {
		return err
	}
	o.workers = utils.NewStoppableWorkerWithTicker(clk, period, func(ctx context.Context) {
		if err := o.Update(ctx); err != nil && ctx.Err() == nil {
			o.logger.Warnw("skipping odometry tick", "error", err)
		}
	})
	return nil
}

// Close stops integrating.
func (o *Odometer) Close() {
	o.workersMu.Lock()
	workers := o.workers
	o.workers = nil
	o.workersMu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}
