// Package mission sequences the legs of a match: localizing, navigating to the crossing,
// crossing it and searching for the flag. It owns no motion logic of its own; each tick it
// advances whichever sub-machine the current leg runs.
package mission

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/components/signaler"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/localizer"
	"github.com/ecse211/gridbot/services/navigation"
	"github.com/ecse211/gridbot/services/odometry"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

// State is which sub-machine the controller is running.
type State int

// The controller states.
const (
	Idle State = iota
	Localizing
	Navigating
	Crossing
	Searching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Localizing:
		return "localizing"
	case Navigating:
		return "navigating"
	case Crossing:
		return "crossing"
	case Searching:
		return "searching"
	}
	return "unknown"
}

// A Localizer is the localization coordinator as the controller drives it.
type Localizer interface {
	StartLocalization(ref spatialmath.Waypoint, corner int) error
	Tick(ctx context.Context)
	Done() bool
	Err() error
}

// A Navigator follows paths.
type Navigator interface {
	SetPath(path *navigation.Path)
	Tick(ctx context.Context) error
	Done() bool
	Stop(ctx context.Context) error
}

// A Crosser gets the robot from one end of the obstacle crossing to the other.
type Crosser interface {
	StartCrossing(from, to spatialmath.Waypoint) error
	// Tick advances the crossing and reports whether the robot is across.
	Tick(ctx context.Context) (bool, error)
}

// A Searcher looks for the flag inside a zone.
type Searcher interface {
	StartSearch(zone config.Zone, flagColor int) error
	// Tick advances the search and reports whether the flag was found.
	Tick(ctx context.Context) (bool, error)
}

var (
	_ Localizer = &localizer.Coordinator{}
	_ Navigator = &navigation.Navigator{}
)

// Deps are the sub-machines and collaborators the controller sequences.
type Deps struct {
	Localizer Localizer
	Navigator Navigator
	Crosser   Crosser
	Searcher  Searcher
	Odometer  odometry.PoseEstimator
	Signaler  signaler.Signaler
	// Clock drives the tick loop. Nil uses the wall clock.
	Clock clock.Clock
}

type leg struct {
	name  string
	state State
	start func() error
}

// A Controller runs the mission tick loop.
type Controller struct {
	Deps
	match    *config.MatchConfig
	geometry config.GeometryConfig
	period   time.Duration
	startRef spatialmath.Waypoint
	legs     []leg
	logger   logging.Logger

	mu       sync.Mutex
	state    State
	leg      int
	session  string
	started  bool
	finished bool
	err      error

	workersMu sync.Mutex
	workers   *utils.StoppableWorkers
}

// New returns a controller for the match in cfg. The match parameters are read once here.
func New(deps Deps, cfg *config.Config, logger logging.Logger) (*Controller, error) {
	for name, dep := range map[string]interface{}{
		"localizer": deps.Localizer,
		"navigator": deps.Navigator,
		"crosser":   deps.Crosser,
		"searcher":  deps.Searcher,
		"odometer":  deps.Odometer,
	} {
		if dep == nil {
			return nil, errors.Errorf("mission needs a %s", name)
		}
	}
	match := cfg.Match
	startRef, err := localizer.StartReference(match.StartCorner, cfg.Geometry.BoardTiles)
	if err != nil {
		return nil, err
	}
	if match.HomeZone != (config.Zone{}) {
		for _, w := range navigation.ElbowPath(startRef, match.CrossingStart).Waypoints() {
			if !match.HomeZone.Contains(w) {
				return nil, errors.Errorf("path to the crossing leaves the home zone at %s", w.String())
			}
		}
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	c := &Controller{
		Deps:     deps,
		match:    &match,
		geometry: cfg.Geometry,
		period:   cfg.Timing.TickPeriod(),
		startRef: startRef,
		logger:   logger,
	}
	c.legs = c.plan()
	return c, nil
}

func (c *Controller) plan() []leg {
	corner := c.match.StartCorner
	return []leg{
		{"initial localization", Localizing, func() error {
			return c.Localizer.StartLocalization(c.startRef, corner)
		}},
		{"navigate to crossing", Navigating, func() error {
			c.Navigator.SetPath(navigation.ElbowPath(c.startRef, c.match.CrossingStart))
			return nil
		}},
		{"localize before crossing", Localizing, func() error {
			return c.Localizer.StartLocalization(c.match.CrossingStart, corner)
		}},
		{"cross", Crossing, func() error {
			return c.Crosser.StartCrossing(c.match.CrossingStart, c.match.CrossingEnd)
		}},
		{"localize after crossing", Localizing, func() error {
			return c.Localizer.StartLocalization(c.match.CrossingEnd, corner)
		}},
		{"search", Searching, func() error {
			return c.Searcher.StartSearch(c.match.SearchZone, c.match.FlagColor)
		}},
	}
}

// StartPose returns the centre of the start square of corner, facing the centre of the board.
func StartPose(corner int, geometry config.GeometryConfig) (spatialmath.Pose, error) {
	far := float64(geometry.BoardTiles) - 0.5
	var square spatialmath.Waypoint
	switch corner {
	case 0:
		square = spatialmath.NewWaypoint(0.5, 0.5)
	case 1:
		square = spatialmath.NewWaypoint(far, 0.5)
	case 2:
		square = spatialmath.NewWaypoint(far, far)
	case 3:
		square = spatialmath.NewWaypoint(0.5, far)
	default:
		return spatialmath.Pose{}, errors.Errorf("corner must be in [0, 3], not %d", corner)
	}
	centre := float64(geometry.BoardTiles) / 2
	heading := math.Atan2(centre-square.Y, centre-square.X)
	pos := square.Point(geometry.TileLengthCM)
	return spatialmath.NewPose(pos.X, pos.Y, heading), nil
}

// Begin seeds the odometer with the start pose and starts the first leg. Ticks do nothing
// until it is called.
func (c *Controller) Begin() error {
	pose, err := StartPose(c.match.StartCorner, c.geometry)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("mission already started")
	}
	c.Odometer.SetPosition(pose, odometry.AllFields)
	c.started = true
	c.session = uuid.NewString()
	c.logger.Infow("mission started", "session", c.session, "corner", c.match.StartCorner, "pose", pose.String())
	c.startLeg(0)
	return c.err
}

// Start begins the mission and runs the tick loop in the background until Close.
func (c *Controller) Start() error {
	if err := c.Begin(); err != nil {
		return err
	}
	c.workersMu.Lock()
	defer c.workersMu.Unlock()
	c.workers = utils.NewStoppableWorkerWithTicker(c.Clock, c.period, c.Tick)
	return nil
}

// Close stops the tick loop.
func (c *Controller) Close() {
	c.workersMu.Lock()
	workers := c.workers
	c.workers = nil
	c.workersMu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}

// startLeg must be called with mu held. A leg that cannot start fails the mission.
func (c *Controller) startLeg(i int) {
	if i >= len(c.legs) {
		c.finished = true
		c.state = Idle
		c.logger.Infow("mission complete", "session", c.session)
		return
	}
	l := c.legs[i]
	c.leg = i
	c.logger.Infow("leg started", "session", c.session, "leg", l.name, "state", l.state.String())
	if err := l.start(); err != nil {
		c.failLocked(errors.Wrapf(err, "cannot start %s", l.name))
		return
	}
	c.state = l.state
}

func (c *Controller) failLocked(err error) {
	c.logger.Errorw("mission failed", "session", c.session, "state", c.state.String(), "error", err)
	c.err = err
	c.state = Idle
}

// Tick advances the active sub-machine. A finished sub-machine starts the next leg on the
// same tick. Tick must only be called from one goroutine; the lock is not held while the
// sub-machine runs, so State and Leg stay readable during a blocking localization.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	var (
		done bool
		err  error
	)
	switch state {
	case Idle:
		return
	case Localizing:
		c.Localizer.Tick(ctx)
		err = c.Localizer.Err()
		done = c.Localizer.Done()
	case Navigating:
		err = c.Navigator.Tick(ctx)
		done = c.Navigator.Done()
	case Crossing:
		done, err = c.Crosser.Tick(ctx)
	case Searching:
		done, err = c.Searcher.Tick(ctx)
		if done {
			c.signal(ctx, signaler.FlagCaptured)
		}
	}

	if err != nil {
		if stopErr := c.Navigator.Stop(ctx); stopErr != nil {
			c.logger.Warnw("cannot stop navigator", "error", stopErr)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failLocked(errors.Wrap(err, c.legs[c.leg].name))
		return
	}
	if done {
		c.startLeg(c.leg + 1)
	}
}

func (c *Controller) signal(ctx context.Context, event signaler.Event) {
	if c.Signaler == nil {
		return
	}
	if err := c.Signaler.Signal(ctx, event); err != nil {
		c.logger.Warnw("cannot signal", "event", event.String(), "error", err)
	}
}

// State returns the active sub-machine.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Leg returns the name of the current leg.
func (c *Controller) Leg() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return "finished"
	}
	return c.legs[c.leg].name
}

// Finished returns whether every leg completed.
func (c *Controller) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Err returns the error that stopped the mission, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
