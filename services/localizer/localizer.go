// Package localizer corrects the odometer against the board: a perimeter scan of the walls
// fixes the heading, and driving onto the grid lines fixes the position.
package localizer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/spatialmath"
)

// State is the phase of a localization.
type State int

// The localization phases.
const (
	Idle State = iota
	NotLocalized
	Ultrasonic
	Light
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case NotLocalized:
		return "not_localized"
	case Ultrasonic:
		return "ultrasonic"
	case Light:
		return "light"
	case Done:
		return "done"
	}
	return "unknown"
}

// StartReference returns the intersection nearest the start square of corner, in tiles.
func StartReference(corner, boardTiles int) (spatialmath.Waypoint, error) {
	far := float64(boardTiles - 1)
	switch corner {
	case 0:
		return spatialmath.NewWaypoint(1, 1), nil
	case 1:
		return spatialmath.NewWaypoint(far, 1), nil
	case 2:
		return spatialmath.NewWaypoint(far, far), nil
	case 3:
		return spatialmath.NewWaypoint(1, far), nil
	}
	return spatialmath.Waypoint{}, errors.Errorf("corner must be in [0, 3], not %d", corner)
}

// A Coordinator sequences the two localizers. It is driven by Tick from the mission thread;
// the other methods may be called from anywhere.
type Coordinator struct {
	perimeter  *PerimeterLocalizer
	gridline   *GridLineLocalizer
	boardTiles int
	logger     logging.Logger

	mu            sync.Mutex
	state         State
	session       string
	ref           spatialmath.Waypoint
	corner        int
	skipPerimeter bool
	done          bool
	abort         bool
	err           error
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator(deps Deps, cfg *config.Config, logger logging.Logger) *Coordinator {
	return &Coordinator{
		perimeter:  NewPerimeterLocalizer(deps, cfg, logger.Sublogger("perimeter")),
		gridline:   NewGridLineLocalizer(deps, cfg, logger.Sublogger("gridline")),
		boardTiles: cfg.Geometry.BoardTiles,
		logger:     logger,
	}
}

// StartLocalization begins localizing against the lines through ref, approaching from the
// quadrant of corner. The perimeter scan only runs when ref is the start reference of corner.
func (c *Coordinator) StartLocalization(ref spatialmath.Waypoint, corner int) error {
	startRef, err := StartReference(corner, c.boardTiles)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = uuid.NewString()
	c.ref = ref
	c.corner = corner
	c.skipPerimeter = ref != startRef
	c.done = false
	c.abort = false
	c.err = nil
	c.state = NotLocalized
	c.logger.Infow("localization started",
		"session", c.session, "reference", ref.String(), "corner", corner, "skip_perimeter", c.skipPerimeter)
	return nil
}

// AbortLocalization returns the coordinator to Idle on its next tick.
func (c *Coordinator) AbortLocalization() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abort = true
}

// Done returns whether the last localization finished. It stays true until the next one
// starts.
func (c *Coordinator) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// State returns the current phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns why the last localization ended early, if it did.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Coordinator) transition(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debugw("localization state", "session", c.session, "from", c.state.String(), "to", to.String())
	c.state = to
}

func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Errorw("localization failed", "session", c.session, "state", c.state.String(), "error", err)
	c.err = err
	c.state = Idle
}

// Tick advances the localization by one phase. The scan phases block until they finish.
func (c *Coordinator) Tick(ctx context.Context) {
	c.mu.Lock()
	state, ref, corner, skip := c.state, c.ref, c.corner, c.skipPerimeter
	if c.abort {
		c.abort = false
		c.state = Idle
		c.mu.Unlock()
		if state != Idle {
			c.logger.Infow("localization aborted", "state", state.String())
		}
		return
	}
	c.mu.Unlock()

	switch state {
	case Idle:
	case NotLocalized:
		if skip {
			c.transition(Light)
		} else {
			c.transition(Ultrasonic)
		}
	case Ultrasonic:
		if _, err := c.perimeter.Localize(ctx, corner); err != nil {
			c.fail(err)
			return
		}
		c.transition(Light)
	case Light:
		if err := c.gridline.Localize(ctx, ref, corner, skip); err != nil {
			c.fail(err)
			return
		}
		c.transition(Done)
	case Done:
		c.mu.Lock()
		c.done = true
		c.skipPerimeter = false
		c.state = Idle
		c.logger.Infow("localization done", "session", c.session)
		c.mu.Unlock()
	}
}
