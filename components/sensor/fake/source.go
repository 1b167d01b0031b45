// Package fake implements sensors that read the board as seen from a simulated world.
package fake

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	fakebase "github.com/ecse211/gridbot/components/base/fake"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/spatialmath"
)

// holdSteps bounds how many world steps a light reading is held for. A channel nobody sampled
// for longer reads the current floor rather than a stale line.
const holdSteps = 100

var _ sensor.Source = &Source{}

type light struct {
	lateral float64
	current float64
	held    float64
	steps   int
}

// A Source reads the simulated board: the distance to the walls straight ahead and the floor
// reflectance under each light sensor.
type Source struct {
	geometry config.GeometryConfig
	sim      config.SimConfig

	mu    sync.Mutex
	pose  spatialmath.Pose
	left  light
	right light
}

// NewSource returns a source following the robot in world.
func NewSource(world *fakebase.World, sim config.SimConfig) *Source {
	s := &Source{
		geometry: world.Geometry,
		sim:      sim,
		left:     light{lateral: sim.LightSensorSpacingCM / 2},
		right:    light{lateral: -sim.LightSensorSpacingCM / 2},
	}
	s.left.held = math.Inf(1)
	s.right.held = math.Inf(1)
	world.OnStep(s.observe)
	return s
}

func (s *Source) observe(pose spatialmath.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = pose
	for _, l := range []*light{&s.left, &s.right} {
		l.current = s.reflectance(s.sensorPosition(pose, l.lateral))
		l.steps++
		if l.steps <= holdSteps {
			l.held = math.Min(l.held, l.current)
		} else {
			l.held = l.current
		}
	}
}

// Sample returns one reading of ch. Light readings are the darkest floor seen since the
// previous sample, so a line crossed between samples is not missed.
func (s *Source) Sample(ctx context.Context, ch sensor.Channel) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ch {
	case sensor.FrontRange:
		return s.rangeAhead(), nil
	case sensor.FrontColor:
		return s.sim.Color, nil
	case sensor.LeftLight:
		return s.left.sample(), nil
	case sensor.RightLight:
		return s.right.sample(), nil
	default:
		return 0, errors.Errorf("simulated sensors cannot read %s", ch)
	}
}

func (l *light) sample() float64 {
	v := l.held
	l.held = l.current
	l.steps = 0
	return v
}

func (s *Source) sensorPosition(pose spatialmath.Pose, lateral float64) (float64, float64) {
	sin, cos := math.Sincos(pose.Theta)
	offset := s.geometry.LightSensorOffsetCM
	return pose.X + offset*cos - lateral*sin, pose.Y + offset*sin + lateral*cos
}

func (s *Source) reflectance(x, y float64) float64 {
	if s.onLine(x) || s.onLine(y) {
		return s.sim.LineLevel
	}
	return s.sim.FloorLevel
}

// onLine returns whether coordinate v is on one of the grid lines inside the board.
func (s *Source) onLine(v float64) bool {
	tile := s.geometry.TileLengthCM
	k := math.Round(v / tile)
	if k < 1 || k > float64(s.geometry.BoardTiles-1) {
		return false
	}
	return math.Abs(v-k*tile) <= s.sim.LineWidthCM/2
}

// rangeAhead casts a ray from the robot's centre along its heading to the board walls.
func (s *Source) rangeAhead() float64 {
	size := s.geometry.TileLengthCM * float64(s.geometry.BoardTiles)
	sin, cos := math.Sincos(s.pose.Theta)
	dist := math.Inf(1)
	if cos > 1e-12 {
		dist = math.Min(dist, (size-s.pose.X)/cos)
	} else if cos < -1e-12 {
		dist = math.Min(dist, -s.pose.X/cos)
	}
	if sin > 1e-12 {
		dist = math.Min(dist, (size-s.pose.Y)/sin)
	} else if sin < -1e-12 {
		dist = math.Min(dist, -s.pose.Y/sin)
	}
	return math.Max(0, math.Min(dist, s.sim.MaxRangeCM))
}
