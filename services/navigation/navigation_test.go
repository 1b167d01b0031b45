package navigation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ecse211/gridbot/components/base"
	fakebase "github.com/ecse211/gridbot/components/base/fake"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/odometry"
	"github.com/ecse211/gridbot/spatialmath"
)

const simStep = 40 * time.Millisecond

type sim struct {
	world *fakebase.World
	base  base.Base
	odo   *odometry.Odometer
	nav   *Navigator
	logs  *observer.ObservedLogs
}

// newSim steps the world by hand, one step and one odometer update per navigator tick.
func newSim(t *testing.T, cfg *config.Config, start spatialmath.Pose, hub *sensor.Hub) *sim {
	t.Helper()
	logger, logs := logging.NewObservedTestLogger(t)
	world := fakebase.NewWorld(cfg.Geometry, start, logger)
	b, err := fakebase.NewBase(world, logger)
	test.That(t, err, test.ShouldBeNil)
	odo, err := odometry.New(world, cfg.Geometry, logger)
	test.That(t, err, test.ShouldBeNil)
	odo.SetPosition(start, odometry.AllFields)
	test.That(t, odo.Update(context.Background()), test.ShouldBeNil)

	nav, err := New(Deps{Base: b, Odometer: odo, Hub: hub}, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	return &sim{world: world, base: b, odo: odo, nav: nav, logs: logs}
}

func (s *sim) tick(t *testing.T) {
	t.Helper()
	test.That(t, s.nav.Tick(context.Background()), test.ShouldBeNil)
	s.world.Step(simStep)
	test.That(t, s.odo.Update(context.Background()), test.ShouldBeNil)
}

// run ticks until the navigator is done and returns how many ticks that took.
func (s *sim) run(t *testing.T, maxTicks int) int {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		if s.nav.Done() {
			return i
		}
		s.tick(t)
	}
	t.Fatalf("navigator not done after %d ticks, state %s", maxTicks, s.nav.State())
	return 0
}

func TestWaypointConvergence(t *testing.T) {
	cfg := config.Default()
	tile := cfg.Geometry.TileLengthCM
	s := newSim(t, cfg, spatialmath.NewPose(tile, tile, 0), nil)

	path := NewPath(
		spatialmath.NewWaypoint(1, 1),
		spatialmath.NewWaypoint(3, 1),
		spatialmath.NewWaypoint(3, 3),
	)
	s.nav.SetPath(path)
	test.That(t, s.nav.Done(), test.ShouldBeFalse)

	var visited []spatialmath.Waypoint
	for i := 0; i < 5000 && !s.nav.Done(); i++ {
		if target, err := s.nav.Target(); err == nil && (len(visited) == 0 || visited[len(visited)-1] != target) {
			visited = append(visited, target)
		}
		s.tick(t)
	}
	test.That(t, s.nav.Done(), test.ShouldBeTrue)
	test.That(t, s.nav.State(), test.ShouldEqual, Idle)
	test.That(t, visited, test.ShouldResemble, path.Waypoints())
	test.That(t, s.logs.FilterMessage("waypoint reached").Len(), test.ShouldEqual, 3)

	_, err := s.nav.Target()
	test.That(t, errors.Is(err, ErrPathExhausted), test.ShouldBeTrue)

	goal := r3.Vector{X: 3 * tile, Y: 3 * tile}
	test.That(t, s.odo.Pose().DistanceTo(goal), test.ShouldBeLessThanOrEqualTo, cfg.Navigation.DistanceThresholdCM)
	test.That(t, s.world.TruePose().DistanceTo(goal), test.ShouldBeLessThanOrEqualTo, cfg.Navigation.DistanceThresholdCM)

	// Done holds until the next path.
	s.tick(t)
	test.That(t, s.nav.Done(), test.ShouldBeTrue)
	s.nav.SetPath(NewPath(spatialmath.NewWaypoint(3, 2)))
	test.That(t, s.nav.Done(), test.ShouldBeFalse)
	s.run(t, 5000)
}

func TestNavigatorTerminates(t *testing.T) {
	cfg := config.Default()
	for _, tc := range []struct {
		name  string
		start spatialmath.Pose
		path  []spatialmath.Waypoint
	}{
		{"empty path", spatialmath.NewPose(30, 30, 0), nil},
		{"already there", spatialmath.NewPose(30.48, 30.48, 2), []spatialmath.Waypoint{{X: 1, Y: 1}}},
		{"target behind", spatialmath.NewPose(60.96, 60, 0), []spatialmath.Waypoint{{X: 1, Y: 60 / 30.48}}},
		{"zig zag", spatialmath.NewPose(45, 45, 1), []spatialmath.Waypoint{{X: 2, Y: 5}, {X: 7, Y: 3}, {X: 4, Y: 4}, {X: 4, Y: 4.5}}},
		{"diagonal", spatialmath.NewPose(15.24, 15.24, math.Pi/4), []spatialmath.Waypoint{{X: 10.5, Y: 10.5}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newSim(t, cfg, tc.start, nil)
			s.nav.SetPath(NewPath(tc.path...))
			s.run(t, 20000)
			if len(tc.path) > 0 {
				goal := tc.path[len(tc.path)-1].Point(cfg.Geometry.TileLengthCM)
				test.That(t, s.odo.Pose().DistanceTo(goal), test.ShouldBeLessThanOrEqualTo, cfg.Navigation.DistanceThresholdCM)
			}
			moving, err := s.base.IsMoving(context.Background())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, moving, test.ShouldBeFalse)
		})
	}
}

func TestMaxStep(t *testing.T) {
	cfg := config.Default()
	cfg.Navigation.MaxStepCM = 5
	s := newSim(t, cfg, spatialmath.NewPose(30.48, 30.48, 0), nil)
	s.nav.SetPath(NewPath(spatialmath.NewWaypoint(2, 1)))
	s.run(t, 5000)
	test.That(t, s.logs.FilterMessage("waypoint reached").Len(), test.ShouldEqual, 1)
	test.That(t, s.world.TruePose().X, test.ShouldAlmostEqual, 60.96, cfg.Navigation.DistanceThresholdCM)
}

func TestOvershootReaims(t *testing.T) {
	cfg := config.Default()
	tile := cfg.Geometry.TileLengthCM
	s := newSim(t, cfg, spatialmath.NewPose(tile, tile, 0), nil)
	s.nav.SetPath(NewPath(spatialmath.NewWaypoint(3, 1)))

	s.tick(t)
	s.tick(t)
	test.That(t, s.nav.State(), test.ShouldEqual, Moving)

	// The estimate closes in on the target, then jumps past it.
	s.odo.SetPosition(spatialmath.NewPose(3*tile-1.5, tile, 0), odometry.AllFields)
	s.tick(t)
	test.That(t, s.nav.State(), test.ShouldEqual, Moving)
	s.odo.SetPosition(spatialmath.NewPose(3*tile+2.5, tile, 0), odometry.AllFields)
	s.tick(t)
	test.That(t, s.nav.State(), test.ShouldEqual, Rotating)
	test.That(t, s.logs.FilterMessage("overshot waypoint").Len(), test.ShouldEqual, 1)

	s.run(t, 5000)
	test.That(t, s.odo.Pose().DistanceTo(r3.Vector{X: 3 * tile, Y: tile}), test.ShouldBeLessThanOrEqualTo, 1)
}

func TestObstacleAvoidance(t *testing.T) {
	cfg := config.Default()
	cfg.Navigation.ObstacleDistanceCM = 20

	_, err := New(Deps{}, cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	hub := sensor.NewHub(cfg.Sensors.BufferSize, logging.NewTestLogger(t))
	s := newSim(t, cfg, spatialmath.NewPose(30.48, 30.48, 0), hub)
	s.nav.SetPath(NewPath(spatialmath.NewWaypoint(3, 1)))
	test.That(t, hub.Refs(sensor.FrontRange), test.ShouldEqual, 1)

	hub.Update(sensor.FrontRange, 100)
	s.tick(t)
	s.tick(t)
	test.That(t, s.nav.State(), test.ShouldEqual, Moving)

	hub.Update(sensor.FrontRange, 10)
	s.tick(t)
	test.That(t, s.nav.State(), test.ShouldEqual, Avoiding)
	for i := 0; i < 5; i++ {
		s.tick(t)
	}
	test.That(t, s.nav.State(), test.ShouldEqual, Avoiding)
	moving, err := s.base.IsMoving(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)

	hub.Update(sensor.FrontRange, 100)
	s.run(t, 5000)
	test.That(t, hub.Refs(sensor.FrontRange), test.ShouldEqual, 0)
}

func TestElbowPath(t *testing.T) {
	from := spatialmath.NewWaypoint(1, 1)
	for _, tc := range []struct {
		to   spatialmath.Waypoint
		want []spatialmath.Waypoint
	}{
		{spatialmath.NewWaypoint(3, 4), []spatialmath.Waypoint{{X: 3, Y: 1}, {X: 3, Y: 4}}},
		{spatialmath.NewWaypoint(1, 4), []spatialmath.Waypoint{{X: 1, Y: 4}}},
		{spatialmath.NewWaypoint(3, 1), []spatialmath.Waypoint{{X: 3, Y: 1}}},
	} {
		test.That(t, ElbowPath(from, tc.to).Waypoints(), test.ShouldResemble, tc.want)
	}
	test.That(t, ElbowPath(from, spatialmath.NewWaypoint(3, 4)).String(), test.ShouldEqual, "[3, 1] -> [3, 4]")
}

func TestStopAbandonsPath(t *testing.T) {
	cfg := config.Default()
	s := newSim(t, cfg, spatialmath.NewPose(30.48, 30.48, 0), nil)
	s.nav.SetPath(NewPath(spatialmath.NewWaypoint(5, 1)))
	for i := 0; i < 10; i++ {
		s.tick(t)
	}
	test.That(t, s.nav.Stop(context.Background()), test.ShouldBeNil)
	s.world.Step(simStep)
	before := s.world.TruePose()
	for i := 0; i < 10; i++ {
		s.tick(t)
	}
	test.That(t, s.world.TruePose(), test.ShouldResemble, before)
	test.That(t, s.nav.Done(), test.ShouldBeFalse)
}
