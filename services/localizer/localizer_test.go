package localizer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/ecse211/gridbot/components/base"
	fakebase "github.com/ecse211/gridbot/components/base/fake"
	"github.com/ecse211/gridbot/components/sensor"
	fakesensor "github.com/ecse211/gridbot/components/sensor/fake"
	"github.com/ecse211/gridbot/components/signaler"
	fakesignaler "github.com/ecse211/gridbot/components/signaler/fake"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/odometry"
	"github.com/ecse211/gridbot/spatialmath"
)

const degree = math.Pi / 180

type harness struct {
	cfg     *config.Config
	world   *fakebase.World
	base    base.Base
	hub     *sensor.Hub
	odo     *odometry.Odometer
	signals *fakesignaler.Signaler
	deps    Deps
	logger  logging.Logger
}

// newHarness runs a simulated robot at truePose, ten times faster than real time, whose
// odometer believes it is at estimate.
func newHarness(t *testing.T, cfg *config.Config, truePose, estimate spatialmath.Pose) *harness {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	world := fakebase.NewWorld(cfg.Geometry, truePose, logger)
	b, err := fakebase.NewBase(world, logger)
	test.That(t, err, test.ShouldBeNil)

	hub := sensor.NewHub(cfg.Sensors.BufferSize, logger)
	poller := sensor.NewPoller(hub, fakesensor.NewSource(world, cfg.Sim), logger)
	poller.Start(nil, 2*time.Millisecond)

	odo, err := odometry.New(world, cfg.Geometry, logger)
	test.That(t, err, test.ShouldBeNil)
	odo.SetPosition(estimate, odometry.AllFields)
	test.That(t, odo.Start(ctx, nil, 2*time.Millisecond), test.ShouldBeNil)

	world.Start(time.Millisecond, 10*time.Millisecond)
	t.Cleanup(func() {
		world.Close()
		poller.Close()
		odo.Close()
	})

	signals := &fakesignaler.Signaler{}
	return &harness{
		cfg:     cfg,
		world:   world,
		base:    b,
		hub:     hub,
		odo:     odo,
		signals: signals,
		deps:    Deps{Base: b, Odometer: odo, Hub: hub, Signaler: signals},
		logger:  logger,
	}
}

func (h *harness) assertRefsReleased(t *testing.T) {
	t.Helper()
	for _, ch := range sensor.Channels() {
		test.That(t, h.hub.Refs(ch), test.ShouldEqual, 0)
	}
}

func TestReferences(t *testing.T) {
	heading, err := CornerHeading(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, heading, test.ShouldAlmostEqual, 315*degree, 1e-12)
	_, err = CornerHeading(4)
	test.That(t, err, test.ShouldNotBeNil)

	sx, sy, err := Quadrant(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sx, test.ShouldEqual, -1.0)
	test.That(t, sy, test.ShouldEqual, 1.0)

	ref, err := StartReference(2, 12)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ref, test.ShouldResemble, spatialmath.NewWaypoint(11, 11))
	_, err = StartReference(-1, 12)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGridLineSimpleScenario(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	start := spatialmath.NewPose(15.24, 15.24, 0)
	h := newHarness(t, cfg, start, start)

	g := NewGridLineLocalizer(h.deps, cfg, h.logger)
	test.That(t, g.Localize(ctx, spatialmath.NewWaypoint(1, 1), 0, false), test.ShouldBeNil)

	want := cfg.Geometry.TileLengthCM - cfg.Geometry.LightSensorOffsetCM
	estimate := h.odo.Pose()
	test.That(t, estimate.X, test.ShouldAlmostEqual, want, 0.5)
	test.That(t, math.Abs(spatialmath.WrapToPi(estimate.Theta)), test.ShouldBeLessThan, 1e-6)
	test.That(t, spatialmath.PoseAlmostEqual(estimate, h.world.TruePose(), 0.5), test.ShouldBeTrue)

	test.That(t, h.signals.Count(signaler.LineFound), test.ShouldEqual, 2)
	test.That(t, h.signals.Count(signaler.LocalizationComplete), test.ShouldEqual, 1)
	h.assertRefsReleased(t)
}

func TestGridLineRemovesLargeDrift(t *testing.T) {
	for _, tc := range []struct {
		name     string
		estimate spatialmath.Pose
	}{
		{"ahead of the line", spatialmath.NewPose(35.24, 15.24, 0)},
		{"a tile off on both axes", spatialmath.NewPose(15.24+30.48, 15.24-30.48, 0)},
		{"past the far line", spatialmath.NewPose(15.24+50, 15.24+40, 0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := config.Default()
			start := spatialmath.NewPose(15.24, 15.24, 0)
			h := newHarness(t, cfg, start, tc.estimate)

			g := NewGridLineLocalizer(h.deps, cfg, h.logger)
			test.That(t, g.Localize(ctx, spatialmath.NewWaypoint(1, 1), 0, false), test.ShouldBeNil)

			want := cfg.Geometry.TileLengthCM - cfg.Geometry.LightSensorOffsetCM
			estimate := h.odo.Pose()
			test.That(t, estimate.X, test.ShouldAlmostEqual, want, 0.5)
			test.That(t, spatialmath.PoseAlmostEqual(estimate, h.world.TruePose(), 0.5), test.ShouldBeTrue)
			h.assertRefsReleased(t)
		})
	}
}

func TestPerimeterCorrectsHeading(t *testing.T) {
	for _, tc := range []struct {
		name      string
		trueTheta float64
	}{
		{"facing away from the walls", 0},
		{"facing the corner", 225 * degree},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := config.Default()
			truePose := spatialmath.NewPose(15.24, 15.24, tc.trueTheta)
			estimate := spatialmath.NewPose(15.24, 15.24, tc.trueTheta+20*degree)
			h := newHarness(t, cfg, truePose, estimate)

			p := NewPerimeterLocalizer(h.deps, cfg, h.logger)
			correction, err := p.Localize(ctx, 0)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, correction, test.ShouldAlmostEqual, -20*degree, 2*degree)

			headingError := spatialmath.WrapToPi(h.odo.Pose().Theta - h.world.TruePose().Theta)
			test.That(t, math.Abs(headingError), test.ShouldBeLessThan, 2*degree)
			test.That(t, h.signals.Count(signaler.EdgeCaptured), test.ShouldEqual, 2)
			h.assertRefsReleased(t)
		})
	}
}

func TestPerimeterEdgeTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Localization.EdgeTimeoutMS = 50
	start := spatialmath.NewPose(15.24, 15.24, 0)
	h := newHarness(t, cfg, start, start)
	// The world stands still, so no edge ever passes.
	h.world.Close()

	p := NewPerimeterLocalizer(h.deps, cfg, h.logger)
	_, err := p.Localize(context.Background(), 0)
	test.That(t, errors.Is(err, ErrEdgeNotFound), test.ShouldBeTrue)
	moving, err := h.base.IsMoving(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)
	h.assertRefsReleased(t)
}

func TestLineSearchSweepsBack(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Localization.LineTimeoutMS = 200
	cfg.Localization.MaxLineRetries = 3
	// The sensors start just past the line at x = 30.48.
	start := spatialmath.NewPose(32, 15.24, 0)
	h := newHarness(t, cfg, start, start)

	g := NewGridLineLocalizer(h.deps, cfg, h.logger)
	lease := h.hub.Acquire(sensor.LeftLight, sensor.RightLight)
	defer lease.Release()
	test.That(t, g.fixAxis(ctx, axisX, 0, 1), test.ShouldBeNil)

	want := cfg.Geometry.TileLengthCM - cfg.Geometry.LightSensorOffsetCM
	test.That(t, h.odo.Pose().X, test.ShouldAlmostEqual, want, 1e-9)
	test.That(t, h.world.TruePose().X, test.ShouldAlmostEqual, want, 0.5)
}

func TestLineNotFound(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Localization.LineTimeoutMS = 50
	cfg.Localization.MaxLineRetries = 1
	start := spatialmath.NewPose(20, 15.24, 0)
	h := newHarness(t, cfg, start, start)

	g := NewGridLineLocalizer(h.deps, cfg, h.logger)
	err := g.Localize(ctx, spatialmath.NewWaypoint(1, 1), 0, false)
	test.That(t, errors.Is(err, ErrLineNotFound), test.ShouldBeTrue)
	moving, _ := h.base.IsMoving(ctx)
	test.That(t, moving, test.ShouldBeFalse)
	h.assertRefsReleased(t)
}

func runCoordinator(ctx context.Context, t *testing.T, c *Coordinator) {
	t.Helper()
	for i := 0; i < 20 && !c.Done(); i++ {
		c.Tick(ctx)
		test.That(t, c.Err(), test.ShouldBeNil)
	}
	test.That(t, c.Done(), test.ShouldBeTrue)
	test.That(t, c.State(), test.ShouldEqual, Idle)
}

func TestCoordinatorFromStartCorner(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	truePose := spatialmath.NewPose(15.24, 15.24, 0)
	h := newHarness(t, cfg, truePose, spatialmath.NewPose(15.24, 15.24, 45*degree))

	c := NewCoordinator(h.deps, cfg, h.logger)
	test.That(t, c.StartLocalization(spatialmath.NewWaypoint(1, 1), 0), test.ShouldBeNil)
	test.That(t, c.Done(), test.ShouldBeFalse)
	runCoordinator(ctx, t, c)

	test.That(t, spatialmath.PoseAlmostEqual(h.odo.Pose(), h.world.TruePose(), 0.5), test.ShouldBeTrue)
	test.That(t, h.signals.Events(), test.ShouldResemble, []signaler.Event{
		signaler.EdgeCaptured, signaler.EdgeCaptured,
		signaler.LineFound, signaler.LineFound,
		signaler.LocalizationComplete,
	})
	h.assertRefsReleased(t)

	// Done holds until the next localization starts.
	c.Tick(ctx)
	test.That(t, c.Done(), test.ShouldBeTrue)
	test.That(t, c.StartLocalization(spatialmath.NewWaypoint(1, 1), 0), test.ShouldBeNil)
	test.That(t, c.Done(), test.ShouldBeFalse)
	c.AbortLocalization()
	c.Tick(ctx)
	test.That(t, c.State(), test.ShouldEqual, Idle)
	test.That(t, c.Done(), test.ShouldBeFalse)
}

func TestCoordinatorAwayFromStartSkipsPerimeter(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	tile := cfg.Geometry.TileLengthCM
	truePose := spatialmath.NewPose(3*tile, 3*tile, 0)
	h := newHarness(t, cfg, truePose, spatialmath.NewPose(3*tile+1, 3*tile-1, 2*degree))

	c := NewCoordinator(h.deps, cfg, h.logger)
	test.That(t, c.StartLocalization(spatialmath.NewWaypoint(3, 3), 0), test.ShouldBeNil)
	runCoordinator(ctx, t, c)

	test.That(t, h.signals.Count(signaler.EdgeCaptured), test.ShouldEqual, 0)
	test.That(t, spatialmath.PoseAlmostEqual(h.odo.Pose(), h.world.TruePose(), 0.5), test.ShouldBeTrue)
	test.That(t, h.odo.Pose().X, test.ShouldAlmostEqual, 3*tile-cfg.Geometry.LightSensorOffsetCM, 0.5)
}

func TestCoordinatorRecoversFarEstimate(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	tile := cfg.Geometry.TileLengthCM
	truePose := spatialmath.NewPose(3*tile, 3*tile, 0)
	// The crossing left the estimate more than a tile from the truth.
	h := newHarness(t, cfg, truePose, spatialmath.NewPose(4*tile+10, 2*tile-12, 3*degree))

	c := NewCoordinator(h.deps, cfg, h.logger)
	test.That(t, c.StartLocalization(spatialmath.NewWaypoint(3, 3), 0), test.ShouldBeNil)
	runCoordinator(ctx, t, c)

	test.That(t, spatialmath.PoseAlmostEqual(h.odo.Pose(), h.world.TruePose(), 0.5), test.ShouldBeTrue)
	test.That(t, h.odo.Pose().X, test.ShouldAlmostEqual, 3*tile-cfg.Geometry.LightSensorOffsetCM, 0.5)
	h.assertRefsReleased(t)
}

func TestCoordinatorSurfacesErrors(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Localization.LineTimeoutMS = 50
	cfg.Localization.MaxLineRetries = 0
	start := spatialmath.NewPose(3*cfg.Geometry.TileLengthCM, 60, 0)
	h := newHarness(t, cfg, start, start)

	c := NewCoordinator(h.deps, cfg, h.logger)
	test.That(t, c.StartLocalization(spatialmath.NewWaypoint(3, 3), 0), test.ShouldBeNil)
	for i := 0; i < 5; i++ {
		c.Tick(ctx)
	}
	test.That(t, errors.Is(c.Err(), ErrLineNotFound), test.ShouldBeTrue)
	test.That(t, c.State(), test.ShouldEqual, Idle)
	test.That(t, c.Done(), test.ShouldBeFalse)
	test.That(t, c.StartLocalization(spatialmath.NewWaypoint(3, 3), 7), test.ShouldNotBeNil)
}
