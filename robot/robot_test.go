package robot

import (
	"context"
	"math"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/spatialmath"
)

func simConfig() *config.Config {
	cfg := config.Default()
	cfg.Timing.PollerPeriodMS = 2
	cfg.Timing.OdometerPeriodMS = 2
	cfg.Timing.TickPeriodMS = 5
	cfg.Sim.HeadingErrorDeg = 12
	cfg.Sim.Color = 2
	cfg.Match = config.MatchConfig{
		StartCorner:   0,
		CrossingStart: spatialmath.NewWaypoint(2, 1),
		CrossingEnd:   spatialmath.NewWaypoint(2, 3),
		SearchZone: config.Zone{
			LowerLeft:  spatialmath.NewWaypoint(3, 3),
			UpperRight: spatialmath.NewWaypoint(3, 3),
		},
		FlagColor: 2,
	}
	return cfg
}

func TestSimStartPose(t *testing.T) {
	cfg := simConfig()
	pose, err := SimStartPose(cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.PoseAlmostEqual(pose, spatialmath.NewPose(15.24, 15.24, 57*math.Pi/180), 1e-9), test.ShouldBeTrue)

	cfg.Sim.StartXCM, cfg.Sim.StartYCM, cfg.Sim.StartThetaDeg, cfg.Sim.HeadingErrorDeg = 20, 25, 90, 0
	pose, err = SimStartPose(cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.PoseAlmostEqual(pose, spatialmath.NewPose(20, 25, math.Pi/2), 1e-9), test.ShouldBeTrue)
}

func TestBridgeHardwareMissingDevice(t *testing.T) {
	_, err := NewBridgeHardware(context.Background(), "/dev/gridbot-does-not-exist", simConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSimulatedMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a whole simulated match")
	}
	cfg := simConfig()
	logger := logging.NewTestLogger(t)
	hw, err := NewSimHardware(cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	r, err := New(cfg, hw, logger)
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	test.That(t, r.Start(ctx), test.ShouldBeNil)
	test.That(t, r.Start(ctx), test.ShouldNotBeNil)
	defer func() {
		test.That(t, r.Close(context.Background()), test.ShouldBeNil)
	}()

	test.That(t, r.Wait(ctx), test.ShouldBeNil)
	test.That(t, r.Mission.Finished(), test.ShouldBeTrue)

	// The estimate tracks the simulated robot after three localizations and a search.
	estimate, truth := r.Odometer.Pose(), hw.World.TruePose()
	test.That(t, math.Hypot(estimate.X-truth.X, estimate.Y-truth.Y), test.ShouldBeLessThan, 1.5)
	test.That(t, math.Abs(spatialmath.WrapToPi(estimate.Theta-truth.Theta)), test.ShouldBeLessThan, 3*math.Pi/180)

	for _, ch := range sensor.Channels() {
		test.That(t, r.Hub.Refs(ch), test.ShouldEqual, 0)
	}
}
