package robot

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/components/base"
	fakebase "github.com/ecse211/gridbot/components/base/fake"
	"github.com/ecse211/gridbot/components/base/wheeled"
	"github.com/ecse211/gridbot/components/bridge"
	"github.com/ecse211/gridbot/components/sensor"
	fakesensor "github.com/ecse211/gridbot/components/sensor/fake"
	"github.com/ecse211/gridbot/components/signaler"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/serial"
	"github.com/ecse211/gridbot/services/mission"
	"github.com/ecse211/gridbot/spatialmath"
	"github.com/ecse211/gridbot/utils"
)

// Hardware is what the services run on: the controller behind a serial bridge or the
// simulator.
type Hardware struct {
	Base     base.Base
	Encoders base.WheelEncoders
	Sensors  sensor.Source
	Signaler signaler.Signaler
	// World is the simulated board, when simulating.
	World *fakebase.World

	close func() error
}

// Close releases the hardware.
func (hw *Hardware) Close() error {
	if hw.close == nil {
		return nil
	}
	return hw.close()
}

// SimStartPose returns where the simulated robot really starts. Unless the sim section places
// it explicitly, it starts where the mission seeds the odometer, turned by the configured
// heading error.
func SimStartPose(cfg *config.Config) (spatialmath.Pose, error) {
	seed, err := mission.StartPose(cfg.Match.StartCorner, cfg.Geometry)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	sim := cfg.Sim
	pose := seed
	if sim.StartXCM != 0 || sim.StartYCM != 0 {
		pose.X, pose.Y = sim.StartXCM, sim.StartYCM
		pose.Theta = utils.DegToRad(sim.StartThetaDeg)
	}
	return spatialmath.NewPose(pose.X, pose.Y, pose.Theta+utils.DegToRad(sim.HeadingErrorDeg)), nil
}

// NewSimHardware builds a simulated board and starts stepping it.
func NewSimHardware(cfg *config.Config, logger logging.Logger) (*Hardware, error) {
	start, err := SimStartPose(cfg)
	if err != nil {
		return nil, err
	}
	world := fakebase.NewWorld(cfg.Geometry, start, logger.Sublogger("world"))
	b, err := fakebase.NewBase(world, logger.Sublogger("base"))
	if err != nil {
		return nil, err
	}
	source := fakesensor.NewSource(world, cfg.Sim)
	world.Start(cfg.Sim.StepPeriod(), cfg.Sim.SimDt())
	logger.Infow("simulating", "start", start.String())
	return &Hardware{
		Base:     b,
		Encoders: world,
		Sensors:  source,
		Signaler: signaler.NewLogSignaler(logger.Sublogger("signaler")),
		World:    world,
		close: func() error {
			world.Close()
			return nil
		},
	}, nil
}

// NewBridgeHardware connects to the controller on devicePath.
func NewBridgeHardware(ctx context.Context, devicePath string, cfg *config.Config, logger logging.Logger) (*Hardware, error) {
	br, err := bridge.Open(ctx, devicePath, serial.DefaultOptions, logger.Sublogger("bridge"))
	if err != nil {
		return nil, err
	}
	guard := utils.NewGuard(br.Close)
	defer func() {
		guard.OnFail()
		if err := guard.Err(); err != nil {
			logger.Warnw("cannot close bridge", "error", err)
		}
	}()

	left, err := br.Motor(base.Left)
	if err != nil {
		return nil, err
	}
	right, err := br.Motor(base.Right)
	if err != nil {
		return nil, err
	}
	b, err := wheeled.New(left, right, cfg.Geometry, cfg.Motion.RightWheelMultiplier, logger.Sublogger("base"))
	if err != nil {
		return nil, err
	}
	encoders, ok := b.(base.WheelEncoders)
	if !ok {
		return nil, errors.New("wheeled base does not report wheel positions")
	}
	guard.Success()
	return &Hardware{
		Base:     b,
		Encoders: encoders,
		Sensors:  br,
		Signaler: br,
		close:    br.Close,
	}, nil
}
