// Package robot assembles the services of a gridbot on top of its hardware and runs its three
// background tasks: sensor acquisition, pose estimation and the mission tick.
package robot

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/localizer"
	"github.com/ecse211/gridbot/services/mission"
	"github.com/ecse211/gridbot/services/navigation"
	"github.com/ecse211/gridbot/services/odometry"
)

// A Robot is a gridbot ready to run a match.
type Robot struct {
	cfg    *config.Config
	hw     *Hardware
	logger logging.Logger

	Hub         *sensor.Hub
	Poller      *sensor.Poller
	Odometer    *odometry.Odometer
	Coordinator *localizer.Coordinator
	Navigator   *navigation.Navigator
	Mission     *mission.Controller

	mu      sync.Mutex
	started bool
	closed  bool
}

// New wires the services of a robot running on hw. Nothing moves until Start.
func New(cfg *config.Config, hw *Hardware, logger logging.Logger) (*Robot, error) {
	hub := sensor.NewHub(cfg.Sensors.BufferSize, logger.Sublogger("sensors"))
	odo, err := odometry.New(hw.Encoders, cfg.Geometry, logger.Sublogger("odometry"))
	if err != nil {
		return nil, err
	}
	coordinator := localizer.NewCoordinator(localizer.Deps{
		Base:     hw.Base,
		Odometer: odo,
		Hub:      hub,
		Signaler: hw.Signaler,
	}, cfg, logger.Sublogger("localizer"))
	nav, err := navigation.New(navigation.Deps{
		Base:     hw.Base,
		Odometer: odo,
		Hub:      hub,
	}, cfg, logger.Sublogger("navigation"))
	if err != nil {
		return nil, err
	}
	ctrl, err := mission.New(mission.Deps{
		Localizer: coordinator,
		Navigator: nav,
		Crosser:   mission.NewNavigatingCrosser(nav),
		Searcher:  mission.NewZoneSearcher(nav, hub, logger.Sublogger("search")),
		Odometer:  odo,
		Signaler:  hw.Signaler,
	}, cfg, logger.Sublogger("mission"))
	if err != nil {
		return nil, err
	}
	return &Robot{
		cfg:         cfg,
		hw:          hw,
		logger:      logger,
		Hub:         hub,
		Poller:      sensor.NewPoller(hub, hw.Sensors, logger.Sublogger("poller")),
		Odometer:    odo,
		Coordinator: coordinator,
		Navigator:   nav,
		Mission:     ctrl,
	}, nil
}

// Start starts sensor acquisition and pose estimation, then the mission.
func (r *Robot) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("robot is closed")
	}
	if r.started {
		return errors.New("robot already started")
	}
	r.Poller.Start(nil, r.cfg.Timing.PollerPeriod())
	if err := r.Odometer.Start(ctx, nil, r.cfg.Timing.OdometerPeriod()); err != nil {
		r.Poller.Close()
		return err
	}
	if err := r.Mission.Start(); err != nil {
		r.Poller.Close()
		r.Odometer.Close()
		return err
	}
	r.started = true
	r.logger.Infow("robot started", "match", r.cfg.Match)
	return nil
}

// Wait blocks until the mission finishes, fails, or ctx is done.
func (r *Robot) Wait(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Timing.TickPeriod())
	defer ticker.Stop()
	for {
		if err := r.Mission.Err(); err != nil {
			return err
		}
		if r.Mission.Finished() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops every task, stops the wheels and releases the hardware.
func (r *Robot) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.Mission.Close()
	r.Coordinator.AbortLocalization()
	err := multierr.Combine(
		r.Navigator.Stop(ctx),
		r.hw.Base.Stop(ctx, base.Both),
	)
	r.Odometer.Close()
	r.Poller.Close()
	r.logger.Infow("robot closed", "pose", r.Odometer.Pose().String(), "odometer_ticks", r.Odometer.Ticks())
	return multierr.Combine(err, r.hw.Close())
}
