package mission

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/services/navigation"
	"github.com/ecse211/gridbot/spatialmath"
)

// ErrFlagNotFound is returned when a search visits its whole zone without seeing the flag.
var ErrFlagNotFound = errors.New("flag not found")

// A NavigatingCrosser crosses by driving the elbow path between the two ends.
type NavigatingCrosser struct {
	nav Navigator
}

var _ Crosser = &NavigatingCrosser{}

// NewNavigatingCrosser returns a crosser driving nav.
func NewNavigatingCrosser(nav Navigator) *NavigatingCrosser {
	return &NavigatingCrosser{nav: nav}
}

// StartCrossing sets the path across.
func (nc *NavigatingCrosser) StartCrossing(from, to spatialmath.Waypoint) error {
	nc.nav.SetPath(navigation.ElbowPath(from, to))
	return nil
}

// Tick advances the navigator.
func (nc *NavigatingCrosser) Tick(ctx context.Context) (bool, error) {
	if err := nc.nav.Tick(ctx); err != nil {
		return false, err
	}
	return nc.nav.Done(), nil
}

// SearchPath visits every intersection of zone, sweeping alternate rows in opposite directions.
func SearchPath(zone config.Zone) *navigation.Path {
	x0, x1 := int(zone.LowerLeft.X), int(zone.UpperRight.X)
	y0, y1 := int(zone.LowerLeft.Y), int(zone.UpperRight.Y)
	var waypoints []spatialmath.Waypoint
	for row, y := range lo.RangeWithSteps(y0, y1+1, 1) {
		xs := lo.RangeWithSteps(x0, x1+1, 1)
		if row%2 == 1 {
			xs = lo.RangeWithSteps(x1, x0-1, -1)
		}
		waypoints = append(waypoints, lo.Map(xs, func(x, _ int) spatialmath.Waypoint {
			return spatialmath.NewWaypoint(float64(x), float64(y))
		})...)
	}
	return navigation.NewPath(waypoints...)
}

// A ZoneSearcher sweeps the search zone and stops as soon as the front colour sensor reads the
// flag's colour.
type ZoneSearcher struct {
	nav    Navigator
	hub    *sensor.Hub
	logger logging.Logger

	lease *sensor.Lease
	flag  int
}

var _ Searcher = &ZoneSearcher{}

// NewZoneSearcher returns a searcher driving nav and reading the colour sensor from hub.
func NewZoneSearcher(nav Navigator, hub *sensor.Hub, logger logging.Logger) *ZoneSearcher {
	return &ZoneSearcher{nav: nav, hub: hub, logger: logger}
}

// StartSearch starts sweeping zone.
func (zs *ZoneSearcher) StartSearch(zone config.Zone, flagColor int) error {
	if zs.lease != nil {
		return errors.New("search already running")
	}
	path := SearchPath(zone)
	if path.Len() == 0 {
		return errors.Errorf("search zone %s to %s is empty", zone.LowerLeft, zone.UpperRight)
	}
	zs.flag = flagColor
	zs.lease = zs.hub.Acquire(sensor.FrontColor)
	zs.nav.SetPath(path)
	zs.logger.Infow("searching", "path", path.String(), "flag_color", flagColor)
	return nil
}

// Tick checks the colour sensor and otherwise advances the sweep.
func (zs *ZoneSearcher) Tick(ctx context.Context) (bool, error) {
	if zs.lease == nil {
		return false, errors.New("no search running")
	}
	if c, ok := zs.hub.Latest(sensor.FrontColor); ok && int(math.Round(c)) == zs.flag {
		zs.logger.Infow("flag found", "color", zs.flag)
		return true, zs.finish(ctx)
	}
	if err := zs.nav.Tick(ctx); err != nil {
		return false, multierr.Combine(err, zs.finish(ctx))
	}
	if zs.nav.Done() {
		if err := zs.finish(ctx); err != nil {
			return false, err
		}
		return false, ErrFlagNotFound
	}
	return false, nil
}

func (zs *ZoneSearcher) finish(ctx context.Context) error {
	err := multierr.Combine(zs.nav.Stop(ctx), zs.lease.Release())
	zs.lease = nil
	return err
}
