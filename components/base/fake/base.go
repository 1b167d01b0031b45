package fake

import (
	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/base/wheeled"
	"github.com/ecse211/gridbot/logging"
)

// NewBase returns a base driving the world's motors. The simulated motors are matched, so no
// right wheel correction is applied.
func NewBase(w *World, logger logging.Logger) (base.Base, error) {
	return wheeled.New(w.Left(), w.Right(), w.Geometry, 1, logger)
}
