// Package signaler announces mission events to the people watching the robot, by beeping,
// flashing, or logging.
package signaler

import (
	"context"

	"github.com/ecse211/gridbot/logging"
)

// An Event is something worth announcing.
type Event int

// The announced events.
const (
	// EdgeCaptured is a wall edge seen during the perimeter scan.
	EdgeCaptured Event = iota
	// LineFound is a grid line seen under both light sensors.
	LineFound
	// LocalizationComplete is a finished localization.
	LocalizationComplete
	// FlagCaptured is the flag found during the search.
	FlagCaptured
)

func (e Event) String() string {
	switch e {
	case EdgeCaptured:
		return "edge_captured"
	case LineFound:
		return "line_found"
	case LocalizationComplete:
		return "localization_complete"
	case FlagCaptured:
		return "flag_captured"
	}
	return "unknown"
}

// A Signaler announces events. Signal must not block for long: it is called from the mission
// thread.
type Signaler interface {
	Signal(ctx context.Context, event Event) error
}

// LogSignaler announces events in the log.
type LogSignaler struct {
	logger logging.Logger
}

// NewLogSignaler returns a signaler writing to logger.
func NewLogSignaler(logger logging.Logger) *LogSignaler {
	return &LogSignaler{logger: logger}
}

// Signal logs the event.
func (s *LogSignaler) Signal(ctx context.Context, event Event) error {
	s.logger.Infow("signal", "event", event.String())
	return nil
}
