package sensor

// A Trigger decides, reading by reading, when a watch fires. Triggers may keep state, so each
// watch needs its own.
type Trigger interface {
	Fire(v float64) bool
}

// TriggerFunc adapts a stateless predicate to a Trigger.
type TriggerFunc func(v float64) bool

// Fire calls f.
func (f TriggerFunc) Fire(v float64) bool {
	return f(v)
}

// Any fires on the next reading.
func Any() Trigger {
	return TriggerFunc(func(float64) bool { return true })
}

// Below fires on the first reading under threshold.
func Below(threshold float64) Trigger {
	return TriggerFunc(func(v float64) bool { return v < threshold })
}

// Above fires on the first reading over threshold.
func Above(threshold float64) Trigger {
	return TriggerFunc(func(v float64) bool { return v > threshold })
}

// Edge is the direction of a threshold crossing.
type Edge int

const (
	// Rising goes from below the threshold to above it.
	Rising Edge = iota
	// Falling goes from above the threshold to below it.
	Falling
)

func (e Edge) String() string {
	if e == Falling {
		return "falling"
	}
	return "rising"
}

type crossing struct {
	threshold float64
	margin    float64
	edge      Edge
	armed     bool
}

// Crossing fires when readings cross threshold in the direction of edge. It arms once a
// reading is at least margin on the starting side and fires once a reading is at least margin
// past the threshold, so noise around the threshold cannot fire it.
func Crossing(threshold, margin float64, edge Edge) Trigger {
	return &crossing{threshold: threshold, margin: margin, edge: edge}
}

func (c *crossing) Fire(v float64) bool {
	low, high := c.threshold-c.margin, c.threshold+c.margin
	if c.edge == Falling {
		if !c.armed {
			c.armed = v > high
			return false
		}
		return v < low
	}
	if !c.armed {
		c.armed = v < low
		return false
	}
	return v > high
}
