// Package fake implements a simulated motor whose shaft only turns when a simulator advances it.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ecse211/gridbot/components/motor"
	"github.com/ecse211/gridbot/logging"
)

type mode int

const (
	idle mode = iota
	target
	continuous
)

var _ motor.Motor = &Motor{}

// A Motor is a simulated regulated motor. Commands only change its mode; the shaft turns when
// Advance is called.
type Motor struct {
	Name   string
	Logger logging.Logger

	mu        sync.Mutex
	speed     float64
	position  float64
	mode      mode
	dir       float64
	remaining float64
}

// NewMotor returns a stopped motor at position 0.
func NewMotor(name string, logger logging.Logger) *Motor {
	return &Motor{Name: name, Logger: logger, dir: 1}
}

// SetSpeed sets the speed magnitude.
func (m *Motor) SetSpeed(ctx context.Context, degsPerSec float64) error {
	if degsPerSec < 0 {
		return motor.NewNegativeSpeedError(m.Name, degsPerSec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = degsPerSec
	return nil
}

// Speed returns the speed magnitude.
func (m *Motor) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// Rotate starts a relative rotation.
func (m *Motor) Rotate(ctx context.Context, degrees float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.speed < 1e-9 && degrees != 0 {
		return motor.NewZeroSpeedError(m.Name)
	}
	m.Logger.Debugf("motor %s rotate %.2f", m.Name, degrees)
	if degrees == 0 {
		m.mode = idle
		return nil
	}
	m.mode = target
	m.dir = 1
	if degrees < 0 {
		m.dir = -1
	}
	m.remaining = math.Abs(degrees)
	return nil
}

// Run starts a continuous rotation.
func (m *Motor) Run(ctx context.Context, dir motor.Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.speed < 1e-9 {
		return motor.NewZeroSpeedError(m.Name)
	}
	m.Logger.Debugf("motor %s run %s", m.Name, dir)
	m.mode = continuous
	m.dir = dir.Sign()
	return nil
}

// Stop has the motor stop immediately.
func (m *Motor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = idle
	m.remaining = 0
	return nil
}

// IsMoving returns whether a command is still executing.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode != idle, nil
}

// Position returns the shaft position in degrees.
func (m *Motor) Position(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position, nil
}

// Advance turns the shaft as commanded for dt and returns the signed degrees turned.
func (m *Motor) Advance(dt time.Duration) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode == idle {
		return 0
	}
	step := m.speed * dt.Seconds()
	if m.mode == target {
		if step >= m.remaining {
			step = m.remaining
			m.mode = idle
		}
		m.remaining -= step
	}
	delta := m.dir * step
	m.position += delta
	return delta
}
