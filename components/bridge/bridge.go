// Package bridge talks to the microcontroller that runs the robot's motors and sensors over a
// line-oriented serial protocol.
//
// Each request is one line. The controller answers with a line starting with '@' followed by
// the result, or with '#' followed by an error message. Lines starting with '!' are start-up
// banners and anything else is a debug message; both are skipped.
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/motor"
	"github.com/ecse211/gridbot/components/sensor"
	"github.com/ecse211/gridbot/components/signaler"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/serial"
	"github.com/ecse211/gridbot/utils"
)

var (
	_ sensor.Source     = &Bridge{}
	_ signaler.Signaler = &Bridge{}
)

// A Bridge is a connection to the controller. One request is in flight at a time.
type Bridge struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
	logger logging.Logger
}

// Open opens the serial device at path and checks that a controller answers on it.
func Open(ctx context.Context, path string, options serial.Options, logger logging.Logger) (*Bridge, error) {
	port, err := serial.Open(path, options)
	if err != nil {
		return nil, err
	}
	guard := utils.NewGuard(port.Close)
	defer func() {
		guard.OnFail()
		if err := guard.Err(); err != nil {
			logger.Warnw("cannot close serial port", "path", path, "error", err)
		}
	}()

	b := New(port, logger)
	if err := b.Handshake(ctx); err != nil {
		return nil, errors.Wrapf(err, "no controller answering on %s", path)
	}
	guard.Success()
	return b, nil
}

// New returns a bridge speaking over port.
func New(port io.ReadWriteCloser, logger logging.Logger) *Bridge {
	return &Bridge{port: port, reader: bufio.NewReader(port), logger: logger}
}

// Handshake asks the controller to echo a token back.
func (b *Bridge) Handshake(ctx context.Context) error {
	res, err := b.runCommand(ctx, "ECHO abc")
	if err != nil {
		return err
	}
	if res != "abc" {
		return errors.Errorf("echo didn't get expected result, got [%s]", res)
	}
	return nil
}

func (b *Bridge) runCommand(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cmd = strings.TrimSpace(cmd)
	if _, err := b.port.Write([]byte(cmd + "\n")); err != nil {
		return "", errors.Wrapf(err, "error sending %q to controller", cmd)
	}
	for {
		line, err := b.reader.ReadString('\n')
		if err != nil {
			return "", errors.Wrapf(err, "error reading reply to %q", cmd)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line[0] {
		case '@':
			return line[1:], nil
		case '#':
			return "", errors.Errorf("controller rejected %q: %s", cmd, line[1:])
		case '!':
			continue
		default:
			b.logger.Debugf("controller: %s", line)
		}
	}
}

func (b *Bridge) runFloat(ctx context.Context, cmd string) (float64, error) {
	res, err := b.runCommand(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad reply to %q", cmd)
	}
	return v, nil
}

// Sample reads one sensor channel.
func (b *Bridge) Sample(ctx context.Context, ch sensor.Channel) (float64, error) {
	return b.runFloat(ctx, "SMP "+ch.String())
}

// Signal has the controller play the tone pattern of event.
func (b *Bridge) Signal(ctx context.Context, event signaler.Event) error {
	_, err := b.runCommand(ctx, "TONE "+event.String())
	return err
}

// Motor returns the motor on the given side. Both is not a motor.
func (b *Bridge) Motor(side base.Side) (motor.Motor, error) {
	switch side {
	case base.Left:
		return &Motor{b: b, id: "L"}, nil
	case base.Right:
		return &Motor{b: b, id: "R"}, nil
	default:
		return nil, errors.Errorf("no single motor on side %s", side)
	}
}

// Close closes the serial port.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}

var _ motor.Motor = &Motor{}

// A Motor is one wheel motor driven by the controller.
type Motor struct {
	b  *Bridge
	id string
}

// SetSpeed sets the speed magnitude.
func (m *Motor) SetSpeed(ctx context.Context, degsPerSec float64) error {
	if degsPerSec < 0 {
		return motor.NewNegativeSpeedError(m.id, degsPerSec)
	}
	_, err := m.b.runCommand(ctx, fmt.Sprintf("SPD %s %.2f", m.id, degsPerSec))
	return err
}

// Rotate starts a relative rotation.
func (m *Motor) Rotate(ctx context.Context, degrees float64) error {
	_, err := m.b.runCommand(ctx, fmt.Sprintf("ROT %s %.3f", m.id, degrees))
	return err
}

// Run starts a continuous rotation.
func (m *Motor) Run(ctx context.Context, dir motor.Direction) error {
	arg := "F"
	if dir == motor.Backward {
		arg = "B"
	}
	_, err := m.b.runCommand(ctx, fmt.Sprintf("DRV %s %s", m.id, arg))
	return err
}

// Stop stops the motor.
func (m *Motor) Stop(ctx context.Context) error {
	_, err := m.b.runCommand(ctx, "STP "+m.id)
	return err
}

// IsMoving returns whether the controller is still executing a command on the motor.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	res, err := m.b.runCommand(ctx, "MOV? "+m.id)
	if err != nil {
		return false, err
	}
	switch res {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, errors.Errorf("bad reply to MOV?: %q", res)
}

// Position returns the encoder position in degrees.
func (m *Motor) Position(ctx context.Context) (float64, error) {
	return m.b.runFloat(ctx, "ENC? "+m.id)
}
