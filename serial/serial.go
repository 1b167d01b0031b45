// Package serial opens the serial link to the robot's motor and sensor controller.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
	"go.uber.org/multierr"
)

// Options to be passed to Open.
type Options struct {
	BaudRate    int
	DataBits    int
	StopBits    StopBits
	Parity      Parity
	ReadTimeout time.Duration
}

// DefaultOptions are the settings the controller firmware expects.
var DefaultOptions = Options{
	BaudRate:    115200,
	DataBits:    8,
	StopBits:    OneStopBit,
	Parity:      NoParity,
	ReadTimeout: 2 * time.Second,
}

// Parity describes a serial port parity setting
type Parity int

const (
	// NoParity disable parity control (default)
	NoParity Parity = iota
	// OddParity enable odd-parity check
	OddParity
	// EvenParity enable even-parity check
	EvenParity
)

// StopBits describe a serial port stop bits setting
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default)
	OneStopBit StopBits = iota
	// TwoStopBits sets 2 stop bits
	TwoStopBits
)

func (o Options) mode() (*ser.Mode, error) {
	mode := &ser.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits}
	switch o.Parity {
	case NoParity:
		mode.Parity = ser.NoParity
	case OddParity:
		mode.Parity = ser.OddParity
	case EvenParity:
		mode.Parity = ser.EvenParity
	default:
		return nil, errors.Errorf("unsupported parity %d", o.Parity)
	}
	switch o.StopBits {
	case OneStopBit:
		mode.StopBits = ser.OneStopBit
	case TwoStopBits:
		mode.StopBits = ser.TwoStopBits
	default:
		return nil, errors.Errorf("unsupported stop bits %d", o.StopBits)
	}
	if mode.BaudRate <= 0 {
		return nil, errors.Errorf("baud rate must be positive, not %d", mode.BaudRate)
	}
	return mode, nil
}

// Open attempts to open a serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
	mode, err := options.mode()
	if err != nil {
		return nil, err
	}
	device, err := ser.Open(devicePath, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open serial device %q", devicePath)
	}
	if options.ReadTimeout > 0 {
		if err := device.SetReadTimeout(options.ReadTimeout); err != nil {
			return nil, multierr.Combine(err, device.Close())
		}
	}
	return device, nil
}

