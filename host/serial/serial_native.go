package serial

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

// NativePort is a Port on an operating system serial device.
type NativePort struct {
	*serial.Port
	device string
}

// Open opens cfg.Device. A baud rate of zero selects DefaultBaud.
func Open(cfg Config) (*NativePort, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: no device given")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Device)
	}
	return &NativePort{Port: p, device: cfg.Device}, nil
}

// Device returns the path the port was opened on.
func (p *NativePort) Device() string {
	return p.device
}

// ListPorts returns the serial ports present on this host, sorted.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	sort.Strings(ports)
	return ports, nil
}
