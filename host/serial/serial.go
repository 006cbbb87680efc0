// Package serial connects the host tools to a controller's console over a
// serial line.
package serial

import (
	"io"
	"time"
)

// Port is a byte stream to a controller. NativePort implements it on an
// operating system serial device; tests use pipes.
type Port interface {
	io.ReadWriteCloser

	// Flush drops input that has not been read yet.
	Flush() error
}

// Config describes the line to a controller.
type Config struct {
	Device      string        // e.g. /dev/ttyACM0 or COM3
	Baud        int           // USB CDC ports ignore it
	ReadTimeout time.Duration // Zero blocks
}

const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// DefaultConfig returns the console's line settings for device.
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}
