package serial

import "errors"

var (
	// ErrTimeout reports that no complete line arrived within the read timeout.
	// It is routine and leaves the port usable.
	ErrTimeout = errors.New("serial: read timeout")
	// ErrClosed reports that the port was closed, hung up or failed. The port
	// must be discarded.
	ErrClosed = errors.New("serial: port closed")
	// ErrBusy reports that the device is already held open by another port.
	ErrBusy = errors.New("serial: device busy")
)

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device    string
	BaudRate  int
	Delimiter string // inbound line delimiter, default "\n"
	Newline   string // appended by WriteLine, default "\n"
}

func (c *Config) applyDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = 115200
	}
	if c.Delimiter == "" {
		c.Delimiter = "\n"
	}
	if c.Newline == "" {
		c.Newline = "\n"
	}
}
