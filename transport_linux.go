//go:build linux

package itla

import "github.com/luhtfiimanal/go-itla/serial"

// DefaultOpener opens ports with the termios backend on Linux.
var DefaultOpener Opener = TermiosOpener

var termiosOpener Opener = TermiosOpener

// TermiosOpener opens ports with the raw termios backend, which also holds an
// exclusive lock on the device.
func TermiosOpener(port string, baud int) (Transport, error) {
	p, err := serial.Open(serial.Config{Device: port, BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return p, nil
}
