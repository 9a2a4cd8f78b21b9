package itla

import (
	"fmt"
	"time"

	"github.com/luhtfiimanal/go-itla/serial"
)

// Transport is an open line-oriented channel to the device.
//
// ReadLine returns an error matching serial.ErrTimeout when no line arrived
// within timeout; any other error is fatal to the transport. ReadLine and
// WriteLine are called from different goroutines.
type Transport interface {
	ReadLine(timeout time.Duration) (string, error)
	WriteLine(line string) error
	Close() error
}

// Opener opens a Transport to port at baud.
type Opener func(port string, baud int) (Transport, error)

// Backend names accepted by OpenerFor.
const (
	BackendAuto     = "auto"
	BackendTermios  = "termios"
	BackendPortable = "portable"
)

// PortableOpener opens ports through go.bug.st/serial.
func PortableOpener(port string, baud int) (Transport, error) {
	p, err := serial.OpenPortable(serial.Config{Device: port, BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OpenerFor returns the Opener for a backend name.
func OpenerFor(backend string) (Opener, error) {
	switch backend {
	case "", BackendAuto:
		return DefaultOpener, nil
	case BackendTermios:
		if termiosOpener == nil {
			return nil, fmt.Errorf("backend %q is not available on this platform", backend)
		}
		return termiosOpener, nil
	case BackendPortable:
		return PortableOpener, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
