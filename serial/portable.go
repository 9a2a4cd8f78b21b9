package serial

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

// PortablePort is a line-oriented port backed by go.bug.st/serial. It has the
// same contract as Port and works on every platform that library supports.
type PortablePort struct {
	port      bugst.Port
	config    Config
	pending   string
	closeOnce sync.Once
	closed    chan struct{}
}

// OpenPortable opens cfg.Device as an 8N1 port through go.bug.st/serial.
func OpenPortable(cfg Config) (*PortablePort, error) {
	cfg.applyDefaults()

	port, err := bugst.Open(cfg.Device, &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		var perr *bugst.PortError
		if errors.As(err, &perr) && perr.Code() == bugst.PortBusy {
			return nil, fmt.Errorf("open %s: %w", cfg.Device, ErrBusy)
		}
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	return &PortablePort{
		port:   port,
		config: cfg,
		closed: make(chan struct{}),
	}, nil
}

// Name returns the device path the port was opened with.
func (p *PortablePort) Name() string {
	return p.config.Device
}

// WriteLine writes line followed by the configured newline.
func (p *PortablePort) WriteLine(line string) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	if _, err := p.port.Write([]byte(line + p.config.Newline)); err != nil {
		return fmt.Errorf("write %s: %w", p.config.Device, err)
	}
	return nil
}

// ReadLine returns the next delimited line, ErrTimeout when none arrives in
// time, or an error wrapping ErrClosed once the port is unusable.
func (p *PortablePort) ReadLine(timeout time.Duration) (string, error) {
	if line, ok := p.popLine(); ok {
		return line, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	buf := make([]byte, 4096)
	for {
		wait := bugst.NoTimeout
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return "", ErrTimeout
			}
		}
		if err := p.port.SetReadTimeout(wait); err != nil {
			return "", fmt.Errorf("set read timeout: %w: %w", ErrClosed, err)
		}

		n, err := p.port.Read(buf)
		select {
		case <-p.closed:
			return "", ErrClosed
		default:
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w: %w", p.config.Device, ErrClosed, err)
		}
		if n == 0 {
			// go.bug.st/serial reports an expired read timeout as (0, nil).
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				return "", ErrTimeout
			}
			continue
		}
		p.pending += string(buf[:n])
		if line, ok := p.popLine(); ok {
			return line, nil
		}
	}
}

func (p *PortablePort) popLine() (string, bool) {
	idx := strings.Index(p.pending, p.config.Delimiter)
	if idx < 0 {
		return "", false
	}
	line := p.pending[:idx]
	p.pending = p.pending[idx+len(p.config.Delimiter):]
	return line, true
}

// Close closes the port. Safe to call multiple times.
func (p *PortablePort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.port.Close()
	})
	return err
}

// ListPorts returns the serial devices currently present on the host.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return ports, nil
}
