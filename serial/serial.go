//go:build linux

package serial

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Port provides killable, line-oriented access to a Linux serial port with
// bounded read timeouts.
//
// ReadLine must only be called from one goroutine at a time; WriteLine may be
// called from another goroutine concurrently with ReadLine.
type Port struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
	pending   string
}

// Open opens a serial port using the provided Config and returns a Port.
// The port is configured for raw 8N1 operation and locked for exclusive use,
// so a second Open of the same device fails with ErrBusy until Close.
func Open(cfg Config) (*Port, error) {
	cfg.applyDefaults()

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		syscall.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("open %s: %w", cfg.Device, ErrBusy)
		}
		return nil, fmt.Errorf("lock %s: %w", cfg.Device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baudToUnix(cfg.BaudRate)

	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Reads stay non-blocking; poll decides when data is there.
	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &Port{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		done:   make(chan struct{}),
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string {
	return p.config.Device
}

// WriteLine writes line followed by the configured newline.
func (p *Port) WriteLine(line string) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	_, err := p.file.WriteString(line + p.config.Newline)
	if err != nil {
		return fmt.Errorf("write %s: %w", p.config.Device, err)
	}
	return nil
}

// ReadLine returns the next delimited line without its delimiter.
//
// If no complete line arrives within timeout, ReadLine returns ErrTimeout and
// keeps any partial data for the next call. A timeout <= 0 blocks until a line
// arrives or the port fails. Any other error wraps ErrClosed and means the
// port is unusable.
func (p *Port) ReadLine(timeout time.Duration) (string, error) {
	if line, ok := p.popLine(); ok {
		return line, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	buf := make([]byte, 4096)
	for {
		wait := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", ErrTimeout
			}
			wait = int((remaining + time.Millisecond - 1) / time.Millisecond)
		}

		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, wait)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return "", fmt.Errorf("poll: %w: %w", ErrClosed, err)
		}

		select {
		case <-p.done:
			return "", ErrClosed
		default:
		}
		if n == 0 {
			return "", ErrTimeout
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			var b [1]byte
			unix.Read(p.pipeR, b[:])
			return "", ErrClosed
		}

		rev := pfd[0].Revents
		if rev&unix.POLLIN != 0 {
			n, err := unix.Read(p.fd, buf)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}
				return "", fmt.Errorf("read %s: %w: %w", p.config.Device, ErrClosed, err)
			}
			if n == 0 {
				return "", fmt.Errorf("read %s: %w: end of file", p.config.Device, ErrClosed)
			}
			p.pending += string(buf[:n])
			if line, ok := p.popLine(); ok {
				return line, nil
			}
			continue
		}
		if rev&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return "", fmt.Errorf("read %s: %w: hang-up", p.config.Device, ErrClosed)
		}
	}
}

func (p *Port) popLine() (string, bool) {
	idx := strings.Index(p.pending, p.config.Delimiter)
	if idx < 0 {
		return "", false
	}
	line := p.pending[:idx]
	p.pending = p.pending[idx+len(p.config.Delimiter):]
	return line, true
}

// Close releases the port lock, closes the port and unblocks any ReadLine.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.pipeW > 0 {
			unix.Write(p.pipeW, []byte{1})
		}
		unix.Flock(p.fd, unix.LOCK_UN)
		if p.file != nil {
			err = p.file.Close()
		}
		if p.pipeR > 0 {
			unix.Close(p.pipeR)
		}
		if p.pipeW > 0 {
			unix.Close(p.pipeW)
		}
	})
	return err
}

func baudToUnix(baud int) uint32 {
	switch baud {
	case 9600:
		return unix.B9600
	case 19200:
		return unix.B19200
	case 38400:
		return unix.B38400
	case 57600:
		return unix.B57600
	case 115200:
		return unix.B115200
	case 230400:
		return unix.B230400
	default:
		return unix.B115200 // fallback
	}
}
