//go:build unix

package sim

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// pollable returns f reopened in non-blocking mode so the runtime poller owns
// it and Close interrupts a pending Read. f is closed.
func pollable(f *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("dup %s: %w", f.Name(), err)
	}
	name := f.Name()
	f.Close()
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock %s: %w", name, err)
	}
	return os.NewFile(uintptr(fd), name), nil
}
