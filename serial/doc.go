// Package serial provides line-oriented serial ports with bounded read
// timeouts for talking to laser-control instruments.
//
// Two implementations share one contract:
//   - Port: raw syscall-based termios I/O on Linux, poll with timeout,
//     self-pipe killability and an exclusive per-device lock
//   - PortablePort: the same contract on top of go.bug.st/serial
//
// ReadLine returns ErrTimeout when no full line arrived in time; the caller
// simply asks again. Any other read error wraps ErrClosed and the port must be
// discarded. Opening a device that another Port holds fails with ErrBusy.
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 115200,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	for {
//	    line, err := port.ReadLine(250 * time.Millisecond)
//	    if errors.Is(err, serial.ErrTimeout) {
//	        continue
//	    }
//	    if err != nil {
//	        log.Println("read error:", err)
//	        return
//	    }
//	    fmt.Println("Received:", line)
//	}
package serial
