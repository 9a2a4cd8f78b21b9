package itla

import "fmt"

// Status is the link lifecycle position.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ConnectionState is the link status plus the port it refers to. Reason is
// only set on Disconnected and carries the failure that ended the last handle
// or the failed open; it is nil after a clean Disconnect.
type ConnectionState struct {
	Status Status
	Port   string
	Reason error
}

// Failed reports whether the link is Disconnected because of an error.
func (s ConnectionState) Failed() bool {
	return s.Status == Disconnected && s.Reason != nil
}

func (s ConnectionState) String() string {
	switch {
	case s.Failed():
		return fmt.Sprintf("%s (%v)", s.Status, s.Reason)
	case s.Port != "" && s.Status != Disconnected:
		return fmt.Sprintf("%s to %s", s.Status, s.Port)
	default:
		return s.Status.String()
	}
}

// LaserState is the laser emission status shown to the operator. The wire
// protocol has no acknowledgement, so it only changes when the caller sets it.
type LaserState int

const (
	LaserUnknown LaserState = iota
	LaserStateOff
	LaserStateOn
)

func (s LaserState) String() string {
	switch s {
	case LaserStateOff:
		return "OFF"
	case LaserStateOn:
		return "ON"
	default:
		return "--"
	}
}
