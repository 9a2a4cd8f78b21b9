package itla

import (
	"fmt"
	"time"
)

// TelemetrySample is one decoded telemetry frame.
type TelemetrySample struct {
	FrequencyTHz float64
	PowerDBm     float64
	TemperatureC float64
	ObservedAt   time.Time
}

// String renders the sample the way the monitor panel shows it.
func (s TelemetrySample) String() string {
	return fmt.Sprintf("freq=%.6f THz power=%.3f dBm temp=%.2f C", s.FrequencyTHz, s.PowerDBm, s.TemperatureC)
}

// EventKind tags an Event.
type EventKind int

const (
	EventTelemetry EventKind = iota + 1
	EventLogText
	EventMalformed
	// EventDisconnected is produced when the handle is lost; Err holds the
	// reason.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventTelemetry:
		return "telemetry"
	case EventLogText:
		return "log"
	case EventMalformed:
		return "malformed"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a classified line or a control event handed from the reader
// goroutine to the control goroutine.
//
// Telemetry is set for EventTelemetry. Text holds the log line for
// EventLogText and the raw line for EventMalformed. Err holds the decode cause
// for EventMalformed and the disconnect reason for EventDisconnected.
type Event struct {
	Kind      EventKind
	Telemetry TelemetrySample
	Text      string
	Err       error

	// source is the handle an EventDisconnected reports on.
	source *handle
}

// critical events carry state and are never dropped under backpressure.
func (e Event) critical() bool {
	return e.Kind != EventLogText
}
