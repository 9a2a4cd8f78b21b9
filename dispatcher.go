package itla

import "sync"

// DefaultQueueSize is the Dispatcher capacity used when none is configured.
const DefaultQueueSize = 1024

// Dispatcher is the ordered handoff between the reader goroutine and the
// control goroutine. Send never blocks. When the queue is at capacity the
// oldest LogText is dropped; Telemetry, Malformed and Disconnected events are
// never dropped, so the queue grows past capacity when nothing else can go.
type Dispatcher struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	dropped  uint64
	ready    chan struct{}
}

// NewDispatcher returns a Dispatcher holding up to capacity events before it
// starts dropping log text. capacity <= 0 selects DefaultQueueSize.
func NewDispatcher(capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Dispatcher{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Send queues ev and reports whether a log line was dropped to make room.
func (d *Dispatcher) Send(ev Event) (dropped bool) {
	d.mu.Lock()
	if len(d.events) >= d.capacity {
		if i := d.oldestLogText(); i >= 0 {
			d.events = append(d.events[:i], d.events[i+1:]...)
			dropped = true
		} else if !ev.critical() {
			// ev is itself the oldest log text.
			d.dropped++
			d.mu.Unlock()
			return true
		}
		if dropped {
			d.dropped++
		}
	}
	d.events = append(d.events, ev)
	d.mu.Unlock()

	select {
	case d.ready <- struct{}{}:
	default:
	}
	return dropped
}

func (d *Dispatcher) oldestLogText() int {
	for i, ev := range d.events {
		if !ev.critical() {
			return i
		}
	}
	return -1
}

// Drain removes and returns every queued event in production order.
func (d *Dispatcher) Drain() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) == 0 {
		return nil
	}
	out := d.events
	d.events = make([]Event, 0, d.capacity)
	return out
}

// Reset discards every queued event.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.events = d.events[:0]
	d.mu.Unlock()

	select {
	case <-d.ready:
	default:
	}
}

// Ready is signalled after Send; a receive means Drain may return events.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.ready
}

// Len returns the number of queued events.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// Dropped returns how many log lines were dropped under backpressure.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}
