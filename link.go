package itla

import (
	"time"

	"github.com/rs/zerolog"
)

// Link is the bridge between a control goroutine and one ITLA device.
//
// A Link is owned by a single control goroutine: every method must be called
// from that goroutine. The only other goroutine is the reader started by
// Connect, which talks to the control goroutine exclusively through the
// event queue drained by PollEvents.
type Link struct {
	open        Opener
	readTimeout time.Duration
	queueSize   int
	log         zerolog.Logger
	metrics     *Metrics

	events *Dispatcher
	handle *handle
	state  ConnectionState

	telemetry    TelemetrySample
	hasTelemetry bool
	laser        LaserState
}

// NewLink returns a Disconnected link.
func NewLink(opts ...Option) *Link {
	l := &Link{
		open:        DefaultOpener,
		readTimeout: DefaultReadTimeout,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.events = NewDispatcher(l.queueSize)
	return l
}

// Connect opens port at baud and starts the reader goroutine. Open failures
// are returned as *OpenError and leave the link Disconnected with the error as
// reason; they are never retried. Connect on a link that holds a handle fails
// with ErrBusy.
func (l *Link) Connect(port string, baud int) error {
	if l.handle != nil || l.state.Status != Disconnected {
		return ErrBusy
	}

	l.state = ConnectionState{Status: Connecting, Port: port}
	log := l.log.With().Str("port", port).Int("baud", baud).Logger()
	log.Debug().Msg("connecting")

	t, err := l.open(port, baud)
	if err != nil {
		oerr := &OpenError{Port: port, Err: err}
		l.state = ConnectionState{Status: Disconnected, Port: port, Reason: oerr}
		log.Error().Err(err).Msg("open failed")
		return oerr
	}

	h := newHandle(port, t)
	l.handle = h
	go h.readLoop(l.events, l.readTimeout, l.log, l.metrics)

	l.state = ConnectionState{Status: Connected, Port: port}
	l.metrics.setConnected(true)
	log.Info().Msg("connected")
	return nil
}

// Disconnect stops the reader, closes the transport and discards events the
// retired reader left in the queue. It returns after at most one read timeout.
func (l *Link) Disconnect() {
	h := l.handle
	if h == nil {
		return
	}
	l.teardown(h)
	l.events.Reset()
	l.state = ConnectionState{Status: Disconnected, Port: h.port}
	l.log.Info().Str("port", h.port).Msg("disconnected")
}

// SendCommand encodes cmd and writes it to the device. It fails with
// ErrNotConnected, without writing, unless the link is Connected. A failed
// write ends the link: the state becomes Disconnected with a *WriteError
// reason, a Disconnected event is queued, and the *WriteError is returned.
//
// A nil error only means the line was written; the device sends no
// acknowledgement.
func (l *Link) SendCommand(cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}
	h := l.handle
	if h == nil || l.state.Status != Connected {
		return ErrNotConnected
	}

	line := Encode(cmd)
	if err := h.transport.WriteLine(line); err != nil {
		werr := &WriteError{Command: line, Err: err}
		l.log.Error().Err(err).Str("port", h.port).Str("command", line).Msg("command write failed")
		l.lose(h, werr)
		return werr
	}

	l.metrics.observeCommand(cmd)
	l.log.Info().Str("port", h.port).Str("command", line).Msgf("[TX] %s", line)
	return nil
}

// PollEvents drains every queued event in arrival order and applies it to the
// link state: telemetry updates the last-known sample and a Disconnected
// event retires the handle that produced it. A Disconnected event from a
// handle that is already gone is returned but changes nothing. It never
// blocks.
func (l *Link) PollEvents() []Event {
	events := l.events.Drain()
	for _, ev := range events {
		switch ev.Kind {
		case EventTelemetry:
			l.telemetry = ev.Telemetry
			l.hasTelemetry = true
		case EventDisconnected:
			// Reports from a retired handle are history; the current
			// handle, if any, belongs to a later Connect.
			if h := l.handle; h != nil && ev.source == h {
				l.teardown(h)
				l.state = ConnectionState{Status: Disconnected, Port: h.port, Reason: ev.Err}
				l.metrics.observeLost()
				l.log.Warn().Err(ev.Err).Str("port", h.port).Msg("link lost")
			}
		}
	}
	return events
}

// Ready is signalled when events are queued for PollEvents.
func (l *Link) Ready() <-chan struct{} {
	return l.events.Ready()
}

// CurrentState returns the connection state.
func (l *Link) CurrentState() ConnectionState {
	return l.state
}

// Telemetry returns the last sample drained by PollEvents. ok is false until
// the first sample arrives.
func (l *Link) Telemetry() (sample TelemetrySample, ok bool) {
	return l.telemetry, l.hasTelemetry
}

// LaserState returns the displayed laser status.
func (l *Link) LaserState() LaserState {
	return l.laser
}

// SetLaserState records the laser status the operator believes is in effect,
// typically right after a successful LaserOn or LaserOff command.
func (l *Link) SetLaserState(s LaserState) {
	l.laser = s
}

// lose ends h after a write failure. If the reader already reported a read
// failure, that report stands and no second Disconnected event is queued.
func (l *Link) lose(h *handle, reason error) {
	l.teardown(h)
	if h.err != nil {
		reason = h.err
	} else {
		l.events.Send(Event{Kind: EventDisconnected, Err: reason, source: h})
	}
	l.state = ConnectionState{Status: Disconnected, Port: h.port, Reason: reason}
	l.metrics.observeLost()
}

// teardown stops the reader before closing the transport so the transport is
// never closed under an in-flight read.
func (l *Link) teardown(h *handle) {
	h.stop()
	if err := h.transport.Close(); err != nil {
		l.log.Debug().Err(err).Str("port", h.port).Msg("close transport")
	}
	l.handle = nil
	l.metrics.setConnected(false)
}
