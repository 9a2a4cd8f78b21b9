package itla

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/luhtfiimanal/go-itla/serial"
)

// handle is one open transport and its reader goroutine.
type handle struct {
	port      string
	transport Transport
	running   *atomic.Bool
	done      chan struct{}

	// err is the fatal read error, written by the reader before done closes.
	err error
}

func newHandle(port string, t Transport) *handle {
	return &handle{
		port:      port,
		transport: t,
		running:   atomic.NewBool(true),
		done:      make(chan struct{}),
	}
}

// readLoop runs on its own goroutine until running is cleared or the
// transport fails. It only produces events; it never touches link state.
func (h *handle) readLoop(d *Dispatcher, timeout time.Duration, log zerolog.Logger, m *Metrics) {
	defer close(h.done)
	log.Debug().Str("port", h.port).Msg("reader started")
	defer log.Debug().Str("port", h.port).Msg("reader stopped")

	for h.running.Load() {
		line, err := h.transport.ReadLine(timeout)
		if errors.Is(err, serial.ErrTimeout) {
			continue
		}
		if err != nil {
			if !h.running.Load() {
				// Stopped while the read was in flight; not a link failure.
				return
			}
			rerr := &ReadError{Err: err}
			h.err = rerr
			log.Warn().Err(err).Str("port", h.port).Msg("link read failed")
			d.Send(Event{Kind: EventDisconnected, Err: rerr, source: h})
			return
		}

		ev := Classify(line)
		m.observeFrame(ev.Kind)
		if ev.Kind == EventMalformed {
			log.Debug().Err(ev.Err).Str("port", h.port).Msg("malformed telemetry frame")
		}
		if d.Send(ev) {
			m.observeDrop()
		}
	}
}

// stop clears running and waits for the reader to return. The wait is bounded
// by one read timeout.
func (h *handle) stop() {
	h.running.Store(false)
	<-h.done
}
