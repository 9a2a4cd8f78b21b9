package itla

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultReadTimeout bounds each blocking read of the reader goroutine, and
// therefore how long Disconnect waits for it.
const DefaultReadTimeout = 250 * time.Millisecond

// Option configures a Link.
type Option func(*Link)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Link) { l.log = log }
}

// WithMetrics records link activity on m.
func WithMetrics(m *Metrics) Option {
	return func(l *Link) { l.metrics = m }
}

// WithOpener replaces DefaultOpener.
func WithOpener(open Opener) Option {
	return func(l *Link) {
		if open != nil {
			l.open = open
		}
	}
}

// WithReadTimeout sets the per-read timeout of the reader goroutine.
func WithReadTimeout(d time.Duration) Option {
	return func(l *Link) {
		if d > 0 {
			l.readTimeout = d
		}
	}
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) Option {
	return func(l *Link) { l.queueSize = n }
}
