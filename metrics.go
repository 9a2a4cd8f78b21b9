package itla

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the link's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	frames    *prometheus.CounterVec
	dropped   prometheus.Counter
	commands  *prometheus.CounterVec
	connected prometheus.Gauge
	lost      prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itla_frames_total",
			Help: "Lines received from the device, by classification.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itla_events_dropped_total",
			Help: "Log lines dropped because the event queue was full.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itla_commands_total",
			Help: "Commands written to the device, by command.",
		}, []string{"command"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itla_link_connected",
			Help: "1 while the link is connected.",
		}),
		lost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itla_link_lost_total",
			Help: "Links ended by a read or write failure.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.frames, m.dropped, m.commands, m.connected, m.lost)
	}
	return m
}

func (m *Metrics) observeFrame(kind EventKind) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeDrop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) observeCommand(c Command) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(c.name()).Inc()
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) observeLost() {
	if m == nil {
		return
	}
	m.lost.Inc()
}
