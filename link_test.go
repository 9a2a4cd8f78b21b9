package itla

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luhtfiimanal/go-itla/serial"
)

type readResult struct {
	line string
	err  error
}

// fakeTransport serves reads from a channel and records writes.
type fakeTransport struct {
	reads chan readResult

	mu       sync.Mutex
	written  []string
	writeErr error
	closed   bool
	inFlight bool

	// closedMidRead is set if Close ran while a ReadLine was in progress.
	closedMidRead bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan readResult, 16)}
}

func (f *fakeTransport) ReadLine(timeout time.Duration) (string, error) {
	f.mu.Lock()
	f.inFlight = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	select {
	case r := <-f.reads:
		return r.line, r.err
	case <-time.After(timeout):
		return "", serial.ErrTimeout
	}
}

func (f *fakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, line)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		f.closedMidRead = true
	}
	f.closed = true
	return nil
}

func (f *fakeTransport) feed(line string) { f.reads <- readResult{line: line} }

func (f *fakeTransport) fail(err error) { f.reads <- readResult{err: err} }

func (f *fakeTransport) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// fakeOpener hands out transports in order and counts open calls.
type fakeOpener struct {
	transports []*fakeTransport
	err        error
	calls      int
}

func (o *fakeOpener) open(port string, baud int) (Transport, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	t := newFakeTransport()
	o.transports = append(o.transports, t)
	return t, nil
}

func newTestLink(t *testing.T, o *fakeOpener, opts ...Option) *Link {
	t.Helper()
	opts = append([]Option{WithOpener(o.open), WithReadTimeout(20 * time.Millisecond)}, opts...)
	l := NewLink(opts...)
	t.Cleanup(l.Disconnect)
	return l
}

// pollUntil drains the link on the calling goroutine until done accepts the
// events collected so far.
func pollUntil(t *testing.T, l *Link, done func([]Event) bool) []Event {
	t.Helper()
	var all []Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		all = append(all, l.PollEvents()...)
		if done(all) {
			return all
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout polling events, got %+v", all)
	return nil
}

func countAtLeast(n int) func([]Event) bool {
	return func(evs []Event) bool { return len(evs) >= n }
}

func TestLink_ReadClassifyDisconnectScenario(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	require.Equal(t, Connected, l.CurrentState().Status)

	tr := o.transports[0]
	tr.feed(`{"freq":193.5,"power":5.25,"temp":25.3}`)
	tr.feed("LINK OK")
	tr.fail(serial.ErrClosed)

	events := pollUntil(t, l, countAtLeast(3))
	require.Len(t, events, 3)

	require.Equal(t, EventTelemetry, events[0].Kind)
	require.Equal(t, 193.5, events[0].Telemetry.FrequencyTHz)
	require.Equal(t, 5.25, events[0].Telemetry.PowerDBm)
	require.Equal(t, 25.3, events[0].Telemetry.TemperatureC)

	require.Equal(t, EventLogText, events[1].Kind)
	require.Equal(t, "LINK OK", events[1].Text)

	require.Equal(t, EventDisconnected, events[2].Kind)
	require.ErrorIs(t, events[2].Err, serial.ErrClosed)
	var readErr *ReadError
	require.ErrorAs(t, events[2].Err, &readErr)

	state := l.CurrentState()
	require.Equal(t, Disconnected, state.Status)
	require.True(t, state.Failed())
	require.ErrorIs(t, state.Reason, serial.ErrClosed)
	require.True(t, tr.closed)

	sample, ok := l.Telemetry()
	require.True(t, ok)
	require.Equal(t, 193.5, sample.FrequencyTHz)
}

func TestLink_SendCommandWhileDisconnected(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)

	require.ErrorIs(t, l.SendCommand(LaserOn), ErrNotConnected)
	require.Zero(t, o.calls)

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	l.Disconnect()

	require.ErrorIs(t, l.SendCommand(SetPower(1)), ErrNotConnected)
	require.Empty(t, o.transports[0].lines())
}

func TestLink_SendCommandWritesEncodedLine(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))

	require.NoError(t, l.SendCommand(SetFrequency(193.5)))
	require.NoError(t, l.SendCommand(SetPower(5.25)))
	require.NoError(t, l.SendCommand(LaserOn))
	require.ErrorIs(t, l.SendCommand(Command{Kind: 42}), ErrInvalidCommand)

	require.Equal(t, []string{"SET_FREQUENCY 193.500000", "SET_POWER 5.250", "LASER_ON"}, o.transports[0].lines())
	// The wire has no acknowledgement, so the laser display is untouched.
	require.Equal(t, LaserUnknown, l.LaserState())
	l.SetLaserState(LaserStateOn)
	require.Equal(t, LaserStateOn, l.LaserState())
}

func TestLink_DisconnectRetiresReader(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	first := o.transports[0]
	first.feed("before")
	time.Sleep(50 * time.Millisecond)

	l.Disconnect()
	require.Equal(t, ConnectionState{Status: Disconnected, Port: "/dev/ttyITLA0"}, l.CurrentState())
	require.True(t, first.closed)
	require.False(t, first.closedMidRead)

	// The retired reader must not deliver anything else.
	first.feed("stale")
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, l.PollEvents())

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	require.Len(t, o.transports, 2)
	require.True(t, l.handle.running.Load())

	second := o.transports[1]
	second.feed("fresh")
	events := pollUntil(t, l, countAtLeast(1))
	require.Equal(t, []Event{{Kind: EventLogText, Text: "fresh"}}, events)
}

func TestLink_ConnectWhileConnectedIsBusy(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	require.ErrorIs(t, l.Connect("/dev/ttyITLA0", 115200), ErrBusy)
	require.ErrorIs(t, l.Connect("/dev/ttyITLA1", 115200), ErrBusy)
	require.Equal(t, 1, o.calls)
}

func TestLink_BusyUntilLostHandleIsDrained(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	o.transports[0].fail(serial.ErrClosed)
	time.Sleep(50 * time.Millisecond)

	require.ErrorIs(t, l.Connect("/dev/ttyITLA0", 115200), ErrBusy)

	pollUntil(t, l, countAtLeast(1))
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	require.Equal(t, 2, o.calls)
}

func TestLink_OpenErrorIsReportedOnce(t *testing.T) {
	o := &fakeOpener{err: serial.ErrBusy}
	l := newTestLink(t, o)

	err := l.Connect("/dev/ttyITLA0", 115200)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	require.Equal(t, "/dev/ttyITLA0", openErr.Port)
	require.ErrorIs(t, err, serial.ErrBusy)

	state := l.CurrentState()
	require.Equal(t, Disconnected, state.Status)
	require.ErrorIs(t, state.Reason, serial.ErrBusy)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, o.calls)
	require.Empty(t, l.PollEvents())
}

func TestLink_WriteErrorEndsLink(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))

	tr := o.transports[0]
	tr.feed("still reading")
	pollUntil(t, l, countAtLeast(1))

	broken := errors.New("input/output error")
	tr.mu.Lock()
	tr.writeErr = broken
	tr.mu.Unlock()

	err := l.SendCommand(LaserOff)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, "LASER_OFF", writeErr.Command)
	require.ErrorIs(t, err, broken)

	state := l.CurrentState()
	require.Equal(t, Disconnected, state.Status)
	require.ErrorIs(t, state.Reason, broken)
	require.True(t, tr.closed)

	events := l.PollEvents()
	require.Len(t, events, 1)
	require.Equal(t, EventDisconnected, events[0].Kind)
	require.ErrorIs(t, events[0].Err, broken)
	require.Empty(t, l.PollEvents())

	require.ErrorIs(t, l.SendCommand(LaserOff), ErrNotConnected)
}

func TestLink_ReconnectAfterWriteErrorSurvivesPoll(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))

	first := o.transports[0]
	broken := errors.New("input/output error")
	first.mu.Lock()
	first.writeErr = broken
	first.mu.Unlock()
	require.Error(t, l.SendCommand(LaserOn))

	// Reconnect before the control loop drains the lost-link event.
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	require.Equal(t, Connected, l.CurrentState().Status)

	events := l.PollEvents()
	require.Len(t, events, 1)
	require.Equal(t, EventDisconnected, events[0].Kind)
	require.ErrorIs(t, events[0].Err, broken)

	second := o.transports[1]
	require.Equal(t, Connected, l.CurrentState().Status)
	require.False(t, second.closed)
	require.NoError(t, l.SendCommand(LaserOn))
	require.Equal(t, []string{"LASER_ON"}, second.lines())

	second.feed("fresh")
	events = pollUntil(t, l, countAtLeast(1))
	require.Equal(t, EventLogText, events[0].Kind)
	require.Equal(t, Connected, l.CurrentState().Status)
}

func TestLink_ReconnectAfterReadAndWriteErrors(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))

	first := o.transports[0]
	first.fail(serial.ErrClosed)
	require.Eventually(t, func() bool { return l.events.Len() == 1 }, time.Second, 5*time.Millisecond)

	first.mu.Lock()
	first.writeErr = errors.New("input/output error")
	first.mu.Unlock()
	err := l.SendCommand(LaserOff)
	require.Error(t, err)
	// The reader's failure was first and stays the reason.
	require.ErrorIs(t, l.CurrentState().Reason, serial.ErrClosed)

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))

	events := l.PollEvents()
	require.Len(t, events, 1)
	require.Equal(t, EventDisconnected, events[0].Kind)
	require.ErrorIs(t, events[0].Err, serial.ErrClosed)
	require.Equal(t, Connected, l.CurrentState().Status)
	require.False(t, o.transports[1].closed)
}

func TestLink_MalformedKeepsLinkUp(t *testing.T) {
	o := &fakeOpener{}
	l := newTestLink(t, o)
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))

	tr := o.transports[0]
	tr.feed(`{not json}`)
	tr.feed(`{"freq":1.0}`)
	tr.feed(`{"freq":194,"power":1,"temp":20}`)

	events := pollUntil(t, l, countAtLeast(3))
	require.Equal(t, EventMalformed, events[0].Kind)
	require.Equal(t, EventMalformed, events[1].Kind)
	require.Equal(t, EventTelemetry, events[2].Kind)
	require.Equal(t, Connected, l.CurrentState().Status)
	require.NoError(t, l.CurrentState().Reason)
}

func TestLink_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	o := &fakeOpener{}
	l := newTestLink(t, o, WithMetrics(m))

	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))
	require.Equal(t, float64(1), testutil.ToFloat64(m.connected))

	tr := o.transports[0]
	tr.feed(`{"freq":193.5,"power":5.25,"temp":25.3}`)
	tr.feed("hello")
	tr.feed("{bad}")
	pollUntil(t, l, countAtLeast(3))
	require.NoError(t, l.SendCommand(LaserOn))

	require.Equal(t, float64(1), testutil.ToFloat64(m.frames.WithLabelValues("telemetry")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.frames.WithLabelValues("log")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.frames.WithLabelValues("malformed")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("LASER_ON")))

	tr.fail(serial.ErrClosed)
	pollUntil(t, l, countAtLeast(1))
	require.Equal(t, float64(0), testutil.ToFloat64(m.connected))
	require.Equal(t, float64(1), testutil.ToFloat64(m.lost))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Positive(t, count)
}

func TestLink_QueueSizeDropsLogText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	o := &fakeOpener{}
	l := newTestLink(t, o, WithMetrics(m), WithQueueSize(2))
	require.NoError(t, l.Connect("/dev/ttyITLA0", 115200))

	tr := o.transports[0]
	tr.feed("a")
	tr.feed("b")
	tr.feed("c")
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.dropped) == 1 }, time.Second, 5*time.Millisecond)

	events := l.PollEvents()
	require.Equal(t, []Event{{Kind: EventLogText, Text: "b"}, {Kind: EventLogText, Text: "c"}}, events)
}
