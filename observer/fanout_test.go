package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-frame-observer/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test helpers
// =============================================================================

type testNode string

func (n testNode) Name() string { return string(n) }

// mutableFrame carries state an observer may change; Clone gives each observer its own.
type mutableFrame struct {
	name   string
	tags   []string
	clones *atomic.Int32
}

func (f *mutableFrame) Name() string { return f.name }

func (f *mutableFrame) Clone() Frame {
	f.clones.Add(1)
	return &mutableFrame{name: f.name, tags: append([]string(nil), f.tags...), clones: f.clones}
}

// recordingObserver keeps every frame name it sees. It fails on the event
// whose 1-based index equals failAt, and blocks on gate if set.
type recordingObserver struct {
	name   string
	failAt int
	gate   chan struct{}

	mu     sync.Mutex
	frames []string
	events []Event
}

func (o *recordingObserver) Name() string { return o.name }

func (o *recordingObserver) OnEvent(ctx context.Context, ev Event) error {
	if o.gate != nil {
		select {
		case <-o.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failAt > 0 && len(o.frames)+1 == o.failAt {
		o.frames = append(o.frames, "!"+ev.Frame.Name())
		return errors.New("observer broke")
	}
	o.frames = append(o.frames, ev.Frame.Name())
	o.events = append(o.events, ev)
	return nil
}

func (o *recordingObserver) seen() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.frames...)
}

func (o *recordingObserver) received() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

type panickyObserver struct{}

func (panickyObserver) OnEvent(ctx context.Context, ev Event) error {
	panic("observer exploded")
}

type quietPanicHandler struct{}

func (quietPanicHandler) HandlePanic(ctx context.Context, taskName string, panicInfo any, stackTrace []byte) {
}

func newTestManager() *core.TaskManager {
	return core.NewTaskManager(&core.TaskManagerConfig{
		Name:         "test",
		Logger:       core.NewNoOpLogger(),
		PanicHandler: quietPanicHandler{},
	})
}

func push(t *testing.T, f *Fanout, frames ...string) {
	t.Helper()
	for i, name := range frames {
		require.NoError(t, f.Push(context.Background(), testNode("src"), testNode("dst"), testNode(name), Downstream, time.Duration(i)))
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

// =============================================================================
// Construction
// =============================================================================

// TestNewFanout_OneTaskPerObserver verifies each observer gets its own registered task
// Given: a manager and three observers
// When: a fanout is created
// Then: three handles are live, named "<fanout>::<observer>"
func TestNewFanout_OneTaskPerObserver(t *testing.T) {
	// Arrange
	mgr := newTestManager()
	observers := []Observer{
		&recordingObserver{name: "metrics"},
		&recordingObserver{name: "debug"},
		NoOpObserver{},
	}

	// Act
	f := NewFanout(mgr, observers, WithName("pipeline"))
	defer f.Stop(context.Background())

	// Assert
	require.Equal(t, 3, mgr.Registry().Len())
	tasks := f.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "pipeline::metrics", tasks[0].Name())
	assert.Equal(t, "pipeline::debug", tasks[1].Name())
	assert.Equal(t, "pipeline::NoOpObserver", tasks[2].Name())
	for _, h := range tasks {
		assert.True(t, mgr.Registry().Contains(h))
	}
}

// TestNewFanout_SkipsNilObservers verifies nil entries do not start tasks
func TestNewFanout_SkipsNilObservers(t *testing.T) {
	mgr := newTestManager()
	f := NewFanout(mgr, []Observer{nil, NoOpObserver{}, nil})
	defer f.Stop(context.Background())

	assert.Len(t, f.Tasks(), 1)
	assert.Equal(t, 1, mgr.Registry().Len())
}

// TestNewFanout_DefaultName verifies generated names are unique per fanout
func TestNewFanout_DefaultName(t *testing.T) {
	mgr := newTestManager()
	f1 := NewFanout(mgr, nil)
	f2 := NewFanout(mgr, nil)

	assert.Regexp(t, `^Fanout#\d+$`, f1.Name())
	assert.Regexp(t, `^Fanout#\d+$`, f2.Name())
	assert.NotEqual(t, f1.Name(), f2.Name())
	assert.Equal(t, f1.Name(), f1.String())
}

// TestNewFanout_NilManager verifies a private manager is created when none is given
func TestNewFanout_NilManager(t *testing.T) {
	obs := &recordingObserver{name: "solo"}
	f := NewFanout(nil, []Observer{obs}, WithLogger(core.NewNoOpLogger()))

	push(t, f, "A")
	waitFor(t, func() bool { return len(obs.seen()) == 1 }, "event not delivered")

	f.Stop(context.Background())
	assert.True(t, f.Tasks()[0].IsDone())
}

// =============================================================================
// Delivery
// =============================================================================

// TestFanout_PreservesOrderPerObserver verifies each observer sees push order
// Given: two observers
// When: e1, e2, e3 are pushed
// Then: both observers receive exactly e1, e2, e3 in that order
func TestFanout_PreservesOrderPerObserver(t *testing.T) {
	// Arrange
	mgr := newTestManager()
	o1 := &recordingObserver{name: "o1"}
	o2 := &recordingObserver{name: "o2"}
	f := NewFanout(mgr, []Observer{o1, o2})
	defer f.Stop(context.Background())

	// Act
	push(t, f, "e1", "e2", "e3")

	// Assert
	waitFor(t, func() bool { return len(o1.seen()) == 3 && len(o2.seen()) == 3 }, "events not delivered")
	assert.Equal(t, []string{"e1", "e2", "e3"}, o1.seen())
	assert.Equal(t, []string{"e1", "e2", "e3"}, o2.seen())
}

// TestFanout_ManyEventsInOrder verifies ordering holds under a burst
func TestFanout_ManyEventsInOrder(t *testing.T) {
	mgr := newTestManager()
	var (
		mu  sync.Mutex
		got []time.Duration
	)
	obs := ObserverFunc(func(ctx context.Context, ev Event) error {
		mu.Lock()
		got = append(got, ev.Timestamp)
		mu.Unlock()
		return nil
	})
	f := NewFanout(mgr, []Observer{obs})
	defer f.Stop(context.Background())

	const n = 500
	for i := 0; i < n; i++ {
		f.Push(context.Background(), testNode("a"), testNode("b"), testNode("F"), Downstream, time.Duration(i))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	}, "burst not delivered")

	mu.Lock()
	defer mu.Unlock()
	for i, ts := range got {
		require.Equal(t, time.Duration(i), ts, "event %d out of order", i)
	}
}

// TestFanout_CarriesEventFields verifies observers see the pushed fields unchanged
func TestFanout_CarriesEventFields(t *testing.T) {
	mgr := newTestManager()
	obs := &recordingObserver{name: "o"}
	f := NewFanout(mgr, []Observer{obs})
	defer f.Stop(context.Background())

	f.Push(context.Background(), testNode("transport"), testNode("tts"), testNode("CancelFrame"), Upstream, 42*time.Millisecond)

	waitFor(t, func() bool { return len(obs.received()) == 1 }, "event not delivered")
	ev := obs.received()[0]
	assert.Equal(t, testNode("transport"), ev.Source)
	assert.Equal(t, testNode("tts"), ev.Destination)
	assert.Equal(t, "CancelFrame", ev.Frame.Name())
	assert.Equal(t, Upstream, ev.Direction)
	assert.Equal(t, 42*time.Millisecond, ev.Timestamp)
}

// TestFanout_PushDoesNotBlockOnSlowObserver verifies the producer never waits on observers
// Given: an observer stuck inside OnEvent
// When: many events are pushed
// Then: every push returns immediately and the events queue up
func TestFanout_PushDoesNotBlockOnSlowObserver(t *testing.T) {
	// Arrange
	mgr := newTestManager()
	gate := make(chan struct{})
	slow := &recordingObserver{name: "slow", gate: gate}
	fast := &recordingObserver{name: "fast"}
	f := NewFanout(mgr, []Observer{slow, fast})

	// Act
	start := time.Now()
	for _i := 0; _i < 1000; _i++ {
		f.Push(context.Background(), testNode("a"), testNode("b"), testNode("F"), Downstream, 0)
	}
	elapsed := time.Since(start)

	// Assert
	assert.Less(t, elapsed, time.Second)
	waitFor(t, func() bool { return len(fast.seen()) == 1000 }, "fast observer held back by slow one")
	assert.Empty(t, slow.seen())
	assert.GreaterOrEqual(t, f.Stats().Proxies[0].Pending, 999)

	close(gate)
	waitFor(t, func() bool { return len(slow.seen()) == 1000 }, "slow observer did not catch up")
	f.Stop(context.Background())
}

// TestFanout_ClonesFramesPerObserver verifies mutable frames are not shared between observers
func TestFanout_ClonesFramesPerObserver(t *testing.T) {
	mgr := newTestManager()
	o1 := &recordingObserver{name: "o1"}
	o2 := &recordingObserver{name: "o2"}
	f := NewFanout(mgr, []Observer{o1, o2})
	defer f.Stop(context.Background())

	var clones atomic.Int32
	frame := &mutableFrame{name: "Transcription", tags: []string{"final"}, clones: &clones}
	f.Push(context.Background(), testNode("stt"), testNode("llm"), frame, Downstream, 0)

	waitFor(t, func() bool { return len(o1.received()) == 1 && len(o2.received()) == 1 }, "event not delivered")
	f1 := o1.received()[0].Frame.(*mutableFrame)
	f2 := o2.received()[0].Frame.(*mutableFrame)

	assert.Equal(t, int32(2), clones.Load())
	assert.NotSame(t, frame, f1)
	assert.NotSame(t, f1, f2)
	f1.tags[0] = "changed"
	assert.Equal(t, "final", f2.tags[0])
	assert.Equal(t, "final", frame.tags[0])
}

// =============================================================================
// Failure isolation
// =============================================================================

// TestFanout_FailedObserverStopsOnlyItself verifies one observer's failure is contained
// Given: O1 fails on its second event, O2 is healthy
// When: four events are pushed
// Then: O1 sees nothing after its failure, O2 sees all four, and O1's handle leaves the registry
func TestFanout_FailedObserverStopsOnlyItself(t *testing.T) {
	// Arrange
	mgr := newTestManager()
	o1 := &recordingObserver{name: "o1", failAt: 2}
	o2 := &recordingObserver{name: "o2"}
	f := NewFanout(mgr, []Observer{o1, o2})
	defer f.Stop(context.Background())
	h1, h2 := f.Tasks()[0], f.Tasks()[1]

	// Act
	push(t, f, "e1", "e2")
	waitFor(t, h1.IsDone, "failing observer task did not finish")
	push(t, f, "e3", "e4")

	// Assert
	waitFor(t, func() bool { return len(o2.seen()) == 4 }, "healthy observer missed events")
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, o2.seen())
	assert.Equal(t, []string{"e1", "!e2"}, o1.seen())

	out := h1.Outcome()
	assert.Equal(t, core.StatusFailed, out.Status)
	assert.ErrorContains(t, out.Err, "observer broke")
	assert.False(t, mgr.Registry().Contains(h1))
	assert.True(t, mgr.Registry().Contains(h2))

	stats := f.Stats()
	assert.Equal(t, ProxyTerminated, stats.Proxies[0].State)
	assert.Equal(t, int64(1), stats.Proxies[0].Delivered)
	assert.Equal(t, 2, stats.Proxies[0].Pending)
	assert.Equal(t, int64(4), stats.Proxies[1].Delivered)
}

// TestFanout_PanickingObserverIsContained verifies a panic is absorbed like an error
func TestFanout_PanickingObserverIsContained(t *testing.T) {
	mgr := newTestManager()
	healthy := &recordingObserver{name: "healthy"}
	f := NewFanout(mgr, []Observer{panickyObserver{}, healthy})
	defer f.Stop(context.Background())

	push(t, f, "e1", "e2")

	h := f.Tasks()[0]
	waitFor(t, h.IsDone, "panicking observer task did not finish")
	waitFor(t, func() bool { return len(healthy.seen()) == 2 }, "healthy observer missed events")

	var pe *core.PanicError
	require.ErrorAs(t, h.Outcome().Err, &pe)
	assert.Equal(t, "observer exploded", pe.Value)
	assert.Equal(t, core.StatusFailed, h.Outcome().Status)
	assert.False(t, mgr.Registry().Contains(h))
}

// =============================================================================
// Stop
// =============================================================================

// TestFanout_StopCancelsAllTasks verifies Stop leaves nothing in the registry
// Given: a fanout with two observers, one blocked in OnEvent
// When: Stop is called
// Then: both tasks are cancelled and the registry is empty
func TestFanout_StopCancelsAllTasks(t *testing.T) {
	// Arrange
	mgr := newTestManager()
	blocked := &recordingObserver{name: "blocked", gate: make(chan struct{})}
	idle := &recordingObserver{name: "idle"}
	f := NewFanout(mgr, []Observer{blocked, idle})
	push(t, f, "e1", "e2")
	waitFor(t, func() bool { return f.Stats().Proxies[0].State == ProxyDispatching }, "blocked observer never dispatched")

	// Act
	f.Stop(context.Background())

	// Assert
	assert.True(t, f.Stopped())
	assert.Equal(t, 0, mgr.Registry().Len())
	for _, h := range f.Tasks() {
		assert.True(t, h.IsDone())
		assert.Equal(t, core.StatusCancelled, h.Outcome().Status)
	}
	for _, ps := range f.Stats().Proxies {
		assert.Equal(t, ProxyTerminated, ps.State)
		assert.Zero(t, ps.Pending)
	}
}

// TestFanout_StopIsIdempotent verifies a second Stop does nothing
func TestFanout_StopIsIdempotent(t *testing.T) {
	mgr := newTestManager()
	f := NewFanout(mgr, []Observer{NoOpObserver{}, NoOpObserver{}})

	f.Stop(context.Background())
	f.Stop(context.Background())

	assert.Equal(t, 0, mgr.Registry().Len())
	assert.Zero(t, mgr.Stats().DoubleReleases)
	assert.Equal(t, int64(2), mgr.Stats().Cancelled)
}

// TestFanout_StopAfterObserverFailed verifies stopping with an already finished task is clean
func TestFanout_StopAfterObserverFailed(t *testing.T) {
	mgr := newTestManager()
	o1 := &recordingObserver{name: "o1", failAt: 1}
	f := NewFanout(mgr, []Observer{o1, NoOpObserver{}})

	push(t, f, "e1")
	waitFor(t, f.Tasks()[0].IsDone, "failing observer task did not finish")

	f.Stop(context.Background())

	assert.Equal(t, 0, mgr.Registry().Len())
	assert.Zero(t, mgr.Stats().DoubleReleases)
	assert.Equal(t, core.StatusFailed, f.Tasks()[0].Outcome().Status)
	assert.Equal(t, core.StatusCancelled, f.Tasks()[1].Outcome().Status)
}

// TestFanout_EventsAfterStopAreDropped verifies pushes after Stop are counted and discarded
func TestFanout_EventsAfterStopAreDropped(t *testing.T) {
	mgr := newTestManager()
	obs := &recordingObserver{name: "o"}
	f := NewFanout(mgr, []Observer{obs})

	push(t, f, "e1")
	waitFor(t, func() bool { return len(obs.seen()) == 1 }, "event not delivered")
	f.Stop(context.Background())

	push(t, f, "late1", "late2")

	stats := f.Stats()
	assert.Equal(t, int64(1), stats.Pushed)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Zero(t, stats.Proxies[0].Pending)
	assert.Equal(t, []string{"e1"}, obs.seen())
}

// TestFanout_DroppedEventLogsNodeNames verifies the drop log carries the event's node names as fields
func TestFanout_DroppedEventLogsNodeNames(t *testing.T) {
	var buf bytes.Buffer
	logger := core.NewZerologLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	f := NewFanout(newTestManager(), nil, WithName("logged"), WithLogger(logger))
	f.Stop(context.Background())
	buf.Reset()

	f.Push(context.Background(), testNode("stt"), testNode("llm"), testNode("TextFrame#3"), Downstream, 0)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "logged: event dropped after stop", line["message"])
	assert.Equal(t, "stt", line["src"])
	assert.Equal(t, "llm", line["dst"])
	assert.Equal(t, "TextFrame#3", line["frame"])
	assert.NotContains(t, line, "event")
}

// TestFanout_StopTimeoutReleasesStuckObserver verifies Stop does not hang on an observer ignoring cancellation
func TestFanout_StopTimeoutReleasesStuckObserver(t *testing.T) {
	mgr := newTestManager()
	release := make(chan struct{})
	stuck := ObserverFunc(func(ctx context.Context, ev Event) error {
		<-release
		return nil
	})
	f := NewFanout(mgr, []Observer{stuck}, WithStopTimeout(20*time.Millisecond))
	push(t, f, "e1")
	waitFor(t, func() bool { return f.Stats().Proxies[0].State == ProxyDispatching }, "observer never dispatched")

	start := time.Now()
	f.Stop(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, mgr.Registry().Len())
	assert.Equal(t, int64(1), mgr.Stats().WaitTimeouts)

	close(release)
	waitFor(t, f.Tasks()[0].IsDone, "stuck observer did not finish after release")
}

// TestFanout_PushRacingStopLeavesNoPendingEvents verifies a push concurrent
// with Stop either lands before the queues are cleared or is dropped
// Given: observers blocked on their first event and a producer pushing in a loop
// When: Stop is called while the producer is still pushing
// Then: no queue holds events afterwards and every push is counted exactly once
func TestFanout_PushRacingStopLeavesNoPendingEvents(t *testing.T) {
	for run := 0; run < 100; run++ {
		// Arrange
		mgr := newTestManager()
		metrics := newRecordingMetrics()
		gate := make(chan struct{})
		f := NewFanout(mgr, []Observer{
			&recordingObserver{name: "a", gate: gate},
			&recordingObserver{name: "b", gate: gate},
		}, WithName("race"), WithMetrics(metrics))

		var attempts atomic.Int64
		done := make(chan struct{})
		go func() {
			defer close(done)
			for !f.Stopped() {
				f.Push(context.Background(), testNode("src"), testNode("dst"), testNode("F"), Downstream, 0)
				attempts.Add(1)
			}
			// One more after the flag is visible.
			f.Push(context.Background(), testNode("src"), testNode("dst"), testNode("F"), Downstream, 0)
			attempts.Add(1)
		}()

		// Act
		time.Sleep(50 * time.Microsecond)
		f.Stop(context.Background())
		<-done

		// Assert
		stats := f.Stats()
		for _, ps := range stats.Proxies {
			require.Zero(t, ps.Pending, "run %d: events stranded in %s", run, ps.Task)
			d, _ := metrics.depth(ps.Task)
			require.Zero(t, d, "run %d: stale depth for %s", run, ps.Task)
		}
		require.Equal(t, attempts.Load(), stats.Pushed+stats.Dropped, "run %d", run)
		require.Positive(t, stats.Dropped, "run %d", run)
		require.Equal(t, 0, mgr.Registry().Len())
		close(gate)
	}
}

// =============================================================================
// Metrics
// =============================================================================

type recordingMetrics struct {
	core.NilMetrics

	mu      sync.Mutex
	depths  map[string]int
	dropped map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{depths: map[string]int{}, dropped: map[string]int{}}
}

func (m *recordingMetrics) RecordQueueDepth(queue string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths[queue] = depth
}

func (m *recordingMetrics) RecordEventDropped(queue, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[queue+"/"+reason]++
}

func (m *recordingMetrics) depth(queue string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depths[queue]
	return d, ok
}

// TestFanout_RecordsQueueMetrics verifies depth and drop reporting
func TestFanout_RecordsQueueMetrics(t *testing.T) {
	mgr := newTestManager()
	metrics := newRecordingMetrics()
	gate := make(chan struct{})
	obs := &recordingObserver{name: "o", gate: gate}
	f := NewFanout(mgr, []Observer{obs}, WithName("m"), WithMetrics(metrics))

	push(t, f, "e1", "e2", "e3")
	d, ok := metrics.depth("m::o")
	require.True(t, ok)
	assert.GreaterOrEqual(t, d, 2)

	f.Stop(context.Background())
	d, _ = metrics.depth("m::o")
	assert.Zero(t, d)

	push(t, f, "late")
	metrics.mu.Lock()
	assert.Equal(t, 1, metrics.dropped["m::o/stopped"])
	metrics.mu.Unlock()
}

// =============================================================================
// Naming and formatting
// =============================================================================

type namedObserver struct{ NoOpObserver }

func (namedObserver) Name() string { return "custom" }

type pointerObserver struct{}

func (*pointerObserver) OnEvent(ctx context.Context, ev Event) error { return nil }

func TestObserverName(t *testing.T) {
	tests := []struct {
		name string
		obs  Observer
		want string
	}{
		{"explicit name", namedObserver{}, "custom"},
		{"value type", NoOpObserver{}, "NoOpObserver"},
		{"pointer type", &pointerObserver{}, "pointerObserver"},
		{"empty name falls back to type", &recordingObserver{}, "recordingObserver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, observerName(tt.obs))
		})
	}

	fn := observerName(ObserverFunc(func(ctx context.Context, ev Event) error { return nil }))
	assert.Equal(t, "ObserverFunc", fn)
}

func TestEventString(t *testing.T) {
	ev := Event{
		Source:      testNode("stt"),
		Destination: testNode("llm"),
		Frame:       testNode("TextFrame"),
		Direction:   Downstream,
		Timestamp:   1500 * time.Millisecond,
	}
	assert.Equal(t, "stt -> llm: TextFrame (downstream, 1.5s)", ev.String())

	assert.Equal(t, "<nil> -> <nil>: <nil> (Direction(0), 0s)", Event{}.String())
}

func TestDirectionAndStateStrings(t *testing.T) {
	assert.Equal(t, "downstream", Downstream.String())
	assert.Equal(t, "upstream", Upstream.String())
	assert.Equal(t, "waiting", ProxyWaiting.String())
	assert.Equal(t, "dispatching", ProxyDispatching.String())
	assert.Equal(t, "terminated", ProxyTerminated.String())
	assert.Equal(t, "ProxyState(9)", ProxyState(9).String())

	text, err := ProxyDispatching.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "dispatching", string(text))
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

// TestScenario_TwoObserversThenStop
// Given: a fanout with observers O1 and O2
// When: F1 goes A->B downstream, F2 goes B->C upstream, then the fanout stops
// Then: both record [F1, F2] and neither task remains registered
func TestScenario_TwoObserversThenStop(t *testing.T) {
	// Arrange
	mgr := newTestManager()
	o1 := &recordingObserver{name: "O1"}
	o2 := &recordingObserver{name: "O2"}
	f := NewFanout(mgr, []Observer{o1, o2})
	ctx := context.Background()

	// Act
	require.NoError(t, f.Push(ctx, testNode("A"), testNode("B"), testNode("F1"), Downstream, 1))
	require.NoError(t, f.Push(ctx, testNode("B"), testNode("C"), testNode("F2"), Upstream, 2))
	waitFor(t, func() bool { return len(o1.seen()) == 2 && len(o2.seen()) == 2 }, "events not delivered")
	f.Stop(ctx)

	// Assert
	assert.Equal(t, []string{"F1", "F2"}, o1.seen())
	assert.Equal(t, []string{"F1", "F2"}, o2.seen())
	ev := o2.received()[1]
	assert.Equal(t, Upstream, ev.Direction)
	assert.Equal(t, time.Duration(2), ev.Timestamp)
	for _, h := range f.Tasks() {
		assert.Equal(t, core.StatusCancelled, h.Outcome().Status)
		assert.False(t, mgr.Registry().Contains(h))
	}
}

// TestScenario_FirstObserverFailsOnFirstEvent
// Given: O1 fails on the first event it handles
// When: three events are pushed
// Then: O1 gets nothing more, O2 gets all three, and O1's handle is gone from the registry
func TestScenario_FirstObserverFailsOnFirstEvent(t *testing.T) {
	// Arrange
	mgr := newTestManager()
	o1 := &recordingObserver{name: "O1", failAt: 1}
	o2 := &recordingObserver{name: "O2"}
	f := NewFanout(mgr, []Observer{o1, o2})
	defer f.Stop(context.Background())
	h1 := f.Tasks()[0]

	// Act
	push(t, f, "F1", "F2", "F3")

	// Assert
	waitFor(t, func() bool { return !mgr.Registry().Contains(h1) }, "failed observer still registered")
	waitFor(t, func() bool { return len(o2.seen()) == 3 }, "healthy observer missed events")
	assert.Equal(t, []string{"!F1"}, o1.seen())
	assert.Equal(t, core.StatusFailed, h1.Outcome().Status)
	assert.Equal(t, 1, mgr.Registry().Len())
}
