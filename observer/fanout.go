package observer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-frame-observer/core"
)

// Fanout hands every pipeline event to a fixed set of observers without
// waiting for any of them.
//
// Each observer gets its own unbounded queue drained by its own task, so a
// slow or failed observer never holds up the pipeline or the other
// observers. Events reach one observer in the order they were pushed; there
// is no ordering between observers.
//
// Fanout itself implements Observer, so it is what the pipeline is given.
type Fanout struct {
	name        string
	manager     *core.TaskManager
	logger      core.Logger
	metrics     core.Metrics
	stopTimeout time.Duration
	proxies     []*proxy

	pushed  atomic.Int64
	dropped atomic.Int64

	// pushMu orders pushes against the stopped flip: once Stop holds it,
	// no push is mid-flight and none will reach a proxy queue again.
	pushMu  sync.RWMutex
	stopMu  sync.Mutex
	stopped atomic.Bool
}

var _ Observer = (*Fanout)(nil)

type fanoutOptions struct {
	name        string
	stopTimeout time.Duration
	logger      core.Logger
	metrics     core.Metrics
}

// Option configures a Fanout.
type Option func(*fanoutOptions)

// WithName overrides the default "Fanout#N" name.
func WithName(name string) Option {
	return func(o *fanoutOptions) { o.name = name }
}

// WithStopTimeout bounds how long Stop waits for each observer task. Zero waits forever.
func WithStopTimeout(d time.Duration) Option {
	return func(o *fanoutOptions) { o.stopTimeout = d }
}

// WithLogger overrides the manager's logger.
func WithLogger(l core.Logger) Option {
	return func(o *fanoutOptions) { o.logger = l }
}

// WithMetrics overrides the manager's metrics sink.
func WithMetrics(m core.Metrics) Option {
	return func(o *fanoutOptions) { o.metrics = m }
}

// NewFanout creates one proxy per non-nil observer and starts its drain task
// on mgr right away. A nil mgr gets a private TaskManager with default config.
// The observer set cannot change afterwards.
func NewFanout(mgr *core.TaskManager, observers []Observer, opts ...Option) *Fanout {
	if mgr == nil {
		mgr = core.NewTaskManager(nil)
	}

	o := fanoutOptions{
		logger:  mgr.Logger(),
		metrics: mgr.Metrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = fmt.Sprintf("Fanout#%d", core.ObjectCount("Fanout"))
	}
	if o.logger == nil {
		o.logger = core.NewNoOpLogger()
	}
	if o.metrics == nil {
		o.metrics = &core.NilMetrics{}
	}

	f := &Fanout{
		name:        o.name,
		manager:     mgr,
		logger:      o.logger,
		metrics:     o.metrics,
		stopTimeout: o.stopTimeout,
		proxies:     make([]*proxy, 0, len(observers)),
	}

	for _, obs := range observers {
		if obs == nil {
			continue
		}
		obsName := observerName(obs)
		p := &proxy{
			name:         fmt.Sprintf("%s::%s", f.name, obsName),
			observerName: obsName,
			observer:     obs,
			queue:        core.NewQueue[Event](),
			metrics:      f.metrics,
		}
		p.task = mgr.Create(p.run, p.name)
		f.proxies = append(f.proxies, p)
	}

	f.logger.Debug(f.name+": started", core.F("fanout", f.name), core.F("observers", len(f.proxies)))
	return f
}

func (f *Fanout) Name() string   { return f.name }
func (f *Fanout) String() string { return f.name }

// OnEvent queues a copy of ev for every observer and returns without waiting
// for any of them. It always returns nil; events pushed after Stop are dropped.
func (f *Fanout) OnEvent(ctx context.Context, ev Event) error {
	f.pushMu.RLock()
	defer f.pushMu.RUnlock()

	if f.stopped.Load() {
		f.dropped.Add(1)
		for _, p := range f.proxies {
			f.metrics.RecordEventDropped(p.name, "stopped")
		}
		f.logger.Debug(f.name+": event dropped after stop",
			core.F("fanout", f.name),
			core.F("src", nodeName(ev.Source)),
			core.F("dst", nodeName(ev.Destination)),
			core.F("frame", nodeName(ev.Frame)))
		return nil
	}

	f.pushed.Add(1)
	for _, p := range f.proxies {
		depth := p.queue.Push(ev.copyFor())
		f.metrics.RecordQueueDepth(p.name, depth)
	}
	return nil
}

// Push is OnEvent with the event fields spelled out.
func (f *Fanout) Push(ctx context.Context, src, dst Processor, frame Frame, direction Direction, timestamp time.Duration) error {
	return f.OnEvent(ctx, Event{
		Source:      src,
		Destination: dst,
		Frame:       frame,
		Direction:   direction,
		Timestamp:   timestamp,
	})
}

// Stop cancels every observer task and waits for each to unwind, bounded by
// the stop timeout. Afterwards none of this fanout's tasks are in the
// manager's registry. Calling Stop again is a no-op.
func (f *Fanout) Stop(ctx context.Context) {
	f.stopMu.Lock()
	defer f.stopMu.Unlock()

	f.pushMu.Lock()
	already := f.stopped.Swap(true)
	f.pushMu.Unlock()
	if already {
		f.logger.Debug(f.name+": already stopped", core.F("fanout", f.name))
		return
	}

	for _, p := range f.proxies {
		f.manager.Cancel(ctx, p.task, f.stopTimeout)
		if n := p.queue.Clear(); n > 0 {
			f.logger.Debug(p.name+": discarded undelivered events", core.F("task", p.name), core.F("count", n))
		}
		f.metrics.RecordQueueDepth(p.name, 0)
	}
	f.logger.Debug(f.name+": stopped", core.F("fanout", f.name))
}

// Stopped reports whether Stop has been called.
func (f *Fanout) Stopped() bool {
	return f.stopped.Load()
}

// Tasks returns the observer task handles in observer order.
func (f *Fanout) Tasks() []*core.TaskHandle {
	out := make([]*core.TaskHandle, len(f.proxies))
	for i, p := range f.proxies {
		out[i] = p.task
	}
	return out
}

func (f *Fanout) Stats() FanoutStats {
	stats := FanoutStats{
		Name:    f.name,
		Stopped: f.stopped.Load(),
		Pushed:  f.pushed.Load(),
		Dropped: f.dropped.Load(),
		Proxies: make([]ProxyStats, len(f.proxies)),
	}
	for i, p := range f.proxies {
		stats.Proxies[i] = p.stats()
	}
	return stats
}
