package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Swind/go-frame-observer/core"
	"github.com/Swind/go-frame-observer/observer"
)

// stage is a named processor of the synthetic pipeline.
type stage string

func (s stage) Name() string { return string(s) }

// frame is a synthetic pipeline frame. Names follow the "Kind#id" convention.
type frame struct {
	id   uint64
	kind string
}

func newFrame(kind string) *frame {
	return &frame{id: core.ObjectID(), kind: kind}
}

func (f *frame) Name() string { return fmt.Sprintf("%s#%d", f.kind, f.id) }

var frameKinds = []string{"AudioRawFrame", "TranscriptionFrame", "TextFrame", "TTSAudioRawFrame"}

// pump walks one frame per tick through every hop of the pipeline, pushing
// an event per hop. Every fourth tick also sends an upstream interruption.
type pump struct {
	fanout   *observer.Fanout
	stages   []stage
	interval time.Duration

	mu    sync.Mutex
	ticks int
	clock time.Duration
}

func newPump(f *observer.Fanout, stages []string, interval time.Duration) *pump {
	p := &pump{fanout: f, interval: interval}
	for _, s := range stages {
		p.stages = append(p.stages, stage(s))
	}
	return p
}

func (p *pump) run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *pump) tick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ticks++
	fr := newFrame(frameKinds[(p.ticks-1)%len(frameKinds)])
	for i := 0; i+1 < len(p.stages); i++ {
		p.clock += time.Millisecond
		p.fanout.Push(ctx, p.stages[i], p.stages[i+1], fr, observer.Downstream, p.clock)
	}

	if p.ticks%4 == 0 {
		interrupt := newFrame("InterruptionFrame")
		for i := len(p.stages) - 1; i > 0; i-- {
			p.clock += time.Millisecond
			p.fanout.Push(ctx, p.stages[i], p.stages[i-1], interrupt, observer.Upstream, p.clock)
		}
	}
}

// loggingObserver writes every event to the daemon logger at debug level.
type loggingObserver struct {
	logger core.Logger
}

func (o *loggingObserver) Name() string { return "log" }

func (o *loggingObserver) OnEvent(ctx context.Context, ev observer.Event) error {
	o.logger.Debug("frame observed",
		core.F("src", ev.Source.Name()),
		core.F("dst", ev.Destination.Name()),
		core.F("frame", ev.Frame.Name()),
		core.F("direction", ev.Direction.String()),
		core.F("ts", ev.Timestamp))
	return nil
}

// countingObserver tallies events by direction and by destination.
type countingObserver struct {
	mu     sync.Mutex
	total  int64
	byDir  map[string]int64
	byDest map[string]int64
}

func newCountingObserver() *countingObserver {
	return &countingObserver{byDir: map[string]int64{}, byDest: map[string]int64{}}
}

func (o *countingObserver) Name() string { return "count" }

func (o *countingObserver) OnEvent(ctx context.Context, ev observer.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.total++
	o.byDir[ev.Direction.String()]++
	o.byDest[ev.Destination.Name()]++
	return nil
}

type eventCounts struct {
	Total         int64            `json:"total"`
	ByDirection   map[string]int64 `json:"by_direction"`
	ByDestination map[string]int64 `json:"by_destination"`
}

func (o *countingObserver) Counts() eventCounts {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := eventCounts{
		Total:         o.total,
		ByDirection:   make(map[string]int64, len(o.byDir)),
		ByDestination: make(map[string]int64, len(o.byDest)),
	}
	for k, v := range o.byDir {
		c.ByDirection[k] = v
	}
	for k, v := range o.byDest {
		c.ByDestination[k] = v
	}
	return c
}

func buildObservers(names []string, logger core.Logger, counter *countingObserver) []observer.Observer {
	seen := make(map[string]bool, len(names))
	out := make([]observer.Observer, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		switch n {
		case "log":
			out = append(out, &loggingObserver{logger: logger})
		case "count":
			out = append(out, counter)
		}
	}
	return out
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
