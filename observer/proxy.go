package observer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Swind/go-frame-observer/core"
)

// ProxyState is where a proxy's drain loop currently is.
type ProxyState int32

const (
	ProxyWaiting ProxyState = iota
	ProxyDispatching
	ProxyTerminated
)

func (s ProxyState) String() string {
	switch s {
	case ProxyWaiting:
		return "waiting"
	case ProxyDispatching:
		return "dispatching"
	case ProxyTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ProxyState(%d)", int32(s))
	}
}

func (s ProxyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// proxy pairs one observer with its own queue and drain task.
type proxy struct {
	name         string
	observerName string
	observer     Observer
	queue        *core.Queue[Event]
	task         *core.TaskHandle
	metrics      core.Metrics

	state     atomic.Int32
	delivered atomic.Int64
}

// run drains the queue until ctx is cancelled or the observer fails. There
// is no way back from a failure: the queue keeps filling with nobody reading it.
func (p *proxy) run(ctx context.Context) error {
	defer p.setState(ProxyTerminated)

	for {
		p.setState(ProxyWaiting)
		ev, err := p.queue.Next(ctx)
		if err != nil {
			return err
		}

		p.setState(ProxyDispatching)
		if err := p.observer.OnEvent(ctx, ev); err != nil {
			return fmt.Errorf("observer %s: %w", p.observerName, err)
		}
		p.delivered.Add(1)
		p.metrics.RecordQueueDepth(p.name, p.queue.Len())
	}
}

func (p *proxy) setState(s ProxyState) {
	p.state.Store(int32(s))
}

func (p *proxy) State() ProxyState {
	return ProxyState(p.state.Load())
}

func (p *proxy) stats() ProxyStats {
	return ProxyStats{
		Observer:  p.observerName,
		Task:      p.name,
		TaskID:    p.task.ID(),
		State:     p.State(),
		Pending:   p.queue.Len(),
		Delivered: p.delivered.Load(),
		Outcome:   p.task.Outcome(),
	}
}
