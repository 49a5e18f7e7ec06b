package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-frame-observer/core"
	"github.com/Swind/go-frame-observer/observer"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ManagerSnapshotProvider provides current task manager stats snapshots.
type ManagerSnapshotProvider interface {
	Stats() core.ManagerStats
}

// FanoutSnapshotProvider provides current fanout stats snapshots.
type FanoutSnapshotProvider interface {
	Stats() observer.FanoutStats
}

// SnapshotPoller periodically exports manager/fanout Stats() snapshots into Prometheus gauges.
// The polling loop runs as a task on a core.TaskManager.
type SnapshotPoller struct {
	interval time.Duration

	managersMu sync.RWMutex
	managers   map[string]ManagerSnapshotProvider

	fanoutsMu sync.RWMutex
	fanouts   map[string]FanoutSnapshotProvider

	managerLive      *prom.GaugeVec
	managerTasks     *prom.GaugeVec
	managerTimeouts  *prom.GaugeVec
	managerReleases  *prom.GaugeVec
	fanoutPushed     *prom.GaugeVec
	fanoutStopped    *prom.GaugeVec
	observerPending  *prom.GaugeVec
	observerDelivery *prom.GaugeVec
	observerDone     *prom.GaugeVec

	stateMu sync.Mutex
	manager *core.TaskManager
	task    *core.TaskHandle
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors
// under namespace, "frameobserver" when empty.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "frameobserver"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	managerLive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "manager_live_tasks",
		Help:      "Number of tasks in the manager registry.",
	}, []string{"manager"})
	managerTasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "manager_tasks",
		Help:      "Manager task count snapshot by status.",
	}, []string{"manager", "status"})
	managerTimeouts := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "manager_wait_timeouts",
		Help:      "Wait/Cancel calls that timed out before the task finished.",
	}, []string{"manager"})
	managerReleases := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "manager_double_releases",
		Help:      "Handles released more than once.",
	}, []string{"manager"})

	fanoutPushed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fanout_pushed_events",
		Help:      "Events accepted by the fanout.",
	}, []string{"fanout"})
	fanoutStopped := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fanout_stopped",
		Help:      "Fanout stopped state (1=stopped, 0=running).",
	}, []string{"fanout"})
	observerPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "observer_pending_events",
		Help:      "Events queued for an observer and not yet delivered.",
	}, []string{"fanout", "observer"})
	observerDelivery := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "observer_delivered_events",
		Help:      "Events delivered to an observer.",
	}, []string{"fanout", "observer"})
	observerDone := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "observer_terminated",
		Help:      "Observer drain loop terminated (1=terminated, 0=running).",
	}, []string{"fanout", "observer"})

	var err error
	if managerLive, err = registerCollector(reg, managerLive); err != nil {
		return nil, err
	}
	if managerTasks, err = registerCollector(reg, managerTasks); err != nil {
		return nil, err
	}
	if managerTimeouts, err = registerCollector(reg, managerTimeouts); err != nil {
		return nil, err
	}
	if managerReleases, err = registerCollector(reg, managerReleases); err != nil {
		return nil, err
	}
	if fanoutPushed, err = registerCollector(reg, fanoutPushed); err != nil {
		return nil, err
	}
	if fanoutStopped, err = registerCollector(reg, fanoutStopped); err != nil {
		return nil, err
	}
	if observerPending, err = registerCollector(reg, observerPending); err != nil {
		return nil, err
	}
	if observerDelivery, err = registerCollector(reg, observerDelivery); err != nil {
		return nil, err
	}
	if observerDone, err = registerCollector(reg, observerDone); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:         interval,
		managers:         make(map[string]ManagerSnapshotProvider),
		fanouts:          make(map[string]FanoutSnapshotProvider),
		managerLive:      managerLive,
		managerTasks:     managerTasks,
		managerTimeouts:  managerTimeouts,
		managerReleases:  managerReleases,
		fanoutPushed:     fanoutPushed,
		fanoutStopped:    fanoutStopped,
		observerPending:  observerPending,
		observerDelivery: observerDelivery,
		observerDone:     observerDone,
	}, nil
}

// AddManager adds or replaces a manager snapshot provider by name.
func (p *SnapshotPoller) AddManager(name string, provider ManagerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "manager")
	p.managersMu.Lock()
	p.managers[name] = provider
	p.managersMu.Unlock()
}

// AddFanout adds or replaces a fanout snapshot provider by name.
func (p *SnapshotPoller) AddFanout(name string, provider FanoutSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "fanout")
	p.fanoutsMu.Lock()
	p.fanouts[name] = provider
	p.fanoutsMu.Unlock()
}

// Start begins periodic polling as a task on mgr; repeated calls are no-ops.
func (p *SnapshotPoller) Start(mgr *core.TaskManager) {
	if p == nil || mgr == nil {
		return
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.task != nil {
		return
	}
	p.manager = mgr
	p.task = mgr.Create(p.loop, "SnapshotPoller")
}

// Stop cancels the polling task; repeated calls are safe.
func (p *SnapshotPoller) Stop(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	mgr, task := p.manager, p.task
	p.manager, p.task = nil, nil
	p.stateMu.Unlock()

	if task != nil {
		mgr.Cancel(ctx, task, 0)
	}
}

func (p *SnapshotPoller) loop(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.managersMu.RLock()
	for name, provider := range p.managers {
		stats := provider.Stats()
		p.managerLive.WithLabelValues(name).Set(float64(stats.Live))
		p.managerTasks.WithLabelValues(name, "created").Set(float64(stats.Created))
		p.managerTasks.WithLabelValues(name, core.StatusOK.String()).Set(float64(stats.Succeeded))
		p.managerTasks.WithLabelValues(name, core.StatusCancelled.String()).Set(float64(stats.Cancelled))
		p.managerTasks.WithLabelValues(name, core.StatusFailed.String()).Set(float64(stats.Failed))
		p.managerTimeouts.WithLabelValues(name).Set(float64(stats.WaitTimeouts))
		p.managerReleases.WithLabelValues(name).Set(float64(stats.DoubleReleases))
	}
	p.managersMu.RUnlock()

	p.fanoutsMu.RLock()
	for name, provider := range p.fanouts {
		stats := provider.Stats()
		p.fanoutPushed.WithLabelValues(name).Set(float64(stats.Pushed))
		p.fanoutStopped.WithLabelValues(name).Set(boolGauge(stats.Stopped))
		for _, ps := range stats.Proxies {
			obs := normalizeLabel(ps.Observer, "unknown")
			p.observerPending.WithLabelValues(name, obs).Set(float64(ps.Pending))
			p.observerDelivery.WithLabelValues(name, obs).Set(float64(ps.Delivered))
			p.observerDone.WithLabelValues(name, obs).Set(boolGauge(ps.State == observer.ProxyTerminated))
		}
	}
	p.fanoutsMu.RUnlock()
}
