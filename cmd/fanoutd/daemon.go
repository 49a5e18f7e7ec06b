package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Swind/go-frame-observer/config"
	"github.com/Swind/go-frame-observer/core"
	obs "github.com/Swind/go-frame-observer/observability/prometheus"
	"github.com/Swind/go-frame-observer/observer"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 5 * time.Second

// daemon owns everything fanoutd runs: the task manager, the fanout with its
// observers, the frame pump, the snapshot poller and the HTTP server.
type daemon struct {
	cfg     config.Config
	logger  *core.ZerologLogger
	reg     *prom.Registry
	manager *core.TaskManager
	fanout  *observer.Fanout
	counter *countingObserver
	poller  *obs.SnapshotPoller
	pump    *pump

	pumpTask *core.TaskHandle
	server   *http.Server
}

func newDaemon(cfg config.Config, logger *core.ZerologLogger) (*daemon, error) {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	poller, err := obs.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.SnapshotInterval.Std())
	if err != nil {
		return nil, fmt.Errorf("snapshot poller: %w", err)
	}

	mgr := core.NewTaskManager(&core.TaskManagerConfig{
		Name:            cfg.Manager.Name,
		Logger:          logger,
		Metrics:         exporter,
		HistoryCapacity: cfg.Manager.HistoryCapacity,
	})

	counter := newCountingObserver()
	fanout := observer.NewFanout(mgr, buildObservers(cfg.Demo.Observers, logger, counter),
		observer.WithName(cfg.Fanout.Name),
		observer.WithStopTimeout(cfg.Fanout.StopTimeout.Std()))

	poller.AddManager(mgr.Name(), mgr)
	poller.AddFanout(fanout.Name(), fanout)

	d := &daemon{
		cfg:     cfg,
		logger:  logger,
		reg:     reg,
		manager: mgr,
		fanout:  fanout,
		counter: counter,
		poller:  poller,
		pump:    newPump(fanout, cfg.Demo.Stages, cfg.Demo.Interval.Std()),
	}
	d.server = &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           newRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return d, nil
}

// Start launches the pump and the poller as managed tasks.
func (d *daemon) Start() {
	d.poller.Start(d.manager)
	d.pumpTask = d.manager.Create(d.pump.run, "FramePump")
	d.logger.Info("pipeline started",
		core.F("fanout", d.fanout.Name()),
		core.F("observers", len(d.fanout.Tasks())),
		core.F("stages", len(d.cfg.Demo.Stages)),
		core.F("interval", d.cfg.Demo.Interval.Std()))
}

// Stop tears down in dependency order: producer first, then the fanout, then
// the poller, then anything still registered.
func (d *daemon) Stop(ctx context.Context) {
	if d.pumpTask != nil {
		d.manager.Cancel(ctx, d.pumpTask, d.cfg.Fanout.StopTimeout.Std())
		d.pumpTask = nil
	}
	d.fanout.Stop(ctx)
	d.poller.Stop(ctx)
	d.manager.Shutdown(ctx, d.cfg.Fanout.StopTimeout.Std())

	counts := d.counter.Counts()
	fields := []core.Field{core.F("total", counts.Total)}
	for _, dest := range sortedKeys(counts.ByDestination) {
		fields = append(fields, core.F("to_"+dest, counts.ByDestination[dest]))
	}
	d.logger.Info("pipeline stopped", fields...)
}

// Run serves HTTP and runs the pipeline until ctx is done or the listener fails.
func (d *daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.server.Addr, err)
	}

	d.Start()

	serveErr := make(chan error, 1)
	go func() {
		d.logger.Info("fanoutd listening", core.F("addr", ln.Addr().String()))
		serveErr <- d.server.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("shutdown requested")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("graceful shutdown error", core.F("error", err))
	}
	d.Stop(shutdownCtx)
	return runErr
}
