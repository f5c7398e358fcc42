package watchdog

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"pingwatch/pkg/agent"
	"pingwatch/pkg/config"
	"pingwatch/pkg/metrics"
	"pingwatch/pkg/monitor"
	"pingwatch/pkg/notifier"
)

// ShutdownTimeout bounds how long Stop waits for the metrics server.
var ShutdownTimeout = 5 * time.Second

// Watchdog manages the monitor lifecycle and its supporting services.
type Watchdog struct {
	opts    config.Options
	monitor *agent.Monitor
	pusher  *notifier.Pusher
	metrics *metrics.Recorder
	server  *metrics.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatchdog(opts config.Options) (*Watchdog, error) {
	probe, err := monitor.GetProbe(opts.Probe)
	if err != nil {
		return nil, err
	}
	probe.SetTimeout(opts.ProbeTimeout)
	if icmpProbe, ok := probe.(*monitor.ICMPProbe); ok {
		icmpProbe.Privileged = opts.Privileged
	}

	w := &Watchdog{
		opts:   opts,
		pusher: notifier.NewPusher(opts.NtfyURL, opts.Token),
	}
	if opts.MetricsAddr != "" {
		w.metrics = metrics.NewRecorder()
		w.server = metrics.NewServer(opts.MetricsAddr, w.metrics)
	}
	w.monitor = agent.NewMonitor(probe, opts.OnProbeError, w.metrics)
	return w, nil
}

// Status returns the monitor's current belief about the host. It is safe to
// call while the monitor loop is running.
func (w *Watchdog) Status() agent.HealthStatus {
	return w.monitor.Status()
}

func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	if w.server != nil {
		w.server.Start()
	}

	log.Printf("[%s] Monitoring with %s probe every %v", w.opts.Server, w.opts.Probe, w.opts.Interval)

	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Watchdog) run(ctx context.Context) {
	defer w.wg.Done()

	err := w.monitor.Run(ctx, w.opts.Server, w.opts.Interval, w.pusher)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[%s] Monitor stopped: %v", w.opts.Server, err)
	}
}

// Wait blocks until the monitor loop has exited.
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	if w.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := w.server.Shutdown(ctx); err != nil {
			log.Printf("[metrics] Shutdown error: %v", err)
		}
	}
}
