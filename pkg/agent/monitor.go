package agent

import (
	"context"
	"log"
	"sync"
	"time"

	"pingwatch/pkg/metrics"
	"pingwatch/pkg/monitor"
)

// Probe error policies
const (
	ProbeErrorSkip = "skip" // Log and leave the status untouched (default)
	ProbeErrorDown = "down" // Treat the failed invocation as unreachable
)

// Notifier delivers a message. Errors are reported, never retried here.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Monitor owns the believed status of one host and turns probe results into
// edge-triggered notifications.
type Monitor struct {
	probe   monitor.Prober
	policy  string
	metrics *metrics.Recorder

	// Written only by Tick; guarded so Status can be read from other goroutines.
	mu     sync.RWMutex
	status HealthStatus
}

func NewMonitor(probe monitor.Prober, policy string, rec *metrics.Recorder) *Monitor {
	if policy == "" {
		policy = ProbeErrorSkip
	}
	return &Monitor{
		probe:   probe,
		policy:  policy,
		metrics: rec,
		status:  StatusUp,
	}
}

// Status returns the current believed status.
func (m *Monitor) Status() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Tick runs one probe and applies the transition table. It returns the
// message to deliver when the status changed.
func (m *Monitor) Tick(ctx context.Context, host string) (string, bool) {
	start := time.Now()
	result := m.probe.Probe(ctx, host)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		// Shutting down: whatever the probe saw says nothing about the host.
		log.Printf("[%s] Probe interrupted, ignoring result", host)
		return "", false
	}

	reachable := result.Reachable
	switch {
	case result.InvocationFailed():
		m.metrics.ObserveProbe(host, metrics.OutcomeError, elapsed)
		if m.policy != ProbeErrorDown {
			log.Printf("[%s] Probe could not run, skipping: %s", host, result.RawError)
			return "", false
		}
		log.Printf("[%s] Probe could not run, treating as unreachable: %s", host, result.RawError)
		reachable = false
	case reachable:
		m.metrics.ObserveProbe(host, metrics.OutcomeReachable, elapsed)
	default:
		m.metrics.ObserveProbe(host, metrics.OutcomeUnreachable, elapsed)
	}

	current := m.Status()
	next, message := current.next(reachable)
	log.Printf("[%s] %s (%d/%d replies) %v", host, statusLabel(reachable), result.Received, result.Attempts, result.Duration)

	if message == "" {
		return "", false
	}

	log.Printf("[%s] Status changed %s -> %s", host, current, next)
	m.mu.Lock()
	m.status = next
	m.mu.Unlock()
	m.metrics.ObserveTransition(host, next.String())
	m.metrics.SetHostUp(host, next == StatusUp)
	return message, true
}

// Run sleeps for interval before every tick, including the first, and hands
// produced messages to n. It returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, host string, interval time.Duration, n Notifier) error {
	m.metrics.SetHostUp(host, m.Status() == StatusUp)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if message, ok := m.Tick(ctx, host); ok {
			err := n.Send(ctx, message)
			m.metrics.ObserveNotification(err)
			if err != nil {
				log.Printf("[%s] Failed to send notification: %v", host, err)
			}
		}

		timer.Reset(interval)
	}
}

func statusLabel(reachable bool) string {
	if reachable {
		return "REACHABLE"
	}
	return "UNREACHABLE"
}
