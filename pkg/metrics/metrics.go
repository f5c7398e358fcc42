package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pingwatch"

// Probe outcome labels
const (
	OutcomeReachable   = "reachable"
	OutcomeUnreachable = "unreachable"
	OutcomeError       = "error"
)

// Recorder contains the Prometheus metrics for one monitored host.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	hostUp        *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "probes_total", Help: "Total number of liveness probes by outcome."},
			[]string{"host", "outcome"},
		),
		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "probe_duration_seconds", Help: "Wall time of a liveness probe in seconds.", Buckets: prometheus.DefBuckets},
			[]string{"host"},
		),
		hostUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "host_up", Help: "Current believed status of the host (1 up, 0 down)."},
			[]string{"host"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "transitions_total", Help: "Total number of status transitions by new status."},
			[]string{"host", "to"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Total number of notification deliveries by result."},
			[]string{"result"},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveProbe(host, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(host, outcome).Inc()
	r.probeDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}

func (r *Recorder) SetHostUp(host string, up bool) {
	if r == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	r.hostUp.WithLabelValues(host).Set(v)
}

func (r *Recorder) ObserveTransition(host, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(host, to).Inc()
}

func (r *Recorder) ObserveNotification(err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.notifications.WithLabelValues(result).Inc()
}

// Server exposes a Recorder on /metrics.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, r *Recorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] Listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] Server error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
