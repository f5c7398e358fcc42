package monitor

import (
	"context"
	"fmt"
	"time"
)

// DefaultAttempts is the number of echo requests issued by a single probe call.
const DefaultAttempts = 4

// DefaultTimeout bounds one probe call when no timeout has been set.
const DefaultTimeout = 30 * time.Second

// Result holds the outcome of a probe check
type Result struct {
	Reachable bool
	RawError  string // Set when the probe mechanism itself could not run
	Attempts  int
	Received  int
	Duration  time.Duration // Mean round trip of the replies that arrived
	Target    string
	Timestamp time.Time
}

// InvocationFailed reports whether the probe could not be carried out at all,
// as opposed to the host simply not answering.
func (r Result) InvocationFailed() bool {
	return r.RawError != ""
}

// Prober is the interface that all liveness probes must implement.
// Probe never returns an error: failures to run are reported in Result.RawError.
type Prober interface {
	Probe(ctx context.Context, host string) Result
	Name() string
	SetTimeout(timeout time.Duration)
}

// Probe mechanisms
const (
	ProbeTypeExec = "exec"
	ProbeTypeICMP = "icmp"
)

// GetProbe returns a Prober based on the type
func GetProbe(probeType string) (Prober, error) {
	switch probeType {
	case ProbeTypeExec, "":
		return &PingProbe{}, nil
	case ProbeTypeICMP:
		return &ICMPProbe{}, nil
	default:
		return nil, fmt.Errorf("unknown probe type: %s", probeType)
	}
}

// failed builds the result for a probe that could not be run.
func failed(host string, start time.Time, attempts int, err error) Result {
	return Result{
		Reachable: false,
		RawError:  err.Error(),
		Attempts:  attempts,
		Target:    host,
		Timestamp: start,
	}
}

func meanRTT(rtts []time.Duration) time.Duration {
	if len(rtts) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range rtts {
		total += d
	}
	return total / time.Duration(len(rtts))
}
