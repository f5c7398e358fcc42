package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultIntervalMinutes is the polling interval used when none is given.
const DefaultIntervalMinutes = 5

// ErrMissingRequired is returned when a mandatory argument was not supplied.
var ErrMissingRequired = errors.New("missing required arg")

// Options holds everything the monitor needs to run.
type Options struct {
	Server       string
	NtfyURL      string
	Token        string
	Interval     time.Duration
	Probe        string // exec or icmp
	Privileged   bool
	ProbeTimeout time.Duration
	OnProbeError string // skip or down
	MetricsAddr  string
}

func (o *Options) Validate() error {
	var missing []string
	if strings.TrimSpace(o.Server) == "" {
		missing = append(missing, "server")
	}
	if o.NtfyURL == "" {
		missing = append(missing, "ntfy")
	}
	if o.Token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	u, err := url.Parse(o.NtfyURL)
	if err != nil {
		return fmt.Errorf("invalid ntfy url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ntfy url %q must use http or https", o.NtfyURL)
	}
	if u.Host == "" {
		return fmt.Errorf("ntfy url %q has no host", o.NtfyURL)
	}

	if o.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", o.Interval)
	}

	switch o.Probe {
	case "exec", "icmp":
	default:
		return fmt.Errorf("unknown probe %q (expected exec or icmp)", o.Probe)
	}

	switch o.OnProbeError {
	case "skip", "down":
	default:
		return fmt.Errorf("unknown on-probe-error policy %q (expected skip or down)", o.OnProbeError)
	}

	if o.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %v", o.ProbeTimeout)
	}

	return nil
}

// maxIntervalMinutes is the largest minute count a time.Duration can hold.
const maxIntervalMinutes = math.MaxInt64 / int64(time.Minute)

// IntervalFromMinutes converts the --interval argument to a duration.
func IntervalFromMinutes(minutes int) (time.Duration, error) {
	if minutes <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %d minutes", minutes)
	}
	if int64(minutes) > maxIntervalMinutes {
		return 0, fmt.Errorf("interval of %d minutes is out of range (max %d)", minutes, maxIntervalMinutes)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// ParseDuration parses a duration string, supporting "d" for days, "h" for hours, "m" for minutes, "s" for seconds.
// "2s", "4m", "5h", "1d"
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if s == "0" {
		return 0, nil
	}
	if strings.HasSuffix(s, "d") {
		daysStr := strings.TrimSuffix(s, "d")
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration (days): %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
