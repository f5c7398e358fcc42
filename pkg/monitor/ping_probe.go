package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// execCommand is a variable to allow mocking in tests
var execCommand = exec.CommandContext

var (
	// "4 packets transmitted, 0 received" (Linux), "4 packets received" (BSD/macOS)
	receivedRe = regexp.MustCompile(`(\d+) (?:packets )?received`)
	// "Received = 3" (Windows)
	receivedWinRe = regexp.MustCompile(`Received = (\d+)`)
	timeRe        = regexp.MustCompile(`time[=<]([0-9.]+)`)
)

// PingProbe checks reachability by running the system ping utility.
type PingProbe struct {
	Attempts int
	timeout  time.Duration
}

func (p *PingProbe) Name() string {
	return ProbeTypeExec
}

func (p *PingProbe) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

func (p *PingProbe) Probe(ctx context.Context, host string) Result {
	start := time.Now()
	host = strings.TrimSpace(host)

	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if host == "" {
		return failed(host, start, attempts, errors.New("empty host"))
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctxCmd, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := getPingArgs(runtime.GOOS, host, attempts)
	cmd := execCommand(ctxCmd, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	output := stdout.String()

	received, parseErr := parseReceived(output)
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) || parseErr != nil {
			if ctx.Err() != nil {
				return failed(host, start, attempts, fmt.Errorf("ping interrupted: %w", ctx.Err()))
			}
			if ctxCmd.Err() != nil {
				return failed(host, start, attempts, fmt.Errorf("ping timed out after %v: %w", timeout, ctxCmd.Err()))
			}
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = strings.TrimSpace(output)
			}
			if detail != "" {
				return failed(host, start, attempts, fmt.Errorf("ping failed: %w: %s", runErr, detail))
			}
			return failed(host, start, attempts, fmt.Errorf("ping failed: %w", runErr))
		}
		// Non-zero exit with a summary line: the host did not answer every request.
	} else if parseErr != nil {
		// Exit status 0 means at least one reply arrived.
		received = 1
	}

	return Result{
		Reachable: received > 0,
		Attempts:  attempts,
		Received:  received,
		Duration:  meanRTT(parsePingTimes(output)),
		Target:    host,
		Timestamp: start,
	}
}

func getPingArgs(goos, target string, count int) (string, []string) {
	c := strconv.Itoa(count)
	if goos == "windows" {
		return "ping", []string{"-n", c, target}
	}
	return "ping", []string{"-c", c, target}
}

// parseReceived extracts the number of echo replies from the ping summary.
func parseReceived(output string) (int, error) {
	matches := receivedRe.FindStringSubmatch(output)
	if len(matches) < 2 {
		matches = receivedWinRe.FindStringSubmatch(output)
	}
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not find received count in output")
	}
	return strconv.Atoi(matches[1])
}

func parsePingTimes(output string) []time.Duration {
	var rtts []time.Duration
	for _, m := range timeRe.FindAllStringSubmatch(output, -1) {
		ms, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		rtts = append(rtts, time.Duration(ms*float64(time.Millisecond)))
	}
	return rtts
}
