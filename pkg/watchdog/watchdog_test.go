package watchdog

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pingwatch/pkg/config"
)

func testOptions(ntfyURL string) config.Options {
	return config.Options{
		Server:       "host.test",
		NtfyURL:      ntfyURL,
		Token:        "secret_token",
		Interval:     time.Hour,
		Probe:        "exec",
		ProbeTimeout: time.Second,
		OnProbeError: "skip",
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestWatchdog_Lifecycle(t *testing.T) {
	wd, err := NewWatchdog(testOptions("http://127.0.0.1:1/topic"))
	if err != nil {
		t.Fatalf("NewWatchdog failed: %v", err)
	}

	wd.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		wd.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Watchdog did not stop within timeout")
	}

	done := make(chan struct{})
	go func() {
		wd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor loop still running after Stop")
	}

	if wd.Status().String() != "UP" {
		t.Errorf("Expected optimistic UP status, got %s", wd.Status())
	}
}

func TestWatchdog_ParentContextCancel(t *testing.T) {
	wd, err := NewWatchdog(testOptions("http://127.0.0.1:1/topic"))
	if err != nil {
		t.Fatalf("NewWatchdog failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wd.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		wd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor loop did not exit after parent cancellation")
	}
}

func TestWatchdog_UnknownProbe(t *testing.T) {
	opts := testOptions("http://127.0.0.1:1/topic")
	opts.Probe = "tcp"
	if _, err := NewWatchdog(opts); err == nil {
		t.Error("Expected error for unknown probe type")
	}
}

func TestWatchdog_ICMPPrivileged(t *testing.T) {
	opts := testOptions("http://127.0.0.1:1/topic")
	opts.Probe = "icmp"
	opts.Privileged = true
	wd, err := NewWatchdog(opts)
	if err != nil {
		t.Fatalf("NewWatchdog failed: %v", err)
	}
	wd.Stop()
}

func TestWatchdog_MetricsEndpoint(t *testing.T) {
	opts := testOptions("http://127.0.0.1:1/topic")
	opts.MetricsAddr = freeAddr(t)

	wd, err := NewWatchdog(opts)
	if err != nil {
		t.Fatalf("NewWatchdog failed: %v", err)
	}
	wd.Start(context.Background())
	defer wd.Stop()

	url := fmt.Sprintf("http://%s/metrics", opts.MetricsAddr)
	var body string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url) //nolint:gosec // G107: Test URL
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			body = string(b)
			if strings.Contains(body, "pingwatch_host_up") {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !strings.Contains(body, `pingwatch_host_up{host="host.test"} 1`) {
		t.Errorf("Expected host_up gauge in metrics output, got:\n%s", body)
	}
}

// TestWatchdog_NotifiesOnOutage runs the full pipeline against a host name that
// cannot be resolved, delivering to a local endpoint.
func TestWatchdog_NotifiesOnOutage(t *testing.T) {
	var mu sync.Mutex
	var received []string
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret_token" {
			t.Errorf("Missing bearer token")
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, string(b))
		mu.Unlock()
	}))
	defer ntfy.Close()

	opts := testOptions(ntfy.URL + "/status")
	opts.Interval = 20 * time.Millisecond
	// "down" turns a probe that cannot run into an outage, which makes the
	// outcome independent of whether the test host allows ICMP sockets.
	opts.Server = "invalid..host"
	opts.Probe = "icmp"
	opts.OnProbeError = "down"
	opts.ProbeTimeout = 200 * time.Millisecond

	wd, err := NewWatchdog(opts)
	if err != nil {
		t.Fatalf("NewWatchdog failed: %v", err)
	}
	wd.Start(context.Background())

	// Status is polled while the loop is running
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 && wd.Status().String() == "DOWN" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	wd.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "Server appears to be down" {
		t.Errorf("Expected exactly one down notification, got %v", received)
	}
	if wd.Status().String() != "DOWN" {
		t.Errorf("Expected DOWN status, got %s", wd.Status())
	}
}
