package notifier

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// maxResponseBody caps how much of the endpoint's answer is read.
const maxResponseBody = 64 << 10

// Pusher publishes plain-text messages to an ntfy-style endpoint.
type Pusher struct {
	Client *http.Client
	URL    string
	Token  string
}

func NewPusher(url, token string) *Pusher {
	return &Pusher{
		Client: &http.Client{
			Timeout: DefaultTimeout,
		},
		URL:   url,
		Token: token,
	}
}

// Send POSTs message to the endpoint. It does not retry; a non-2xx status or a
// transport failure is returned to the caller.
func (p *Pusher) Send(ctx context.Context, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	log.Printf("[notifier] Sending %q -> %s", message, p.URL)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := errorMessage(body); msg != "" {
			return fmt.Errorf("bad status code from notification endpoint: %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("bad status code from notification endpoint: %d", resp.StatusCode)
	}

	if id := gjson.GetBytes(body, "id"); id.Exists() {
		log.Printf("[notifier] Delivered as message %s (%v)", id.String(), time.Since(start))
	} else {
		log.Printf("[notifier] Delivered (%v)", time.Since(start))
	}
	return nil
}

// errorMessage extracts the error text from an ntfy JSON error body, if any.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "error").String()
}
