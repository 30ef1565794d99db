package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProbe issues a liveness request with a bounded retry loop. Retry is a
// probe-level concern with fixed spacing, never a harness feature: most
// probes are not safe to retry blindly, so each one that wants retry owns
// its own loop.
type HTTPProbe struct {
	URL      string
	Accept   []int
	Attempts int
	Delay    time.Duration
	Client   *http.Client
}

// Probe performs up to Attempts requests with a fixed Delay between them,
// succeeding as soon as one response carries an accepted status code.
func (p HTTPProbe) Probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if p.accepted(resp.StatusCode) {
			return nil
		}
		lastErr = fmt.Errorf("unexpected status %d from %s", resp.StatusCode, p.URL)
	}
	return lastErr
}

func (p HTTPProbe) accepted(status int) bool {
	if len(p.Accept) == 0 {
		return status >= 200 && status < 400
	}
	for _, code := range p.Accept {
		if status == code {
			return true
		}
	}
	return false
}
