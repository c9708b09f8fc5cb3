package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

var httpClient = &http.Client{Timeout: requestTimeout}

// WebhookConfig defines one webhook destination for run events.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Events  []string          `yaml:"events"  json:"events"` // e.g. ["decision_finalized"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Dispatcher fans run events out to matching webhook destinations.
// It is layered on top of the Bus by the serving layer; the orchestrator
// only ever sees the Publisher interface.
type Dispatcher struct {
	configs []WebhookConfig
	next    Publisher
}

// NewDispatcher wraps next with webhook fan-out.
// Returns next unchanged if configs is empty.
func NewDispatcher(configs []WebhookConfig, next Publisher) Publisher {
	if len(configs) == 0 {
		return next
	}
	return &Dispatcher{configs: configs, next: next}
}

// Publish forwards to the wrapped publisher, then posts to every webhook
// whose Events list matches. Webhook sends run in goroutines so publication
// order toward subscribers is never blocked on webhook latency.
func (d *Dispatcher) Publish(runID, name string, payload map[string]any) {
	d.next.Publish(runID, name, payload)

	for _, cfg := range d.configs {
		if matches(cfg.Events, name) {
			go func(cfg WebhookConfig) {
				_ = Send(cfg, Event{
					RunID:     runID,
					Name:      name,
					Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
					Payload:   payload,
				})
			}(cfg)
		}
	}
}

func matches(events []string, name string) bool {
	for _, e := range events {
		if e == name {
			return true
		}
	}
	return false
}

// Send posts an event to a webhook endpoint with retry on 5xx.
func Send(cfg WebhookConfig, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}

		req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		// 5xx: retry
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}
