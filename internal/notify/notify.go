// Package notify delivers best-effort operator notifications. Delivery
// failures are logged and never surface to the controller path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/exec"
	"time"
)

// Notifier delivers a single best-effort notification.
type Notifier interface {
	Notify(title, message string)
}

// Config configures notification channels.
type Config struct {
	// Desktop sends desktop alerts via notify-send.
	Desktop bool `yaml:"desktop"`

	// WebhookURL receives transition events as JSON POSTs. Covers chat-bot
	// style channels (Telegram bridge, Slack webhook).
	WebhookURL string `yaml:"webhook_url"`

	// Timeout bounds webhook delivery.
	Timeout time.Duration `yaml:"timeout"`
}

// ApplyDefaults sets notification defaults.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// FromConfig builds the configured notifier set.
func FromConfig(cfg Config) Notifier {
	cfg.ApplyDefaults()
	var chain Multi
	if cfg.Desktop {
		chain = append(chain, &Desktop{})
	}
	if cfg.WebhookURL != "" {
		chain = append(chain, &Webhook{URL: cfg.WebhookURL, Timeout: cfg.Timeout})
	}
	if len(chain) == 0 {
		return Nop{}
	}
	return chain
}

// Desktop sends alerts with notify-send. Arguments are passed as an exec
// argument vector, never through a shell.
type Desktop struct{}

// Notify sends a desktop alert.
func (d *Desktop) Notify(title, message string) {
	cmd := exec.Command("notify-send", "--app-name=circuitwarden", title, message)
	if err := cmd.Run(); err != nil {
		log.Printf("[Notify] desktop alert failed: %v", err)
	}
}

// Webhook posts notifications as JSON to a configured URL.
type Webhook struct {
	URL     string
	Timeout time.Duration

	// Client may be replaced in tests.
	Client *http.Client
}

type webhookPayload struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify delivers the event; errors are logged only.
func (w *Webhook) Notify(title, message string) {
	body, err := json.Marshal(webhookPayload{
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("[Notify] webhook marshal failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[Notify] webhook request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[Notify] webhook delivery failed: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[Notify] webhook answered HTTP %d", resp.StatusCode)
	}
}

func (w *Webhook) timeout() time.Duration {
	if w.Timeout <= 0 {
		return 5 * time.Second
	}
	return w.Timeout
}

// Multi fans a notification out to several channels.
type Multi []Notifier

// Notify delivers to every channel.
func (m Multi) Notify(title, message string) {
	for _, n := range m {
		n.Notify(title, message)
	}
}

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(string, string) {}
