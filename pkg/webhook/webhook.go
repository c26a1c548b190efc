// Package webhook provides HTTP webhook notification support for clone events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// EventType represents the type of event that can trigger webhooks.
type EventType string

const (
	EventCloneCompleted EventType = "clone.completed"
	EventCloneRejected  EventType = "clone.rejected"
	EventCloneFailed    EventType = "clone.failed"
)

// Event represents an event payload sent to webhooks.
type Event struct {
	Event       EventType         `json:"event"`
	Timestamp   string            `json:"timestamp"`
	RequestID   string            `json:"request_id,omitempty"`
	Backend     model.BackendType `json:"backend,omitempty"`
	Status      model.CloneStatus `json:"status,omitempty"`
	Root        string            `json:"root,omitempty"`
	Template    string            `json:"template,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Link        string            `json:"link,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// EventFromResult builds the event announcing one backend outcome.
func EventFromResult(requestID string, res *model.CloneResult) Event {
	ev := Event{
		RequestID:   requestID,
		Backend:     res.Backend,
		Status:      res.Status,
		Root:        res.Request.RootName,
		Template:    res.Request.TemplateName,
		Destination: res.Request.DestinationName,
		Link:        res.Link,
		Metadata: map[string]any{
			"folders_created":   res.FoldersCreated,
			"documents_created": res.DocumentsCreated,
		},
	}
	switch res.Status {
	case model.StatusCloned:
		ev.Event = EventCloneCompleted
	case model.StatusBackendError:
		ev.Event = EventCloneFailed
		ev.Metadata["partial"] = res.Partial
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
	default:
		ev.Event = EventCloneRejected
	}
	return ev
}

// HookConfig represents a single webhook configuration.
type HookConfig struct {
	URL     string        `yaml:"url" mapstructure:"url" json:"url"`
	Secret  string        `yaml:"secret,omitempty" mapstructure:"secret" json:"secret,omitempty"`
	Events  []EventType   `yaml:"events" mapstructure:"events" json:"events"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`
	Enabled bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
}

// Config represents the webhook configuration.
type Config struct {
	Hooks          []HookConfig  `yaml:"hooks" mapstructure:"hooks" json:"hooks"`
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" json:"retry_delay"`
	AsyncQueueSize int           `yaml:"async_queue_size" mapstructure:"async_queue_size" json:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

// Client handles sending webhook notifications.
type Client struct {
	config *Config
	http   *http.Client
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a new webhook client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	queueSize := cfg.AsyncQueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		queue:  make(chan *job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Enabled {
		c.start()
	}

	return c
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

// worker processes webhook notifications in the background.
func (c *Client) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			for len(c.queue) > 0 {
				c.send(<-c.queue)
			}
			return
		case job := <-c.queue:
			c.send(job)
		}
	}
}

// Send sends an event to all matching webhooks.
// If async is true, the event is queued for background sending.
// If async is false, the event is sent synchronously.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled || c.closed {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if hook.Enabled && matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				logging.Warn("webhook queue full, dropping event", map[string]any{
					"event": string(event.Event),
					"url":   hook.URL,
				})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(job *job) {
	if err := c.sendSync(job); err != nil {
		logging.ErrorErr("webhook delivery failed", err, map[string]any{
			"event": string(job.event.Event),
			"url":   job.hook.URL,
		})
	}
}

// sendSync sends a webhook synchronously with retries.
func (c *Client) sendSync(job *job) error {
	payload, err := json.Marshal(job.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if job.hook.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, job.hook.Timeout)
		}
		req, err := c.createRequest(ctx, job.hook, job.event.Event, payload)
		if err != nil {
			cancel()
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return lastErr
}

func (c *Client) createRequest(ctx context.Context, hook HookConfig, event EventType, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Foldersmith-Webhook/1.0")
	req.Header.Set("X-Foldersmith-Event", string(event))

	if hook.Secret != "" {
		req.Header.Set("X-Foldersmith-Signature", Sign(payload, hook.Secret))
	}

	return req, nil
}

// Sign creates an HMAC-SHA256 signature for the payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close gracefully shuts down the webhook client, delivering queued events.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	c.wg.Wait()
	return nil
}
