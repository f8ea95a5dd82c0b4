// ABOUTME: Best-effort push dispatcher that notifies a tenant's workers of a new command
// ABOUTME: One POST per command, never retried; failures become a soft status, not an error

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/store"
)

// MaxMessageBytes is the transport's limit on a serialized message
const MaxMessageBytes = 1024

// ErrNotConfigured is reported when the tenant has no routing key or secret
var ErrNotConfigured = errors.New("push transport not configured for tenant")

// DeliveryError is reported when the transport rejected or never received the message
type DeliveryError struct {
	StatusCode int // 0 when the request did not complete
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push transport returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push transport unreachable: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Status is the soft outcome reported alongside an enqueue
type Status string

const (
	StatusSent   Status = "Sent"
	StatusFailed Status = "Failed"
)

// Result is the outcome of one dispatch. Err is ErrNotConfigured, a
// *DeliveryError, or another error describing why nothing was sent.
type Result struct {
	Success bool
	Err     error
}

// Status maps the result onto the wire status
func (r Result) Status() Status {
	if r.Success {
		return StatusSent
	}
	return StatusFailed
}

// Payload is serialized into the transport's message field
type Payload struct {
	Command   string         `json:"command"`
	Args      map[string]any `json:"args"`
	Timestamp int64          `json:"timestamp"`
}

type publishRequest struct {
	Message string `json:"message"`
}

// Options configures a Dispatcher
type Options struct {
	BaseURL string
	Topic   string
	Timeout time.Duration
	Client  *http.Client
	Sealer  *Sealer // nil when push secrets are stored in plaintext
	Logger  *slog.Logger
	Now     func() time.Time
}

// Dispatcher publishes command notifications to the push transport
type Dispatcher struct {
	baseURL string
	topic   string
	timeout time.Duration
	client  *http.Client
	sealer  *Sealer
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		topic:   opts.Topic,
		timeout: opts.Timeout,
		client:  opts.Client,
		sealer:  opts.Sealer,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if d.timeout <= 0 {
		d.timeout = 3 * time.Second
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "push")
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Endpoint returns the publish URL for a routing key
func (d *Dispatcher) Endpoint(routingKey string) string {
	return d.baseURL + "/" + url.PathEscape(routingKey) + "/topics/" + url.PathEscape(d.topic)
}

// Dispatch sends a single notification for a freshly queued command using the
// push credentials on the tenant record. It never returns an error: every
// failure is folded into the Result and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant *store.Tenant, name string, args map[string]any) Result {
	if tenant == nil || !tenant.PushConfigured() {
		return Result{Err: ErrNotConfigured}
	}

	secret, err := d.sealer.Open(tenant.PushSecret)
	if err != nil {
		d.logger.Warn("cannot open push secret", "tenant_id", tenant.ID, "error", err)
		return Result{Err: fmt.Errorf("opening push secret: %w", err)}
	}

	message, err := json.Marshal(Payload{Command: name, Args: args, Timestamp: d.now().Unix()})
	if err != nil {
		return Result{Err: fmt.Errorf("encoding push message: %w", err)}
	}
	if len(message) > MaxMessageBytes {
		d.logger.Warn("push message too large", "tenant_id", tenant.ID, "command", name, "bytes", len(message))
		return Result{Err: fmt.Errorf("push message is %d bytes, limit %d", len(message), MaxMessageBytes)}
	}

	body, err := json.Marshal(publishRequest{Message: string(message)})
	if err != nil {
		return Result{Err: fmt.Errorf("encoding push request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint(tenant.PushRoutingKey), bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("building push request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", secret)

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("push delivery failed", "tenant_id", tenant.ID, "command", name, "error", err)
		return Result{Err: &DeliveryError{Err: err}}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("push delivery rejected",
			"tenant_id", tenant.ID,
			"command", name,
			"status", resp.StatusCode,
		)
		return Result{Err: &DeliveryError{StatusCode: resp.StatusCode}}
	}

	d.logger.Debug("push delivered", "tenant_id", tenant.ID, "command", name, "duration", time.Since(start))
	return Result{Success: true}
}
