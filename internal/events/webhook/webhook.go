// Package webhook delivers ledger events and health alerts to HTTP endpoints
// as signed JSON notifications.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opolis/payledger/internal/ledger"
	"go.uber.org/zap"
)

// Headers set on every delivery.
const (
	SignatureHeader = "X-Payledger-Signature"
	DeliveryHeader  = "X-Payledger-Delivery"
)

// TypeHealthDegraded is the notification type of health alerts.
const TypeHealthDegraded = "health.degraded"

// ErrClosed is returned by Publish once Close has been called.
var ErrClosed = errors.New("webhook: dispatcher closed")

// Notification is the body POSTed to every endpoint.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Config configures a Dispatcher.
type Config struct {
	URLs    []string
	Secret  string
	Timeout time.Duration
	// Retry delays before the second, third, ... attempt.
	Backoff []time.Duration
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher fans notifications out to the configured URLs. Delivery is
// asynchronous; Publish returns once the deliveries are scheduled.
type Dispatcher struct {
	urls       []string
	secret     []byte
	backoff    []time.Duration
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher.
func New(cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("webhook: no URLs configured")
	}
	if len(cfg.Secret) < 16 {
		return nil, errors.New("webhook: secret must be at least 16 bytes")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == nil {
		// Retry with exponential backoff: 1s, 5s.
		cfg.Backoff = []time.Duration{1 * time.Second, 5 * time.Second}
	}

	return &Dispatcher{
		urls:       cfg.URLs,
		secret:     []byte(cfg.Secret),
		backoff:    cfg.Backoff,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// Publish implements ledger.EventSink. The notification type is
// "ledger.<Kind>".
func (d *Dispatcher) Publish(_ context.Context, ev ledger.Event) error {
	return d.dispatch("ledger."+string(ev.Kind), ev)
}

// Alert sends a health.degraded notification. It matches health.DegradedFunc.
func (d *Dispatcher) Alert(_ context.Context, probe string, cause error) {
	data := map[string]string{"probe": probe}
	if cause != nil {
		data["error"] = cause.Error()
	}
	if err := d.dispatch(TypeHealthDegraded, data); err != nil {
		d.logger.Error("webhook: dispatch alert", zap.Error(err))
	}
}

// Close stops accepting notifications and waits until every scheduled
// delivery has succeeded or used up its retries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	n := Notification{
		ID:        uuid.New(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	signature := Sign(body, d.secret)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	for _, url := range d.urls {
		d.wg.Add(1)
		go func(url string) {
			defer d.wg.Done()
			d.deliver(url, n.ID, body, signature)
		}(url)
	}
	return nil
}

// deliver sends one notification to url, retrying on failure.
func (d *Dispatcher) deliver(url string, id uuid.UUID, body []byte, signature string) {
	for attempt := 0; attempt <= len(d.backoff); attempt++ {
		if attempt > 0 {
			time.Sleep(d.backoff[attempt-1])
		}

		err := d.doDelivery(url, id, body, signature)
		if d.onMetrics != nil {
			d.onMetrics(err == nil)
		}
		if err == nil {
			return
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
}

// doDelivery performs a single HTTP POST delivery, bounded by the client
// timeout.
func (d *Dispatcher) doDelivery(url string, id uuid.UUID, body []byte, signature string) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(DeliveryHeader, id.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 under secret.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ ledger.EventSink = (*Dispatcher)(nil)
