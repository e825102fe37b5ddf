package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yegors/ogn-tracker/internal/reference"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// WebhookPayload is the body posted for every persisted event
type WebhookPayload struct {
	Type     EventType `json:"type"`
	Origin   string    `json:"origin"`
	ID       string    `json:"id"`
	Airfield string    `json:"airfield,omitempty"`
}

// WebhookNotifier posts persisted events to an HTTP endpoint. Notify only
// queues; a single worker started by Run does the delivery.
type WebhookNotifier struct {
	url        string
	apiKey     string
	origin     string
	httpClient *http.Client
	queue      chan FlightEvent
	logger     *logger.Logger
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url, apiKey, origin string, timeout time.Duration, log *logger.Logger) *WebhookNotifier {
	if origin == "" {
		origin = "FSK"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		apiKey:     apiKey,
		origin:     origin,
		httpClient: &http.Client{Timeout: timeout},
		queue:      make(chan FlightEvent, 64),
		logger:     log.Named("webhook"),
	}
}

// Notify queues an event for delivery and drops it when the queue is full
func (n *WebhookNotifier) Notify(ev FlightEvent) {
	select {
	case n.queue <- ev:
	default:
		n.logger.Warn("Webhook queue full, dropping event",
			logger.String("aircraft", ev.AircraftID),
			logger.String("type", string(ev.Type)))
	}
}

// Run delivers queued events until ctx is done. Events still queued at that
// point are delivered before Run returns.
func (n *WebhookNotifier) Run(ctx context.Context) {
	for {
		select {
		case ev := <-n.queue:
			// In-flight deliveries finish even during shutdown, bounded by the client timeout
			n.deliver(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			n.drain()
			return
		}
	}
}

func (n *WebhookNotifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), n.httpClient.Timeout)
	defer cancel()
	for {
		select {
		case ev := <-n.queue:
			n.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (n *WebhookNotifier) deliver(ctx context.Context, ev FlightEvent) {
	if err := n.Send(ctx, ev); err != nil {
		n.logger.Warn("Failed to send webhook",
			logger.String("aircraft", ev.AircraftID),
			logger.Error(err))
		return
	}
	n.logger.Debug("Webhook sent",
		logger.String("aircraft", ev.AircraftID),
		logger.String("type", string(ev.Type)))
}

// Send posts one event synchronously
func (n *WebhookNotifier) Send(ctx context.Context, ev FlightEvent) error {
	payload := WebhookPayload{
		Type:   ev.Type,
		Origin: n.origin,
		ID:     ev.AircraftID,
	}
	if ev.Airfield != "" && ev.Airfield != reference.UnknownAirfield {
		payload.Airfield = ev.Airfield
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-api-key", n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, string(msg))
	}
	return nil
}
