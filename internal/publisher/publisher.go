package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/internal/metrics"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// Publisher wraps a NATS connection and mirrors execution lifecycle and
// order status events for downstream consumers. It is a best-effort mirror;
// callers treat publish failures as non-fatal.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	service string
	logger  *zap.Logger
}

// New creates a Publisher with JetStream enabled if available.
func New(nc *nats.Conn, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		service: service,
		logger:  logger,
	}, nil
}

// Publish serializes and publishes a raw payload to the subject.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"source":       []string{p.service},
			"message_id":   []string{uuid.NewString()},
			"content_type": []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		p.logger.Debug("nats.publish_failed",
			zap.String("subject", subject),
			zap.Error(err))
		metrics.IncError("publisher", "publish_failed")
		return err
	}
	return nil
}

// PublishStatusUpdate emits one order status transition.
// Subject: evt.order.status_changed.v1.<PLATFORM>.
func (p *Publisher) PublishStatusUpdate(ctx context.Context, update model.OrderStatusUpdate) error {
	platform := ""
	if update.Order != nil {
		platform = update.Order.Platform
	}
	subject := "evt.order.status_changed.v1." + strings.ToUpper(platform)
	return p.Publish(ctx, subject, map[string]any{
		"subscription_id": update.SubscriptionID,
		"order_id":        update.OrderID,
		"previous_status": update.PreviousStatus,
		"new_status":      update.NewStatus,
		"terminal":        update.NewStatus.IsTerminal(),
		"updated_at":      update.Timestamp,
	})
}

// PublishExecutionEvent mirrors one audit entry.
// Subject: evt.execution.<event>.v1.<PLATFORM>.
func (p *Publisher) PublishExecutionEvent(ctx context.Context, entry model.ExecutionLogEntry) error {
	subject := "evt.execution." + strings.ToLower(string(entry.EventType)) +
		".v1." + strings.ToUpper(entry.Platform)
	payload := map[string]any{
		"execution_id": entry.ExecutionID,
		"event_type":   entry.EventType,
		"platform":     entry.Platform,
		"user_address": entry.UserAddress,
		"order_id":     entry.OrderID,
		"market_id":    entry.MarketID,
		"timestamp":    time.Now().UTC(),
	}
	if entry.Error != "" {
		payload["error"] = entry.Error
	}
	return p.Publish(ctx, subject, payload)
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
