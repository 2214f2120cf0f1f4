package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/internal/metrics"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// Deliverer transports a notification over an out-of-process channel
// (webhook fan-out, email gateway). IN_APP never goes through a Deliverer.
type Deliverer interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// Config gates the non-in-app delivery channels.
type Config struct {
	EnableWebhooks bool
	EnableEmail    bool
}

// Preferences is the per-user channel opt-in state.
type Preferences struct {
	InApp      bool   `json:"in_app"`
	Webhook    bool   `json:"webhook"`
	Email      bool   `json:"email"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// DefaultPreferences is used for users who never set preferences.
func DefaultPreferences() Preferences {
	return Preferences{InApp: true, Webhook: true, Email: false}
}

// Input is the caller-facing shape for Notify.
type Input struct {
	Type           model.NotificationType
	UserAddress    string
	Platform       string
	Order          *model.Order
	Message        string
	DeliveryMethod model.DeliveryMethod
}

// Notifier dispatches per-user notifications and retains their history in
// send order.
type Notifier struct {
	mu          sync.RWMutex
	history     map[string][]model.Notification
	preferences map[string]Preferences
	cfg         Config
	deliverer   Deliverer
	logger      *zap.Logger
}

// New creates a Notifier. deliverer may be nil; non-in-app notifications then
// stay PENDING when their channel is enabled.
func New(cfg Config, deliverer Deliverer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		history:     make(map[string][]model.Notification),
		preferences: make(map[string]Preferences),
		cfg:         cfg,
		deliverer:   deliverer,
		logger:      logger,
	}
}

// Notify creates a Notification, resolves its delivery status from the
// requested method and channel configuration, appends it to the user's
// history and returns it.
func (n *Notifier) Notify(ctx context.Context, in Input) model.Notification {
	notification := model.Notification{
		ID:             uuid.NewString(),
		Type:           in.Type,
		UserAddress:    in.UserAddress,
		Platform:       in.Platform,
		Order:          in.Order,
		Message:        in.Message,
		DeliveryMethod: in.DeliveryMethod,
		DeliveryStatus: n.resolveDelivery(ctx, in),
		Timestamp:      time.Now().UTC(),
	}

	n.mu.Lock()
	n.history[in.UserAddress] = append(n.history[in.UserAddress], notification)
	n.mu.Unlock()

	metrics.IncNotification(string(in.Type), string(notification.DeliveryStatus))

	n.logger.Debug("notify.dispatched",
		zap.String("user", in.UserAddress),
		zap.String("type", string(in.Type)),
		zap.String("method", string(in.DeliveryMethod)),
		zap.String("status", string(notification.DeliveryStatus)))

	return notification
}

func (n *Notifier) resolveDelivery(ctx context.Context, in Input) model.DeliveryStatus {
	switch in.DeliveryMethod {
	case model.DeliveryInApp, "":
		return model.DeliveryDelivered
	case model.DeliveryWebhook:
		if !n.cfg.EnableWebhooks {
			return model.DeliveryFailed
		}
	case model.DeliveryEmail:
		if !n.cfg.EnableEmail {
			return model.DeliveryFailed
		}
	default:
		return model.DeliveryFailed
	}

	if n.deliverer == nil {
		return model.DeliveryPending
	}
	pending := model.Notification{
		Type:           in.Type,
		UserAddress:    in.UserAddress,
		Platform:       in.Platform,
		Order:          in.Order,
		Message:        in.Message,
		DeliveryMethod: in.DeliveryMethod,
	}
	if err := n.deliverer.Deliver(ctx, pending); err != nil {
		n.logger.Warn("notify.deliver_failed",
			zap.String("user", in.UserAddress),
			zap.String("method", string(in.DeliveryMethod)),
			zap.Error(err))
		return model.DeliveryPending
	}
	return model.DeliveryDelivered
}

// NotifyOrderStatus sends the canonical notification for an order status
// transition. Statuses with no user-facing meaning are ignored.
func (n *Notifier) NotifyOrderStatus(ctx context.Context, userAddress string, order *model.Order, status model.OrderStatus) (*model.Notification, bool) {
	notifType, ok := model.NotificationTypeForStatus(status)
	if !ok {
		return nil, false
	}

	platform := ""
	orderID := ""
	if order != nil {
		platform = order.Platform
		orderID = order.ID
	}

	sent := n.Notify(ctx, Input{
		Type:           notifType,
		UserAddress:    userAddress,
		Platform:       platform,
		Order:          order,
		Message:        fmt.Sprintf("Order %s is now %s", orderID, status),
		DeliveryMethod: model.DeliveryInApp,
	})
	return &sent, true
}

// History returns every notification ever sent to the user, in send order.
func (n *Notifier) History(userAddress string) []model.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]model.Notification, len(n.history[userAddress]))
	copy(out, n.history[userAddress])
	return out
}

// GetPreferences returns the user's channel opt-in state, defaulted if never set.
func (n *Notifier) GetPreferences(userAddress string) Preferences {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if prefs, ok := n.preferences[userAddress]; ok {
		return prefs
	}
	return DefaultPreferences()
}

// SetPreferences replaces the user's channel opt-in state.
func (n *Notifier) SetPreferences(userAddress string, prefs Preferences) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.preferences[userAddress] = prefs
}
