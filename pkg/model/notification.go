package model

import "time"

// NotificationType categorises user notifications emitted on order life events.
type NotificationType string

const (
	NotifyOrderPlaced          NotificationType = "ORDER_PLACED"
	NotifyOrderFilled          NotificationType = "ORDER_FILLED"
	NotifyOrderPartiallyFilled NotificationType = "ORDER_PARTIALLY_FILLED"
	NotifyOrderCancelled       NotificationType = "ORDER_CANCELLED"
	NotifyOrderRejected        NotificationType = "ORDER_REJECTED"
	NotifyOrderExpired         NotificationType = "ORDER_EXPIRED"
)

// DeliveryMethod is the channel a notification is dispatched over.
type DeliveryMethod string

const (
	DeliveryInApp   DeliveryMethod = "IN_APP"
	DeliveryWebhook DeliveryMethod = "WEBHOOK"
	DeliveryEmail   DeliveryMethod = "EMAIL"
)

// DeliveryStatus is the resolved outcome of a dispatch attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// Notification is a single user-facing message about an order event.
type Notification struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	UserAddress    string           `json:"user_address"`
	Platform       string           `json:"platform"`
	Order          *Order           `json:"order,omitempty"`
	Message        string           `json:"message"`
	DeliveryMethod DeliveryMethod   `json:"delivery_method"`
	DeliveryStatus DeliveryStatus   `json:"delivery_status"`
	Timestamp      time.Time        `json:"timestamp"`
}

// NotificationTypeForStatus maps a terminal-or-transitional order status to
// the notification type sent to the user. Statuses with no user-facing
// meaning (PENDING, OPEN) return false.
func NotificationTypeForStatus(s OrderStatus) (NotificationType, bool) {
	switch s {
	case StatusFilled:
		return NotifyOrderFilled, true
	case StatusPartiallyFilled:
		return NotifyOrderPartiallyFilled, true
	case StatusCancelled:
		return NotifyOrderCancelled, true
	case StatusRejected:
		return NotifyOrderRejected, true
	case StatusExpired:
		return NotifyOrderExpired, true
	default:
		return "", false
	}
}
