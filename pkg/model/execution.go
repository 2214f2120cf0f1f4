package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a lifecycle event in the execution audit trail.
type EventType string

const (
	EventExecutionStarted   EventType = "EXECUTION_STARTED"
	EventOrderAccepted      EventType = "ORDER_ACCEPTED"
	EventExecutionCompleted EventType = "EXECUTION_COMPLETED"
	EventExecutionFailed    EventType = "EXECUTION_FAILED"
	EventOrderStatusChanged EventType = "ORDER_STATUS_CHANGED"
	EventOrderCancelled     EventType = "ORDER_CANCELLED"
	EventCancelFailed       EventType = "CANCEL_FAILED"
)

// ExecutionRequest describes one order placement. Immutable once submitted.
type ExecutionRequest struct {
	Platform      string          `json:"platform"`
	UserAddress   string          `json:"user_address"`
	MarketID      string          `json:"market_id"`
	Outcome       string          `json:"outcome"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Size          decimal.Decimal `json:"size"`
	Price         decimal.Decimal `json:"price"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	TrackStatus   bool            `json:"track_status,omitempty"`
}

// ExecutionResult is what every Execute call resolves to. ExecutionID joins
// all audit entries for the call and never changes identity.
type ExecutionResult struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"execution_id"`
	Order       *Order `json:"order,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CancelResult mirrors ExecutionResult for cancel operations.
type CancelResult struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"execution_id"`
	OrderID     string `json:"order_id"`
	Error       string `json:"error,omitempty"`
}

// ExecutionLogEntry is one immutable record in the execution audit trail.
type ExecutionLogEntry struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	EventType   EventType      `json:"event_type"`
	Platform    string         `json:"platform"`
	UserAddress string         `json:"user_address"`
	UserID      string         `json:"user_id,omitempty"`
	OrderID     string         `json:"order_id,omitempty"`
	MarketID    string         `json:"market_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Error       string         `json:"error,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// OrderStatusUpdate is emitted when a tracked order transitions between
// observed statuses. The first observation establishes a baseline and is
// never reported.
type OrderStatusUpdate struct {
	SubscriptionID string      `json:"subscription_id"`
	OrderID        string      `json:"order_id"`
	PreviousStatus OrderStatus `json:"previous_status"`
	NewStatus      OrderStatus `json:"new_status"`
	Timestamp      time.Time   `json:"timestamp"`
	Order          *Order      `json:"order,omitempty"`
}
