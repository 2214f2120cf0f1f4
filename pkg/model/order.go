package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the canonical cross-platform order state.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is expected from the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType distinguishes limit from market orders.
type OrderType string

const (
	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
)

// Order is the canonical cross-platform order shape. Every adapter maps its
// venue-specific response into this struct before it crosses the boundary.
type Order struct {
	ID            string          `json:"id"`
	Platform      string          `json:"platform"`
	MarketID      string          `json:"market_id"`
	Outcome       string          `json:"outcome"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Status        OrderStatus     `json:"status"`
	Size          decimal.Decimal `json:"size"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Price         decimal.Decimal `json:"price"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NormalizeStatus maps venue-raw status strings to the canonical OrderStatus.
// Platforms disagree wildly on naming; unknown statuses fall back to PENDING
// so a new venue state never crashes the tracker.
func NormalizeStatus(raw string) OrderStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")

	switch s {
	case "PENDING", "CREATED", "NEW", "SUBMITTED", "ACCEPTED":
		return StatusPending
	case "OPEN", "LIVE", "ACTIVE", "WORKING", "RESTING":
		return StatusOpen
	case "PARTIALLY_FILLED", "PARTIAL", "PARTIAL_FILL", "PARTIALLYFILLED":
		return StatusPartiallyFilled
	case "FILLED", "MATCHED", "EXECUTED", "COMPLETE", "COMPLETED", "DONE", "SETTLED":
		return StatusFilled
	case "CANCELLED", "CANCELED", "USER_CANCELLED", "USER_CANCELED", "SYSTEM_CANCELLED":
		return StatusCancelled
	case "EXPIRED", "TIMEOUT", "LAPSED":
		return StatusExpired
	case "REJECTED", "FAILED", "DECLINED", "INVALID", "BLOCKED":
		return StatusRejected
	default:
		return StatusPending
	}
}
