package api

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/execution-core/pkg/model"
)

// PlaceOrderRequest is the payload to place an order through the router.
type PlaceOrderRequest struct {
	Platform      string  `json:"platform" example:"polymarket"`
	UserAddress   string  `json:"user_address" example:"0xabc..."`
	MarketID      string  `json:"market_id"`
	Outcome       string  `json:"outcome" example:"YES"`
	Side          string  `json:"side" example:"BUY"`
	Type          string  `json:"type" example:"LIMIT"`
	Size          float64 `json:"size" example:"100"`
	Price         float64 `json:"price,omitempty" example:"0.55"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	TrackStatus   bool    `json:"track_status,omitempty"`
}

// Validate checks required fields.
func (r PlaceOrderRequest) Validate() error {
	if r.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	if r.UserAddress == "" {
		return fmt.Errorf("user_address is required")
	}
	if r.MarketID == "" {
		return fmt.Errorf("market_id is required")
	}
	if r.Size <= 0 {
		return fmt.Errorf("size must be positive")
	}
	switch strings.ToUpper(r.Side) {
	case string(model.SideBuy), string(model.SideSell):
	default:
		return fmt.Errorf("side must be BUY or SELL")
	}
	return nil
}

func toExecutionRequest(r PlaceOrderRequest) model.ExecutionRequest {
	orderType := model.TypeLimit
	if strings.EqualFold(r.Type, string(model.TypeMarket)) {
		orderType = model.TypeMarket
	}
	return model.ExecutionRequest{
		Platform:      r.Platform,
		UserAddress:   r.UserAddress,
		MarketID:      r.MarketID,
		Outcome:       r.Outcome,
		Side:          model.OrderSide(strings.ToUpper(r.Side)),
		Type:          orderType,
		Size:          decimal.NewFromFloat(r.Size),
		Price:         decimal.NewFromFloat(r.Price),
		ClientOrderID: r.ClientOrderID,
		TrackStatus:   r.TrackStatus,
	}
}

// CancelOrderRequest is the payload to cancel an order.
type CancelOrderRequest struct {
	Platform    string `json:"platform"`
	UserAddress string `json:"user_address"`
}

// Validate checks required fields.
func (r CancelOrderRequest) Validate() error {
	if r.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	return nil
}
