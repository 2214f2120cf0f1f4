// Package sim provides a simulated in-memory venue adapter. It is used by
// the default service wiring for paper execution and as an integration
// fixture for the router and tracker.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/execution-core/internal/registry"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// Config controls the simulated venue's behavior.
type Config struct {
	// StatusSchedule is the sequence of statuses an order reports on
	// successive lookups; the last status repeats forever.
	StatusSchedule []model.OrderStatus

	// PlaceFailures fails the first N placements with PlaceError, to
	// exercise retry discipline.
	PlaceFailures int
	PlaceError    string

	// Latency delays every adapter call.
	Latency time.Duration
}

// DefaultConfig simulates an order that rests once and then fills.
func DefaultConfig() Config {
	return Config{
		StatusSchedule: []model.OrderStatus{
			model.StatusPending,
			model.StatusOpen,
			model.StatusFilled,
		},
	}
}

type simOrder struct {
	order model.Order
	polls int
}

// Adapter is a simulated venue implementing the registry adapter contract.
type Adapter struct {
	cfg Config

	mu            sync.Mutex
	orders        map[string]*simOrder
	placeAttempts int
}

// New creates a simulated adapter.
func New(cfg Config) *Adapter {
	if len(cfg.StatusSchedule) == 0 {
		cfg.StatusSchedule = DefaultConfig().StatusSchedule
	}
	return &Adapter{
		cfg:    cfg,
		orders: make(map[string]*simOrder),
	}
}

// Factory adapts New to the registry factory contract. The registry config
// is accepted for interface compatibility; the simulator takes its behavior
// from the Config captured at registration time.
func Factory(cfg Config) registry.Factory {
	return func(registry.Config) (registry.Adapter, error) {
		return New(cfg), nil
	}
}

func (a *Adapter) sleep(ctx context.Context) error {
	if a.cfg.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(a.cfg.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PlaceOrder accepts the request and books a simulated order in its first
// scheduled status.
func (a *Adapter) PlaceOrder(ctx context.Context, req model.ExecutionRequest) (*model.Order, error) {
	if err := a.sleep(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.placeAttempts++
	if a.placeAttempts <= a.cfg.PlaceFailures {
		msg := a.cfg.PlaceError
		if msg == "" {
			msg = "simulated placement failure"
		}
		return nil, fmt.Errorf("%s", msg)
	}

	now := time.Now().UTC()
	order := model.Order{
		ID:            uuid.NewString(),
		Platform:      req.Platform,
		MarketID:      req.MarketID,
		Outcome:       req.Outcome,
		Side:          req.Side,
		Type:          req.Type,
		Status:        a.cfg.StatusSchedule[0],
		Size:          req.Size,
		FilledSize:    decimal.Zero,
		RemainingSize: req.Size,
		Price:         req.Price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.orders[order.ID] = &simOrder{order: order}
	return &order, nil
}

// GetOrder returns the order, advancing it along the status schedule one
// step per lookup. Unknown ids return nil, nil.
func (a *Adapter) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if err := a.sleep(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	so, ok := a.orders[orderID]
	if !ok {
		return nil, nil
	}

	if !so.order.Status.IsTerminal() {
		idx := so.polls
		if idx >= len(a.cfg.StatusSchedule) {
			idx = len(a.cfg.StatusSchedule) - 1
		}
		so.order.Status = a.cfg.StatusSchedule[idx]
		so.order.UpdatedAt = time.Now().UTC()
		if so.order.Status == model.StatusFilled {
			so.order.FilledSize = so.order.Size
			so.order.RemainingSize = decimal.Zero
			so.order.AveragePrice = so.order.Price
		}
		so.polls++
	}

	out := so.order
	return &out, nil
}

// CancelOrder cancels a non-terminal order. Cancelling a terminal order
// returns false without error.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := a.sleep(ctx); err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	so, ok := a.orders[orderID]
	if !ok {
		return false, fmt.Errorf("order %s not found", orderID)
	}
	if so.order.Status.IsTerminal() {
		return false, nil
	}
	so.order.Status = model.StatusCancelled
	so.order.UpdatedAt = time.Now().UTC()
	return true, nil
}

// IsReady always reports true for the simulator.
func (a *Adapter) IsReady() bool { return true }
