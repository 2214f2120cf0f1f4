package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/internal/execlog"
	"github.com/Checker-Finance/execution-core/internal/metrics"
	"github.com/Checker-Finance/execution-core/internal/notify"
	"github.com/Checker-Finance/execution-core/internal/rate"
	"github.com/Checker-Finance/execution-core/internal/registry"
	"github.com/Checker-Finance/execution-core/internal/tracker"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// Config controls retry discipline and which collaborators the router uses.
type Config struct {
	DefaultMaxRetries   int
	RetryDelay          time.Duration
	RequestTimeout      time.Duration
	EnableLogging       bool
	EnableTracking      bool
	EnableNotifications bool
}

// EventSink mirrors execution lifecycle entries to an external bus. Publish
// failures are non-fatal.
type EventSink interface {
	PublishExecutionEvent(ctx context.Context, entry model.ExecutionLogEntry) error
}

// Router is the single entry point for placing and cancelling orders across
// platforms. Execute and Cancel always resolve with a result carrying a
// success flag; they never propagate adapter errors to the caller.
type Router struct {
	cfg      Config
	reg      *registry.Registry
	trk      *tracker.Tracker
	log      *execlog.Logger
	notifier *notify.Notifier
	rateMgr  *rate.Manager
	events   EventSink
	logger   *zap.Logger
}

// New creates a Router. Tracker, execution logger, notifier and rate manager
// are all optional.
func New(
	cfg Config,
	reg *registry.Registry,
	trk *tracker.Tracker,
	log *execlog.Logger,
	notifier *notify.Notifier,
	rateMgr *rate.Manager,
	logger *zap.Logger,
) *Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:      cfg,
		reg:      reg,
		trk:      trk,
		log:      log,
		notifier: notifier,
		rateMgr:  rateMgr,
		logger:   logger,
	}
}

// SetEvents attaches an optional event mirror for lifecycle entries.
func (r *Router) SetEvents(sink EventSink) {
	r.events = sink
}

// Execute places an order on the requested platform with per-attempt timeout
// and bounded sequential retries. The returned ExecutionID joins every audit
// entry for this call.
func (r *Router) Execute(ctx context.Context, req model.ExecutionRequest) model.ExecutionResult {
	executionID := uuid.NewString()
	start := time.Now()

	r.logEvent(model.ExecutionLogEntry{
		ExecutionID: executionID,
		EventType:   model.EventExecutionStarted,
		Platform:    req.Platform,
		UserAddress: req.UserAddress,
		MarketID:    req.MarketID,
		Payload: map[string]any{
			"side":            string(req.Side),
			"type":            string(req.Type),
			"size":            req.Size.String(),
			"price":           req.Price.String(),
			"client_order_id": req.ClientOrderID,
		},
	})

	adapter, err := r.reg.GetOrCreate(req.Platform, nil)
	if err != nil {
		return r.fail(executionID, req, start, fmt.Errorf("resolve adapter: %w", err))
	}

	order, err := r.placeWithRetry(ctx, adapter, req)
	if err != nil {
		return r.fail(executionID, req, start, err)
	}

	r.logEvent(model.ExecutionLogEntry{
		ExecutionID: executionID,
		EventType:   model.EventOrderAccepted,
		Platform:    req.Platform,
		UserAddress: req.UserAddress,
		OrderID:     order.ID,
		MarketID:    req.MarketID,
		Payload: map[string]any{
			"status": string(order.Status),
		},
	})
	r.logEvent(model.ExecutionLogEntry{
		ExecutionID: executionID,
		EventType:   model.EventExecutionCompleted,
		Platform:    req.Platform,
		UserAddress: req.UserAddress,
		OrderID:     order.ID,
		MarketID:    req.MarketID,
		Duration:    time.Since(start),
	})

	metrics.IncExecution(req.Platform, "ok")
	metrics.ObserveExecutionDuration(req.Platform, start)

	if r.cfg.EnableNotifications && r.notifier != nil {
		r.notifier.Notify(ctx, notify.Input{
			Type:           model.NotifyOrderPlaced,
			UserAddress:    req.UserAddress,
			Platform:       req.Platform,
			Order:          order,
			Message:        fmt.Sprintf("Order %s placed on %s", order.ID, req.Platform),
			DeliveryMethod: model.DeliveryInApp,
		})
	}

	if req.TrackStatus && r.cfg.EnableTracking && r.trk != nil {
		if _, err := r.trk.Track(req.Platform, order.ID, tracker.TrackOptions{
			UserAddress: req.UserAddress,
		}); err != nil {
			// Tracking is best-effort on the execute path; the order is
			// already live.
			r.logger.Warn("router.tracking_failed",
				zap.String("execution_id", executionID),
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	r.logger.Info("router.execution_completed",
		zap.String("execution_id", executionID),
		zap.String("platform", req.Platform),
		zap.String("order_id", order.ID),
		zap.Duration("elapsed", time.Since(start)))

	return model.ExecutionResult{
		Success:     true,
		ExecutionID: executionID,
		Order:       order,
	}
}

// placeWithRetry races each place-order attempt against the request timeout
// and retries up to DefaultMaxRetries additional attempts, sequentially, with
// a fixed inter-attempt delay.
func (r *Router) placeWithRetry(ctx context.Context, adapter registry.Adapter, req model.ExecutionRequest) (*model.Order, error) {
	if r.rateMgr != nil {
		if err := r.rateMgr.Wait(ctx, req.Platform); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.DefaultMaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
		order, err := adapter.PlaceOrder(attemptCtx, req)
		cancel()

		if err == nil && order != nil {
			return order, nil
		}

		if err == nil {
			err = fmt.Errorf("adapter returned no order")
		}
		lastErr = err
		r.logger.Warn("router.place_order_failed",
			zap.String("platform", req.Platform),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == r.cfg.DefaultMaxRetries {
			break
		}
		metrics.IncRetry(req.Platform)

		select {
		case <-time.After(r.cfg.RetryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("execution aborted: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("place order failed after %d attempts: %w", r.cfg.DefaultMaxRetries+1, lastErr)
}

// Cancel cancels an order with the same adapter-resolution, retry and logging
// discipline as Execute. A falsy adapter result is reported, never swallowed.
func (r *Router) Cancel(ctx context.Context, platform, orderID, userAddress string) model.CancelResult {
	executionID := uuid.NewString()
	start := time.Now()

	adapter, err := r.reg.GetOrCreate(platform, nil)
	if err != nil {
		r.logEvent(model.ExecutionLogEntry{
			ExecutionID: executionID,
			EventType:   model.EventCancelFailed,
			Platform:    platform,
			UserAddress: userAddress,
			OrderID:     orderID,
			Error:       err.Error(),
		})
		metrics.IncError("router", "adapter_unavailable")
		return model.CancelResult{ExecutionID: executionID, OrderID: orderID, Error: err.Error()}
	}

	var cancelled bool
	var lastErr error
	for attempt := 0; attempt <= r.cfg.DefaultMaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
		cancelled, lastErr = adapter.CancelOrder(attemptCtx, orderID)
		cancel()

		if lastErr == nil {
			break
		}
		r.logger.Warn("router.cancel_order_failed",
			zap.String("platform", platform),
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == r.cfg.DefaultMaxRetries {
			break
		}
		metrics.IncRetry(platform)

		select {
		case <-time.After(r.cfg.RetryDelay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = r.cfg.DefaultMaxRetries
		}
	}

	if lastErr != nil || !cancelled {
		errMsg := "cancel rejected by platform"
		if lastErr != nil {
			errMsg = lastErr.Error()
		}
		r.logEvent(model.ExecutionLogEntry{
			ExecutionID: executionID,
			EventType:   model.EventCancelFailed,
			Platform:    platform,
			UserAddress: userAddress,
			OrderID:     orderID,
			Error:       errMsg,
			Duration:    time.Since(start),
		})
		metrics.IncExecution(platform, "error")
		return model.CancelResult{ExecutionID: executionID, OrderID: orderID, Error: errMsg}
	}

	r.logEvent(model.ExecutionLogEntry{
		ExecutionID: executionID,
		EventType:   model.EventOrderCancelled,
		Platform:    platform,
		UserAddress: userAddress,
		OrderID:     orderID,
		Duration:    time.Since(start),
	})
	metrics.IncExecution(platform, "ok")

	if r.cfg.EnableNotifications && r.notifier != nil {
		r.notifier.Notify(ctx, notify.Input{
			Type:           model.NotifyOrderCancelled,
			UserAddress:    userAddress,
			Platform:       platform,
			Message:        fmt.Sprintf("Order %s cancelled", orderID),
			DeliveryMethod: model.DeliveryInApp,
		})
	}

	return model.CancelResult{Success: true, ExecutionID: executionID, OrderID: orderID}
}

func (r *Router) fail(executionID string, req model.ExecutionRequest, start time.Time, err error) model.ExecutionResult {
	r.logEvent(model.ExecutionLogEntry{
		ExecutionID: executionID,
		EventType:   model.EventExecutionFailed,
		Platform:    req.Platform,
		UserAddress: req.UserAddress,
		MarketID:    req.MarketID,
		Error:       err.Error(),
		Duration:    time.Since(start),
	})

	metrics.IncExecution(req.Platform, "error")
	r.logger.Warn("router.execution_failed",
		zap.String("execution_id", executionID),
		zap.String("platform", req.Platform),
		zap.Error(err))

	return model.ExecutionResult{
		ExecutionID: executionID,
		Error:       err.Error(),
	}
}

func (r *Router) logEvent(entry model.ExecutionLogEntry) {
	if r.cfg.EnableLogging && r.log != nil {
		r.log.Log(entry)
	}

	if r.events != nil {
		switch entry.EventType {
		case model.EventExecutionCompleted, model.EventExecutionFailed, model.EventOrderCancelled:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.events.PublishExecutionEvent(ctx, entry); err != nil {
				r.logger.Debug("router.event_publish_failed",
					zap.String("execution_id", entry.ExecutionID),
					zap.Error(err))
			}
			cancel()
		}
	}
}
