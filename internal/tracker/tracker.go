package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/internal/execlog"
	"github.com/Checker-Finance/execution-core/internal/metrics"
	"github.com/Checker-Finance/execution-core/internal/notify"
	"github.com/Checker-Finance/execution-core/internal/registry"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// Sentinel errors surfaced to callers and error handlers.
var (
	ErrMaxSubscriptions    = fmt.Errorf("max subscriptions reached")
	ErrAdapterNotAvailable = fmt.Errorf("adapter not available")
	ErrOrderNotFound       = fmt.Errorf("order not found")
)

// StatusHandler receives one update per detected status transition, in poll
// order.
type StatusHandler func(update model.OrderStatusUpdate)

// ErrorHandler receives non-fatal polling errors. Polling continues until
// timeout or an explicit stop.
type ErrorHandler func(orderID string, err error)

// EventSink mirrors status transitions to an external bus. Publish failures
// are non-fatal.
type EventSink interface {
	PublishStatusUpdate(ctx context.Context, update model.OrderStatusUpdate) error
}

// Config controls tracking defaults and the subscription ceiling.
type Config struct {
	DefaultPollingInterval time.Duration
	DefaultTimeout         time.Duration
	MaxSubscriptions       int
}

// TrackOptions overrides per-subscription behavior. Zero values fall back to
// the tracker's defaults.
type TrackOptions struct {
	PollingInterval time.Duration
	Timeout         time.Duration
	StopOnTerminal  *bool // nil means true
	UserAddress     string
	OnStatusUpdate  StatusHandler
	OnError         ErrorHandler
}

// Subscription is one active polling loop for a single order. The handle is
// safe to retain after the subscription stops.
type Subscription struct {
	ID       string
	OrderID  string
	Platform string

	interval       time.Duration
	timeout        time.Duration
	stopOnTerminal bool
	userAddress    string
	onStatus       StatusHandler
	onError        ErrorHandler

	// lastStatus is owned by the polling goroutine; hasBaseline gates the
	// silent first observation.
	lastStatus  model.OrderStatus
	hasBaseline bool

	active atomic.Bool
	stop   chan struct{}
	once   sync.Once
}

// IsActive reports whether the subscription is still polling.
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

func (s *Subscription) deactivate() {
	s.once.Do(func() {
		s.active.Store(false)
		close(s.stop)
	})
}

// Tracker manages independent polling subscriptions per tracked order.
// Logger, notifier and events are all optional.
type Tracker struct {
	cfg      Config
	reg      *registry.Registry
	log      *execlog.Logger
	notifier *notify.Notifier
	events   EventSink
	logger   *zap.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
	wg   sync.WaitGroup
}

// New creates a Tracker.
func New(cfg Config, reg *registry.Registry, log *execlog.Logger, notifier *notify.Notifier, logger *zap.Logger) *Tracker {
	if cfg.DefaultPollingInterval <= 0 {
		cfg.DefaultPollingInterval = 5 * time.Second
	}
	if cfg.MaxSubscriptions <= 0 {
		cfg.MaxSubscriptions = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:      cfg,
		reg:      reg,
		log:      log,
		notifier: notifier,
		logger:   logger,
		subs:     make(map[string]*Subscription),
	}
}

// SetEvents attaches an optional event mirror for status transitions.
func (t *Tracker) SetEvents(sink EventSink) {
	t.events = sink
}

// Track starts polling an order. It fails synchronously, creating nothing,
// when the active-subscription ceiling is reached.
func (t *Tracker) Track(platform, orderID string, opts TrackOptions) (*Subscription, error) {
	interval := opts.PollingInterval
	if interval <= 0 {
		interval = t.cfg.DefaultPollingInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = t.cfg.DefaultTimeout
	}
	stopOnTerminal := true
	if opts.StopOnTerminal != nil {
		stopOnTerminal = *opts.StopOnTerminal
	}

	sub := &Subscription{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		Platform:       platform,
		interval:       interval,
		timeout:        timeout,
		stopOnTerminal: stopOnTerminal,
		userAddress:    opts.UserAddress,
		onStatus:       opts.OnStatusUpdate,
		onError:        opts.OnError,
		stop:           make(chan struct{}),
	}
	sub.active.Store(true)

	t.mu.Lock()
	if len(t.subs) >= t.cfg.MaxSubscriptions {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %d active", ErrMaxSubscriptions, t.cfg.MaxSubscriptions)
	}
	t.subs[sub.ID] = sub
	t.mu.Unlock()

	metrics.SetActiveSubscriptions(t.Count())

	t.wg.Add(1)
	go t.poll(sub)

	t.logger.Info("tracker.subscription_started",
		zap.String("subscription_id", sub.ID),
		zap.String("order_id", orderID),
		zap.String("platform", platform),
		zap.Duration("interval", interval),
		zap.Duration("timeout", timeout))

	return sub, nil
}

// poll runs the subscription's tick loop. Each tick awaits the previous
// tick's adapter call, so status callbacks fire in poll order.
func (t *Tracker) poll(sub *Subscription) {
	defer t.wg.Done()
	defer t.remove(sub)

	ticker := time.NewTicker(sub.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if sub.timeout > 0 {
		timer := time.NewTimer(sub.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-sub.stop:
			return

		case <-deadline:
			// Unconditional expiry, independent of order status.
			t.logger.Info("tracker.subscription_timed_out",
				zap.String("subscription_id", sub.ID),
				zap.String("order_id", sub.OrderID))
			sub.deactivate()
			return

		case <-ticker.C:
			if terminal := t.tick(sub); terminal && sub.stopOnTerminal {
				sub.deactivate()
				return
			}
		}
	}
}

// tick performs one poll-compare-emit cycle. It returns true when the last
// observed status is terminal.
func (t *Tracker) tick(sub *Subscription) bool {
	adapter, err := t.reg.GetOrCreate(sub.Platform, nil)
	if err != nil {
		metrics.IncPollError(sub.Platform, "adapter_unavailable")
		t.reportError(sub, fmt.Errorf("%w: %s", ErrAdapterNotAvailable, sub.Platform))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), sub.interval)
	start := time.Now()
	order, err := adapter.GetOrder(ctx, sub.OrderID)
	cancel()
	metrics.ObservePollLatency(sub.Platform, start)

	// A stop may have raced the in-flight call. Drop late responses so a
	// cancelled subscription never fires a stale callback.
	if !sub.IsActive() {
		return false
	}

	if err != nil {
		metrics.IncPollError(sub.Platform, "lookup_failed")
		t.reportError(sub, fmt.Errorf("get order %s: %w", sub.OrderID, err))
		return false
	}
	if order == nil {
		metrics.IncPollError(sub.Platform, "order_not_found")
		t.reportError(sub, fmt.Errorf("%w: %s", ErrOrderNotFound, sub.OrderID))
		return false
	}

	status := order.Status

	// First observation establishes the baseline silently.
	if !sub.hasBaseline {
		sub.hasBaseline = true
		sub.lastStatus = status
		return status.IsTerminal()
	}

	if status != sub.lastStatus {
		update := model.OrderStatusUpdate{
			SubscriptionID: sub.ID,
			OrderID:        sub.OrderID,
			PreviousStatus: sub.lastStatus,
			NewStatus:      status,
			Timestamp:      time.Now().UTC(),
			Order:          order,
		}
		sub.lastStatus = status
		t.emit(sub, update)
	}

	return status.IsTerminal()
}

func (t *Tracker) emit(sub *Subscription, update model.OrderStatusUpdate) {
	t.logger.Info("tracker.order_status_changed",
		zap.String("subscription_id", sub.ID),
		zap.String("order_id", sub.OrderID),
		zap.String("platform", sub.Platform),
		zap.String("previous_status", string(update.PreviousStatus)),
		zap.String("new_status", string(update.NewStatus)))

	metrics.IncStatusChange(sub.Platform, string(update.NewStatus))

	if sub.onStatus != nil {
		sub.onStatus(update)
	}

	if t.log != nil {
		t.log.Log(model.ExecutionLogEntry{
			EventType:   model.EventOrderStatusChanged,
			Platform:    sub.Platform,
			UserAddress: sub.userAddress,
			OrderID:     sub.OrderID,
			MarketID:    update.Order.MarketID,
			Payload: map[string]any{
				"subscription_id": sub.ID,
				"previous_status": string(update.PreviousStatus),
				"new_status":      string(update.NewStatus),
			},
		})
	}

	if t.notifier != nil && sub.userAddress != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		t.notifier.NotifyOrderStatus(ctx, sub.userAddress, update.Order, update.NewStatus)
		cancel()
	}

	if t.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := t.events.PublishStatusUpdate(ctx, update); err != nil {
			t.logger.Debug("tracker.event_publish_failed",
				zap.String("order_id", sub.OrderID),
				zap.Error(err))
		}
		cancel()
	}
}

func (t *Tracker) reportError(sub *Subscription, err error) {
	t.logger.Warn("tracker.poll_error",
		zap.String("subscription_id", sub.ID),
		zap.String("order_id", sub.OrderID),
		zap.String("platform", sub.Platform),
		zap.Error(err))
	if sub.onError != nil {
		sub.onError(sub.OrderID, err)
	}
}

func (t *Tracker) remove(sub *Subscription) {
	t.mu.Lock()
	delete(t.subs, sub.ID)
	t.mu.Unlock()
	metrics.SetActiveSubscriptions(t.Count())
}

// StopTracking cancels a subscription. It is idempotent and an unknown id is
// not an error.
func (t *Tracker) StopTracking(id string) {
	t.mu.Lock()
	sub, ok := t.subs[id]
	t.mu.Unlock()
	if !ok {
		return
	}
	sub.deactivate()
	t.logger.Info("tracker.subscription_stopped",
		zap.String("subscription_id", id),
		zap.String("order_id", sub.OrderID))
}

// OrderStatus is a one-shot lookup with no subscription side effects. It
// returns nil when the adapter is absent or the order is unknown; it never
// returns an error to the caller.
func (t *Tracker) OrderStatus(ctx context.Context, platform, orderID string) *model.Order {
	adapter, err := t.reg.GetOrCreate(platform, nil)
	if err != nil {
		return nil
	}
	order, err := adapter.GetOrder(ctx, orderID)
	if err != nil {
		return nil
	}
	return order
}

// ActiveSubscriptions returns a snapshot of currently active subscriptions.
func (t *Tracker) ActiveSubscriptions() []*Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Count returns the number of active subscriptions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Shutdown stops every subscription and waits for the polling goroutines to
// release their timers. Required for clean process and test teardown.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	for _, sub := range t.subs {
		sub.deactivate()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("tracker.shutdown_complete")
}
