package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/execution-core/internal/execlog"
	"github.com/Checker-Finance/execution-core/internal/registry"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// scriptedAdapter serves a fixed sequence of statuses for one order; the
// last status repeats.
type scriptedAdapter struct {
	mu       sync.Mutex
	orderID  string
	statuses []model.OrderStatus
	calls    int
	err      error
	missing  bool
}

func (a *scriptedAdapter) PlaceOrder(ctx context.Context, req model.ExecutionRequest) (*model.Order, error) {
	return nil, fmt.Errorf("not used")
}

func (a *scriptedAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, fmt.Errorf("not used")
}

func (a *scriptedAdapter) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return nil, a.err
	}
	if a.missing || orderID != a.orderID {
		return nil, nil
	}

	idx := a.calls
	if idx >= len(a.statuses) {
		idx = len(a.statuses) - 1
	}
	a.calls++
	return &model.Order{
		ID:       orderID,
		Platform: "sim",
		MarketID: "mkt-1",
		Status:   a.statuses[idx],
	}, nil
}

func (a *scriptedAdapter) IsReady() bool { return true }

func newTestTracker(t *testing.T, adapter registry.Adapter, cfg Config, log *execlog.Logger) *Tracker {
	t.Helper()

	reg := registry.New()
	if adapter != nil {
		reg.Register("sim", func(registry.Config) (registry.Adapter, error) {
			return adapter, nil
		})
	}
	trk := New(cfg, reg, log, nil, nil)
	t.Cleanup(trk.Shutdown)
	return trk
}

func boolPtr(b bool) *bool { return &b }

func TestTrack_EmitsOnStatusChangeOnly(t *testing.T) {
	adapter := &scriptedAdapter{
		orderID:  "o-1",
		statuses: []model.OrderStatus{model.StatusPending, model.StatusPending, model.StatusFilled},
	}
	trk := newTestTracker(t, adapter, Config{}, nil)

	var mu sync.Mutex
	var updates []model.OrderStatusUpdate
	_, err := trk.Track("sim", "o-1", TrackOptions{
		PollingInterval: 10 * time.Millisecond,
		OnStatusUpdate: func(u model.OrderStatusUpdate) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// The first PENDING observation is the baseline; the repeat is silent.
	assert.Equal(t, model.StatusPending, updates[0].PreviousStatus)
	assert.Equal(t, model.StatusFilled, updates[0].NewStatus)
	assert.Equal(t, "o-1", updates[0].OrderID)
	require.NotNil(t, updates[0].Order)
}

func TestTrack_StopsOnTerminalByDefault(t *testing.T) {
	adapter := &scriptedAdapter{
		orderID:  "o-1",
		statuses: []model.OrderStatus{model.StatusPending, model.StatusFilled},
	}
	trk := newTestTracker(t, adapter, Config{}, nil)

	sub, err := trk.Track("sim", "o-1", TrackOptions{PollingInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !sub.IsActive() && trk.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTrack_ContinuesPastTerminalWhenDisabled(t *testing.T) {
	adapter := &scriptedAdapter{
		orderID:  "o-1",
		statuses: []model.OrderStatus{model.StatusFilled},
	}
	trk := newTestTracker(t, adapter, Config{}, nil)

	sub, err := trk.Track("sim", "o-1", TrackOptions{
		PollingInterval: 10 * time.Millisecond,
		StopOnTerminal:  boolPtr(false),
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, sub.IsActive())
	assert.Equal(t, 1, trk.Count())
}

func TestTrack_MaxSubscriptionsFailsSynchronously(t *testing.T) {
	adapter := &scriptedAdapter{orderID: "o-1", statuses: []model.OrderStatus{model.StatusOpen}}
	trk := newTestTracker(t, adapter, Config{MaxSubscriptions: 2}, nil)

	_, err := trk.Track("sim", "o-1", TrackOptions{PollingInterval: time.Hour})
	require.NoError(t, err)
	_, err = trk.Track("sim", "o-2", TrackOptions{PollingInterval: time.Hour})
	require.NoError(t, err)

	_, err = trk.Track("sim", "o-3", TrackOptions{PollingInterval: time.Hour})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxSubscriptions)
	assert.Equal(t, 2, trk.Count())
}

func TestStopTracking_FreesSlotAndIsIdempotent(t *testing.T) {
	adapter := &scriptedAdapter{orderID: "o-1", statuses: []model.OrderStatus{model.StatusOpen}}
	trk := newTestTracker(t, adapter, Config{MaxSubscriptions: 1}, nil)

	sub, err := trk.Track("sim", "o-1", TrackOptions{PollingInterval: time.Hour})
	require.NoError(t, err)

	trk.StopTracking(sub.ID)
	trk.StopTracking(sub.ID)
	trk.StopTracking("unknown-id")

	require.Eventually(t, func() bool {
		return trk.Count() == 0
	}, time.Second, 5*time.Millisecond)
	assert.False(t, sub.IsActive())

	_, err = trk.Track("sim", "o-2", TrackOptions{PollingInterval: time.Hour})
	require.NoError(t, err)
}

// parkedAdapter answers the first lookup immediately, then parks the second
// until released, so a stop can race an in-flight poll.
type parkedAdapter struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (a *parkedAdapter) PlaceOrder(ctx context.Context, req model.ExecutionRequest) (*model.Order, error) {
	return nil, fmt.Errorf("not used")
}

func (a *parkedAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, fmt.Errorf("not used")
}

func (a *parkedAdapter) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()

	if n == 1 {
		return &model.Order{ID: orderID, Platform: "sim", Status: model.StatusPending}, nil
	}
	if n == 2 {
		a.entered <- struct{}{}
		<-a.release
	}
	return &model.Order{ID: orderID, Platform: "sim", Status: model.StatusFilled}, nil
}

func (a *parkedAdapter) IsReady() bool { return true }

func TestStopTracking_DropsInFlightResponse(t *testing.T) {
	adapter := &parkedAdapter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	trk := newTestTracker(t, adapter, Config{}, nil)

	updates := make(chan model.OrderStatusUpdate, 1)
	sub, err := trk.Track("sim", "o-1", TrackOptions{
		PollingInterval: 10 * time.Millisecond,
		OnStatusUpdate: func(u model.OrderStatusUpdate) {
			updates <- u
		},
	})
	require.NoError(t, err)

	// First poll set the PENDING baseline; the second is now parked inside
	// the adapter.
	select {
	case <-adapter.entered:
	case <-time.After(time.Second):
		t.Fatal("second poll never started")
	}

	trk.StopTracking(sub.ID)
	require.False(t, sub.IsActive())
	close(adapter.release)

	// The parked lookup returns FILLED after the stop; the stale transition
	// must not reach the callback.
	select {
	case u := <-updates:
		t.Fatalf("cancelled subscription fired %s -> %s", u.PreviousStatus, u.NewStatus)
	case <-time.After(100 * time.Millisecond):
	}

	require.Eventually(t, func() bool {
		return trk.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTrack_TimeoutExpiresSubscription(t *testing.T) {
	adapter := &scriptedAdapter{orderID: "o-1", statuses: []model.OrderStatus{model.StatusOpen}}
	trk := newTestTracker(t, adapter, Config{}, nil)

	sub, err := trk.Track("sim", "o-1", TrackOptions{
		PollingInterval: 10 * time.Millisecond,
		Timeout:         50 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !sub.IsActive() && trk.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTrack_ReportsOrderNotFound(t *testing.T) {
	adapter := &scriptedAdapter{missing: true}
	trk := newTestTracker(t, adapter, Config{}, nil)

	var mu sync.Mutex
	var errs []error
	sub, err := trk.Track("sim", "missing", TrackOptions{
		PollingInterval: 10 * time.Millisecond,
		OnError: func(orderID string, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, errs[0], ErrOrderNotFound)
	mu.Unlock()

	// Not-found is not fatal; the subscription keeps polling.
	assert.True(t, sub.IsActive())
}

func TestTrack_ReportsAdapterNotAvailable(t *testing.T) {
	trk := newTestTracker(t, nil, Config{}, nil)

	var mu sync.Mutex
	var errs []error
	_, err := trk.Track("sim", "o-1", TrackOptions{
		PollingInterval: 10 * time.Millisecond,
		OnError: func(orderID string, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, errs[0], ErrAdapterNotAvailable)
	mu.Unlock()
}

func TestTrack_WritesAuditEntryOnTransition(t *testing.T) {
	adapter := &scriptedAdapter{
		orderID:  "o-1",
		statuses: []model.OrderStatus{model.StatusPending, model.StatusFilled},
	}
	log := execlog.New(execlog.Config{}, nil)
	trk := newTestTracker(t, adapter, Config{}, log)

	_, err := trk.Track("sim", "o-1", TrackOptions{
		PollingInterval: 10 * time.Millisecond,
		UserAddress:     "0xabc",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := log.Query(context.Background(), execlog.Filter{EventType: model.EventOrderStatusChanged})
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	got, err := log.Query(context.Background(), execlog.Filter{EventType: model.EventOrderStatusChanged})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o-1", got[0].OrderID)
	assert.Equal(t, "0xabc", got[0].UserAddress)
	assert.Equal(t, string(model.StatusPending), got[0].Payload["previous_status"])
	assert.Equal(t, string(model.StatusFilled), got[0].Payload["new_status"])
}

func TestOrderStatus_OneShot(t *testing.T) {
	adapter := &scriptedAdapter{orderID: "o-1", statuses: []model.OrderStatus{model.StatusOpen}}
	trk := newTestTracker(t, adapter, Config{}, nil)

	order := trk.OrderStatus(context.Background(), "sim", "o-1")
	require.NotNil(t, order)
	assert.Equal(t, model.StatusOpen, order.Status)
	assert.Equal(t, 0, trk.Count())

	assert.Nil(t, trk.OrderStatus(context.Background(), "unregistered", "o-1"))

	adapter.mu.Lock()
	adapter.err = fmt.Errorf("venue down")
	adapter.mu.Unlock()
	assert.Nil(t, trk.OrderStatus(context.Background(), "sim", "o-1"))
}

func TestShutdown_StopsAllSubscriptions(t *testing.T) {
	adapter := &scriptedAdapter{orderID: "o-1", statuses: []model.OrderStatus{model.StatusOpen}}
	trk := newTestTracker(t, adapter, Config{}, nil)

	for i := 0; i < 5; i++ {
		_, err := trk.Track("sim", fmt.Sprintf("o-%d", i), TrackOptions{PollingInterval: 10 * time.Millisecond})
		require.NoError(t, err)
	}
	require.Equal(t, 5, trk.Count())

	trk.Shutdown()
	assert.Equal(t, 0, trk.Count())
}

type recordingSink struct {
	mu      sync.Mutex
	updates []model.OrderStatusUpdate
}

func (s *recordingSink) PublishStatusUpdate(ctx context.Context, update model.OrderStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	return nil
}

func TestTrack_MirrorsTransitionsToEventSink(t *testing.T) {
	adapter := &scriptedAdapter{
		orderID:  "o-1",
		statuses: []model.OrderStatus{model.StatusPending, model.StatusFilled},
	}
	trk := newTestTracker(t, adapter, Config{}, nil)
	sink := &recordingSink{}
	trk.SetEvents(sink)

	_, err := trk.Track("sim", "o-1", TrackOptions{PollingInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.updates) == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, model.StatusFilled, sink.updates[0].NewStatus)
}
