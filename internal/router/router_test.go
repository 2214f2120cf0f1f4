package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/execution-core/internal/execlog"
	"github.com/Checker-Finance/execution-core/internal/notify"
	"github.com/Checker-Finance/execution-core/internal/registry"
	"github.com/Checker-Finance/execution-core/internal/tracker"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// flakyAdapter fails the first failPlace placements and the first failCancel
// cancels, then succeeds.
type flakyAdapter struct {
	mu          sync.Mutex
	failPlace   int
	placeErr    string
	failCancel  int
	cancelOK    bool
	placeCalls  int
	cancelCalls int
}

func (a *flakyAdapter) PlaceOrder(ctx context.Context, req model.ExecutionRequest) (*model.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.placeCalls++
	if a.placeCalls <= a.failPlace {
		msg := a.placeErr
		if msg == "" {
			msg = "temporary venue error"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return &model.Order{
		ID:       "o-1",
		Platform: req.Platform,
		MarketID: req.MarketID,
		Status:   model.StatusOpen,
		Size:     req.Size,
	}, nil
}

func (a *flakyAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancelCalls++
	if a.cancelCalls <= a.failCancel {
		return false, fmt.Errorf("temporary venue error")
	}
	return a.cancelOK, nil
}

func (a *flakyAdapter) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return &model.Order{ID: orderID, Status: model.StatusOpen}, nil
}

func (a *flakyAdapter) IsReady() bool { return true }

func newTestRouter(t *testing.T, adapter registry.Adapter, cfg Config) (*Router, *execlog.Logger) {
	t.Helper()

	reg := registry.New()
	if adapter != nil {
		reg.Register("sim", func(registry.Config) (registry.Adapter, error) {
			return adapter, nil
		})
	}
	cfg.EnableLogging = true
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	log := execlog.New(execlog.Config{}, nil)
	return New(cfg, reg, nil, log, nil, nil, nil), log
}

func testRequest() model.ExecutionRequest {
	return model.ExecutionRequest{
		Platform:    "sim",
		UserAddress: "0xabc",
		MarketID:    "mkt-1",
		Outcome:     "YES",
		Side:        model.SideBuy,
		Type:        model.TypeLimit,
		Size:        decimal.NewFromInt(100),
		Price:       decimal.RequireFromString("0.55"),
	}
}

func TestExecute_Success(t *testing.T) {
	r, log := newTestRouter(t, &flakyAdapter{}, Config{})

	result := r.Execute(context.Background(), testRequest())

	require.True(t, result.Success)
	assert.NotEmpty(t, result.ExecutionID)
	require.NotNil(t, result.Order)
	assert.Equal(t, "o-1", result.Order.ID)
	assert.Empty(t, result.Error)

	logs := log.ExecutionLogs(result.ExecutionID)
	require.Len(t, logs, 3)
	assert.Equal(t, model.EventExecutionStarted, logs[0].EventType)
	assert.Equal(t, model.EventOrderAccepted, logs[1].EventType)
	assert.Equal(t, model.EventExecutionCompleted, logs[2].EventType)
}

func TestExecute_AdapterFailureNeverPanics(t *testing.T) {
	adapter := &flakyAdapter{failPlace: 100, placeErr: "Insufficient balance"}
	r, log := newTestRouter(t, adapter, Config{DefaultMaxRetries: 1})

	result := r.Execute(context.Background(), testRequest())

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ExecutionID)
	assert.Nil(t, result.Order)
	assert.Contains(t, result.Error, "Insufficient balance")

	logs := log.ExecutionLogs(result.ExecutionID)
	require.Len(t, logs, 2)
	assert.Equal(t, model.EventExecutionStarted, logs[0].EventType)
	assert.Equal(t, model.EventExecutionFailed, logs[1].EventType)
	assert.Contains(t, logs[1].Error, "Insufficient balance")
	assert.Greater(t, logs[1].Duration, time.Duration(0))
}

func TestExecute_RetriesTransientFailures(t *testing.T) {
	adapter := &flakyAdapter{failPlace: 2}
	r, _ := newTestRouter(t, adapter, Config{DefaultMaxRetries: 3})

	result := r.Execute(context.Background(), testRequest())

	assert.True(t, result.Success)
	assert.Equal(t, 3, adapter.placeCalls)
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	adapter := &flakyAdapter{failPlace: 100}
	r, _ := newTestRouter(t, adapter, Config{DefaultMaxRetries: 2})

	result := r.Execute(context.Background(), testRequest())

	assert.False(t, result.Success)
	// One initial attempt plus two retries.
	assert.Equal(t, 3, adapter.placeCalls)
}

func TestExecute_UnknownPlatform(t *testing.T) {
	r, log := newTestRouter(t, nil, Config{})

	result := r.Execute(context.Background(), testRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not registered")

	logs := log.ExecutionLogs(result.ExecutionID)
	require.Len(t, logs, 2)
	assert.Equal(t, model.EventExecutionFailed, logs[1].EventType)
}

func TestExecute_SendsPlacementNotification(t *testing.T) {
	reg := registry.New()
	reg.Register("sim", func(registry.Config) (registry.Adapter, error) {
		return &flakyAdapter{}, nil
	})
	notifier := notify.New(notify.Config{}, nil, nil)
	r := New(Config{EnableNotifications: true, RetryDelay: time.Millisecond}, reg, nil, nil, notifier, nil, nil)

	result := r.Execute(context.Background(), testRequest())
	require.True(t, result.Success)

	history := notifier.History("0xabc")
	require.Len(t, history, 1)
	assert.Equal(t, model.NotifyOrderPlaced, history[0].Type)
	assert.Equal(t, model.DeliveryDelivered, history[0].DeliveryStatus)
}

func TestExecute_HandsOffToTracker(t *testing.T) {
	adapter := &flakyAdapter{}
	reg := registry.New()
	reg.Register("sim", func(registry.Config) (registry.Adapter, error) {
		return adapter, nil
	})
	trk := tracker.New(tracker.Config{DefaultPollingInterval: time.Hour}, reg, nil, nil, nil)
	t.Cleanup(trk.Shutdown)

	r := New(Config{EnableTracking: true, RetryDelay: time.Millisecond}, reg, trk, nil, nil, nil, nil)

	req := testRequest()
	req.TrackStatus = true
	result := r.Execute(context.Background(), req)

	require.True(t, result.Success)
	assert.Equal(t, 1, trk.Count())
}

func TestExecute_TrackingFailureIsBestEffort(t *testing.T) {
	adapter := &flakyAdapter{}
	reg := registry.New()
	reg.Register("sim", func(registry.Config) (registry.Adapter, error) {
		return adapter, nil
	})
	trk := tracker.New(tracker.Config{DefaultPollingInterval: time.Hour, MaxSubscriptions: 1}, reg, nil, nil, nil)
	t.Cleanup(trk.Shutdown)

	_, err := trk.Track("sim", "prior", tracker.TrackOptions{PollingInterval: time.Hour})
	require.NoError(t, err)

	r := New(Config{EnableTracking: true, RetryDelay: time.Millisecond}, reg, trk, nil, nil, nil, nil)

	req := testRequest()
	req.TrackStatus = true
	result := r.Execute(context.Background(), req)

	// The ceiling blocks tracking, not the execution itself.
	assert.True(t, result.Success)
	assert.Equal(t, 1, trk.Count())
}

func TestCancel_Success(t *testing.T) {
	r, log := newTestRouter(t, &flakyAdapter{cancelOK: true}, Config{})

	result := r.Cancel(context.Background(), "sim", "o-1", "0xabc")

	require.True(t, result.Success)
	assert.Equal(t, "o-1", result.OrderID)

	logs := log.ExecutionLogs(result.ExecutionID)
	require.Len(t, logs, 1)
	assert.Equal(t, model.EventOrderCancelled, logs[0].EventType)
}

func TestCancel_RejectedByPlatform(t *testing.T) {
	r, log := newTestRouter(t, &flakyAdapter{cancelOK: false}, Config{})

	result := r.Cancel(context.Background(), "sim", "o-1", "0xabc")

	assert.False(t, result.Success)
	assert.Equal(t, "cancel rejected by platform", result.Error)

	logs := log.ExecutionLogs(result.ExecutionID)
	require.Len(t, logs, 1)
	assert.Equal(t, model.EventCancelFailed, logs[0].EventType)
}

func TestCancel_RetriesThenSucceeds(t *testing.T) {
	adapter := &flakyAdapter{failCancel: 2, cancelOK: true}
	r, _ := newTestRouter(t, adapter, Config{DefaultMaxRetries: 3})

	result := r.Cancel(context.Background(), "sim", "o-1", "0xabc")

	assert.True(t, result.Success)
	assert.Equal(t, 3, adapter.cancelCalls)
}

func TestCancel_UnknownPlatform(t *testing.T) {
	r, _ := newTestRouter(t, nil, Config{})

	result := r.Cancel(context.Background(), "sim", "o-1", "0xabc")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not registered")
}

type recordingEventSink struct {
	mu      sync.Mutex
	entries []model.ExecutionLogEntry
}

func (s *recordingEventSink) PublishExecutionEvent(ctx context.Context, entry model.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func TestExecute_MirrorsOutcomeEvents(t *testing.T) {
	r, _ := newTestRouter(t, &flakyAdapter{}, Config{})
	sink := &recordingEventSink{}
	r.SetEvents(sink)

	result := r.Execute(context.Background(), testRequest())
	require.True(t, result.Success)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// Only the completion is mirrored, not the start or acceptance.
	require.Len(t, sink.entries, 1)
	assert.Equal(t, model.EventExecutionCompleted, sink.entries[0].EventType)
}
