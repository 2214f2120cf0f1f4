package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected OrderStatus
	}{
		{"PENDING", StatusPending},
		{"new", StatusPending},
		{"Submitted", StatusPending},
		{"OPEN", StatusOpen},
		{"live", StatusOpen},
		{"working", StatusOpen},
		{"partially-filled", StatusPartiallyFilled},
		{"PARTIAL_FILL", StatusPartiallyFilled},
		{"FILLED", StatusFilled},
		{"matched", StatusFilled},
		{"Settled", StatusFilled},
		{"CANCELED", StatusCancelled},
		{"user_cancelled", StatusCancelled},
		{"expired", StatusExpired},
		{"REJECTED", StatusRejected},
		{"failed", StatusRejected},
		{"  filled  ", StatusFilled},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeStatus(tt.raw))
		})
	}
}

func TestNormalizeStatus_UnknownFallsBackToPending(t *testing.T) {
	assert.Equal(t, StatusPending, NormalizeStatus("SOME_NEW_VENUE_STATE"))
	assert.Equal(t, StatusPending, NormalizeStatus(""))
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	terminal := []OrderStatus{StatusFilled, StatusCancelled, StatusExpired, StatusRejected}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	open := []OrderStatus{StatusPending, StatusOpen, StatusPartiallyFilled}
	for _, s := range open {
		assert.False(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}
}
