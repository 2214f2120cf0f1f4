package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotificationTypeForStatus(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		expected NotificationType
		ok       bool
	}{
		{StatusFilled, NotifyOrderFilled, true},
		{StatusPartiallyFilled, NotifyOrderPartiallyFilled, true},
		{StatusCancelled, NotifyOrderCancelled, true},
		{StatusRejected, NotifyOrderRejected, true},
		{StatusExpired, NotifyOrderExpired, true},
		{StatusPending, "", false},
		{StatusOpen, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got, ok := NotificationTypeForStatus(tt.status)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}
