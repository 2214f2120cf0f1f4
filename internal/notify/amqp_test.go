package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/pkg/model"
)

type fakeAMQPChannel struct {
	published []amqp.Publishing
	keys      []string
	fail      bool
}

func (f *fakeAMQPChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.fail {
		return fmt.Errorf("channel closed")
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	return nil
}

func TestAMQPDeliverer_PublishesNotification(t *testing.T) {
	ch := &fakeAMQPChannel{}
	d := newAMQPDelivererWithChannel(ch, zap.NewNop())

	err := d.Deliver(context.Background(), model.Notification{
		ID:             "n-1",
		Type:           model.NotifyOrderFilled,
		UserAddress:    "0xabc",
		Platform:       "sim",
		Message:        "Order o-1 is now FILLED",
		DeliveryMethod: model.DeliveryWebhook,
	})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	assert.Equal(t, TopicNotificationsDispatch, ch.keys[0])

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, string(model.NotifyOrderFilled), msg.Headers["notification_type"])
	assert.Equal(t, string(model.DeliveryWebhook), msg.Headers["delivery_method"])

	var sent model.Notification
	require.NoError(t, json.Unmarshal(msg.Body, &sent))
	assert.Equal(t, "n-1", sent.ID)
	assert.Equal(t, "0xabc", sent.UserAddress)
}

func TestAMQPDeliverer_PublishFailure(t *testing.T) {
	d := newAMQPDelivererWithChannel(&fakeAMQPChannel{fail: true}, zap.NewNop())

	err := d.Deliver(context.Background(), model.Notification{
		Type:           model.NotifyOrderFilled,
		UserAddress:    "0xabc",
		DeliveryMethod: model.DeliveryWebhook,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish")
}
