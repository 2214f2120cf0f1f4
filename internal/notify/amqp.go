package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/pkg/model"
)

const (
	// TopicNotificationsDispatch carries outbound webhook/email notifications
	// for the downstream delivery workers.
	TopicNotificationsDispatch = "outbound.notifications.dispatch"
)

// amqpChannel is the slice of *amqp.Channel the deliverer uses; kept as an
// interface so tests can substitute a fake.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPDeliverer publishes notifications to RabbitMQ for out-of-process
// delivery (webhook fan-out, email gateway).
type AMQPDeliverer struct {
	conn    *amqp.Connection
	channel amqpChannel
	logger  *zap.Logger
}

// NewAMQPDeliverer connects to RabbitMQ and opens a publishing channel.
func NewAMQPDeliverer(url string, logger *zap.Logger) (*AMQPDeliverer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &AMQPDeliverer{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

// newAMQPDelivererWithChannel wires an existing channel; used by tests.
func newAMQPDelivererWithChannel(ch amqpChannel, logger *zap.Logger) *AMQPDeliverer {
	return &AMQPDeliverer{channel: ch, logger: logger}
}

// Deliver publishes the notification to the dispatch topic.
func (d *AMQPDeliverer) Deliver(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = d.channel.PublishWithContext(ctx,
		"",                         // default exchange
		TopicNotificationsDispatch, // routing key
		false,                      // mandatory
		false,                      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Headers: amqp.Table{
				"notification_type": string(n.Type),
				"delivery_method":   string(n.DeliveryMethod),
				"platform":          n.Platform,
			},
		})
	if err != nil {
		d.logger.Error("amqp.publish_failed",
			zap.String("topic", TopicNotificationsDispatch),
			zap.String("user", n.UserAddress),
			zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	d.logger.Debug("amqp.notification_published",
		zap.String("topic", TopicNotificationsDispatch),
		zap.String("type", string(n.Type)),
		zap.String("user", n.UserAddress))

	return nil
}

// Close releases the channel and connection.
func (d *AMQPDeliverer) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
