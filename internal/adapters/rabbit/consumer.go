package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// BookingLifecycleQueue carries the booking collaborator's lifecycle
// transitions (cancelled, rejected, expired) into the engine.
const BookingLifecycleQueue = "avail.booking-lifecycle.q"

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

func NewConsumer(conn *amqp.Connection, queue string, bindingKeys []string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	for _, key := range bindingKeys {
		if err := ch.QueueBind(queue, key, Exchange, false, nil); err != nil {
			return nil, err
		}
	}
	return &Consumer{ch: ch, queue: queue}, nil
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(c.queue, "", false, false, false, false, nil)
}
