package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrChannelClosed = errors.New("rabbitmq delivery channel closed")

// AMQPChannel is the subset of *amqp.Channel used by the queue.
type AMQPChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
}

// RabbitMQ consumes a durable queue with manual acknowledgement. Unacknowledged
// deliveries stay with this consumer, so there is no visibility timeout to extend.
type RabbitMQ struct {
	ch         AMQPChannel
	deliveries <-chan amqp.Delivery
}

func NewRabbitMQ(ch AMQPChannel, queue string) (*RabbitMQ, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return &RabbitMQ{ch: ch, deliveries: deliveries}, nil
}

func (q *RabbitMQ) Poll(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var msgs []Message
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case d, ok := <-q.deliveries:
		if !ok {
			return nil, ErrChannelClosed
		}
		msgs = append(msgs, toMessage(d))
	}
	for len(msgs) < max {
		select {
		case d, ok := <-q.deliveries:
			if !ok {
				return msgs, nil
			}
			msgs = append(msgs, toMessage(d))
		default:
			return msgs, nil
		}
	}
	return msgs, nil
}

func (q *RabbitMQ) Delete(_ context.Context, msg Message) error {
	tag, err := deliveryTag(msg)
	if err != nil {
		return err
	}
	return q.ch.Ack(tag, false)
}

func (q *RabbitMQ) Release(_ context.Context, msg Message) error {
	tag, err := deliveryTag(msg)
	if err != nil {
		return err
	}
	return q.ch.Nack(tag, false, true)
}

func (q *RabbitMQ) ExtendVisibility(context.Context, Message, time.Duration) error {
	return nil
}

func toMessage(d amqp.Delivery) Message {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}
	return Message{
		ID:            id,
		ReceiptHandle: strconv.FormatUint(d.DeliveryTag, 10),
		Body:          d.Body,
	}
}

func deliveryTag(msg Message) (uint64, error) {
	tag, err := strconv.ParseUint(msg.ReceiptHandle, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delivery tag %q: %w", msg.ReceiptHandle, err)
	}
	return tag, nil
}
