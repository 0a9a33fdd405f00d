package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const exchangeKind = "topic"

// amqpChannel is the part of *amqp.Channel the relay uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPRelay forwards bus events to a topic exchange, routing key = event type.
type AMQPRelay struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	timeout  time.Duration
	logger   *zerolog.Logger
}

func NewAMQPRelay(url, exchange string, logger *zerolog.Logger) (*AMQPRelay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	return &AMQPRelay{conn: conn, channel: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}, nil
}

func newAMQPRelayWithChannel(ch amqpChannel, exchange string, logger *zerolog.Logger) *AMQPRelay {
	return &AMQPRelay{channel: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}
}

// Handle publishes one event; subscribe it with bus.Subscribe(AllEvents, relay.Handle).
func (r *AMQPRelay) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.channel.PublishWithContext(ctx, r.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Body:         event.Payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	r.logger.Debug().Str("exchange", r.exchange).Str("routing_key", event.Type).Msg("Event relayed")
	return nil
}

func (r *AMQPRelay) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
