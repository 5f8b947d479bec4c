package workflow

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange   = "ex.transcripts"
	DefaultRoutingKey = "k.process-transcript"
)

// Publisher is the part of *amqp.Channel the forwarder uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder publishes the transcript as a persistent message instead of
// calling the processor synchronously. The body is identical to the HTTP POST.
type AMQPForwarder struct {
	mu         sync.Mutex
	ch         Publisher
	exchange   string
	routingKey string
}

func NewAMQPForwarder(ch Publisher, exchange, routingKey string) *AMQPForwarder {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	return &AMQPForwarder{ch: ch, exchange: exchange, routingKey: routingKey}
}

func (f *AMQPForwarder) Forward(ctx context.Context, req ForwardRequest) error {
	body, err := req.Body()
	if err != nil {
		return fmt.Errorf("workflow: encode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	err = f.ch.PublishWithContext(ctx,
		f.exchange,
		f.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    req.IdempotencyKey(),
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: publish: %v", ErrForwardFailed, err)
	}
	return nil
}

// AMQPConn is an open broker connection with a channel and the transcript
// exchange declared.
type AMQPConn struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func DialAMQP(url, exchange string) (*AMQPConn, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPConn{Conn: conn, Ch: ch}, nil
}

func (c *AMQPConn) Close() error {
	if c == nil || c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}
