// Package rabbitmq publishes product lifecycle events and consumes low-stock alerts.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"inventory/pkg/events"

	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	// DefaultExchange is the topic exchange product events are published to.
	DefaultExchange = "inventory.products"
	// DefaultLowStockQueue receives every product.low_stock event.
	DefaultLowStockQueue = "inventory.low_stock"
)

// ErrClosed is returned when the client has no usable channel.
var ErrClosed = errors.New("rabbitmq channel is not available")

// channel is the subset of *amqp.Channel the client uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	queue    string
	log      *zap.Logger
	// mu serialises channel use; an amqp channel is not safe for concurrent publishing.
	mu sync.Mutex
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
	// Exchange defaults to DefaultExchange.
	Exchange string
	// LowStockQueue defaults to DefaultLowStockQueue.
	LowStockQueue string
}

func (cfg Config) withDefaults() Config {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.LowStockQueue == "" {
		cfg.LowStockQueue = DefaultLowStockQueue
	}
	return cfg
}

// NewClient connects to RabbitMQ and declares the product exchange and the low-stock queue.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c, err := newClient(ch, cfg, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func newClient(ch channel, cfg Config, log *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	if _, err := ch.QueueDeclare(
		cfg.LowStockQueue, // name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.LowStockQueue, err)
	}

	if err := ch.QueueBind(cfg.LowStockQueue, events.ProductLowStock, cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue %s: %w", cfg.LowStockQueue, err)
	}

	log.Info("rabbitmq client ready",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", cfg.LowStockQueue),
	)
	return &Client{
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    cfg.LowStockQueue,
		log:      log,
	}, nil
}

// Close closes the RabbitMQ channel and connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		c.conn = nil
	}
	return errors.Join(errs...)
}

// PublishProductEvent publishes event as persistent JSON, routed by its type.
func (c *Client) PublishProductEvent(ctx context.Context, event events.ProductEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal product event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return ErrClosed
	}

	err = c.channel.Publish(
		c.exchange, // exchange
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         event.Type,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	c.log.Debug("product event published",
		zap.String("event", event.Type),
		zap.String("product_id", event.ProductID),
	)
	return nil
}

// ConsumeLowStockAlerts delivers every low-stock event to handler until the channel closes.
// A delivery is acked when handler succeeds, nacked with requeue when it fails, and rejected
// without requeue when its body cannot be decoded.
func (c *Client) ConsumeLowStockAlerts(handler func(events.ProductEvent) error) error {
	c.mu.Lock()
	if c.channel == nil {
		c.mu.Unlock()
		return ErrClosed
	}
	msgs, err := c.channel.Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("waiting for low-stock alerts", zap.String("queue", c.queue))
	go func() {
		for msg := range msgs {
			c.handleDelivery(msg, handler)
		}
	}()
	return nil
}

func (c *Client) handleDelivery(msg amqp.Delivery, handler func(events.ProductEvent) error) {
	var event events.ProductEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.log.Error("discarding undecodable message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(err))
		if rejectErr := msg.Reject(false); rejectErr != nil {
			c.log.Error("failed to reject message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(rejectErr))
		}
		return
	}

	if err := handler(event); err != nil {
		c.log.Warn("failed to process low-stock alert", zap.String("product_id", event.ProductID), zap.Error(err))
		if nackErr := msg.Nack(false, true); nackErr != nil {
			c.log.Error("failed to nack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(nackErr))
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.log.Error("failed to ack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(ackErr))
	}
}
