package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"inventory/pkg/events"

	amqp "github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []string
	queues     []string
	bindings   []string
	published  []published
	publishErr error
	deliveries chan amqp.Delivery
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.exchanges = append(f.exchanges, name+":"+kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.queues = append(f.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bindings = append(f.bindings, exchange+"->"+name+"@"+key)
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeAck struct {
	acked, nacked, rejected bool
	requeue                 bool
	done                    chan struct{}
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.acked = true
	close(a.done)
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	close(a.done)
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	a.rejected, a.requeue = true, requeue
	close(a.done)
	return nil
}

func TestNewClientDeclaresTopology(t *testing.T) {
	ch := &fakeChannel{}
	_, err := newClient(ch, Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultExchange + ":topic"}, ch.exchanges)
	assert.Equal(t, []string{DefaultLowStockQueue}, ch.queues)
	assert.Equal(t, []string{DefaultExchange + "->" + DefaultLowStockQueue + "@" + events.ProductLowStock}, ch.bindings)
}

func TestPublishProductEvent(t *testing.T) {
	ch := &fakeChannel{}
	client, err := newClient(ch, Config{Exchange: "test.products"}, nil)
	require.NoError(t, err)

	event := events.ProductEvent{Type: events.ProductCreated, ProductID: "p1", SKU: "SKU-1"}
	require.NoError(t, client.PublishProductEvent(context.Background(), event))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "test.products", got.exchange)
	assert.Equal(t, events.ProductCreated, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var decoded events.ProductEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "p1", decoded.ProductID)
}

func TestPublishProductEventErrors(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel/connection is not open")}
	client, err := newClient(ch, Config{}, nil)
	require.NoError(t, err)

	err = client.PublishProductEvent(context.Background(), events.ProductEvent{Type: events.ProductDeleted})
	assert.ErrorContains(t, err, "failed to publish product.deleted")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.PublishProductEvent(ctx, events.ProductEvent{}), context.Canceled)

	require.NoError(t, client.Close())
	assert.True(t, ch.closed)
	assert.ErrorIs(t, client.PublishProductEvent(context.Background(), events.ProductEvent{}), ErrClosed)
	assert.ErrorIs(t, client.ConsumeLowStockAlerts(func(events.ProductEvent) error { return nil }), ErrClosed)
}

func TestConsumeLowStockAlerts(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 3)}
	client, err := newClient(ch, Config{}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	require.NoError(t, client.ConsumeLowStockAlerts(func(e events.ProductEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.ProductID)
		if e.ProductID == "fail" {
			return errors.New("handler failed")
		}
		return nil
	}))

	deliver := func(body string) *fakeAck {
		ack := &fakeAck{done: make(chan struct{})}
		ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte(body)}
		<-ack.done
		return ack
	}

	ok := deliver(`{"type":"product.low_stock","productId":"p1"}`)
	assert.True(t, ok.acked)

	failed := deliver(`{"type":"product.low_stock","productId":"fail"}`)
	assert.True(t, failed.nacked)
	assert.True(t, failed.requeue)

	garbage := deliver(`not json`)
	assert.True(t, garbage.rejected)
	assert.False(t, garbage.requeue)

	close(ch.deliveries)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p1", "fail"}, seen)
}
