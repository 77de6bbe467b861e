package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"CareVault/config"
	"CareVault/model"
)

const RoutingAudit = "audit"

// Topology names the exchanges and queues of the audit pipeline.
type Topology struct {
	Exchange    string
	Queue       string
	DLQExchange string
	DLQ         string
}

func TopologyFromConfig(cfg config.AuditConfig) Topology {
	return Topology{
		Exchange:    cfg.Exchange,
		Queue:       cfg.Queue,
		DLQExchange: cfg.Exchange + ".dlq",
		DLQ:         cfg.Queue + ".dlq",
	}
}

// Channel is the subset of *amqp.Channel the client uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Client struct {
	Conn      *amqp.Connection
	Channel   Channel
	topology  Topology
	publishMu sync.Mutex
}

func Dial(url string, topology Topology) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch, topology: topology}, nil
}

// NewClient wraps an already open channel.
func NewClient(ch Channel, topology Topology) *Client {
	return &Client{Channel: ch, topology: topology}
}

func (c *Client) Topology() Topology {
	return c.topology
}

// AMQPChannel returns the underlying channel when the client was dialed.
func (c *Client) AMQPChannel() (*amqp.Channel, bool) {
	ch, ok := c.Channel.(*amqp.Channel)
	return ch, ok
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// DeclareTopology declares the audit exchange and queue, dead-lettering
// rejected messages into a parking queue.
func (c *Client) DeclareTopology() error {
	t := c.topology
	for _, exchange := range []string{t.Exchange, t.DLQExchange} {
		if err := c.Channel.ExchangeDeclare(
			exchange,
			"direct",
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}
	if _, err := c.Channel.QueueDeclare(
		t.Queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    t.DLQExchange,
			"x-dead-letter-routing-key": RoutingAudit,
		},
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if _, err := c.Channel.QueueDeclare(
		t.DLQ,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DLQ, err)
	}
	if err := c.Channel.QueueBind(t.Queue, RoutingAudit, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", t.Queue, err)
	}
	if err := c.Channel.QueueBind(t.DLQ, RoutingAudit, t.DLQExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", t.DLQ, err)
	}
	return nil
}

// Publish sends one audit event as a persistent JSON message.
func (c *Client) Publish(ctx context.Context, event model.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.Channel.PublishWithContext(
		ctx,
		c.topology.Exchange,
		RoutingAudit,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         string(event.Action),
			Timestamp:    time.Now(),
		},
	)
}
