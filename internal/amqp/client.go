// Package amqp connects instances through RabbitMQ: a fanout exchange
// carries store change events between processes, and a durable queue feeds
// recorded expenses to the sheets exporter.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "hearth/internal/log"
	"hearth/internal/store"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	exportQueue  string
	instanceID   string
}

func NewClient(url, exchangeName, exportQueue, instanceID string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		exportQueue:  exportQueue,
		instanceID:   instanceID,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	// Change events fan out to every instance.
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Export jobs go to a shared durable queue; one exporter drains it.
	_, err = c.channel.QueueDeclare(
		c.exportQueue, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return fmt.Errorf("declare export queue: %w", err)
	}

	return nil
}

// PublishChange broadcasts one local store change to every other instance.
func (c *Client) PublishChange(ctx context.Context, ch store.Change) error {
	body, err := EncodeChange(ch, c.instanceID)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		ch.Collection,  // routing key (informational; fanout ignores it)
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// ConsumeChanges binds a private queue to the fanout exchange and feeds
// every decoded change to the handler. It blocks until ctx is done or the
// delivery channel closes.
func (c *Client) ConsumeChanges(ctx context.Context, handler func(store.Change)) error {
	q, err := c.channel.QueueDeclare(
		"",    // broker-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare change queue: %w", err)
	}
	if err := c.channel.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind change queue: %w", err)
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack (change events are best-effort; polling covers gaps)
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("start consuming changes: %w", err)
	}

	slog.InfoContext(ctx, "Consuming change events",
		"exchange", c.exchangeName, "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("change channel closed")
			}
			ch, err := DecodeChange(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to decode change event", applog.FieldError, err)
				continue
			}
			handler(ch)
		}
	}
}

// PublishExpenseExport queues one expense for the sheets exporter.
func (c *Client) PublishExpenseExport(ctx context.Context, msg *ExpenseExportMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal export message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		"",            // default exchange
		c.exportQueue, // routing key = queue
		false,         // mandatory
		false,         // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish export message: %w", err)
	}

	slog.InfoContext(ctx, "Queued expense export",
		applog.FieldExpenseID, msg.ExpenseID,
		"queue", c.exportQueue)
	return nil
}

// ConsumeExpenseExports drains the export queue with manual acks; a failed
// handler requeues the message.
func (c *Client) ConsumeExpenseExports(ctx context.Context, handler func(*ExpenseExportMessage) error) error {
	msgs, err := c.channel.Consume(
		c.exportQueue, // queue
		"",            // consumer
		false,         // auto-ack (we want manual ack)
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("start consuming exports: %w", err)
	}

	slog.InfoContext(ctx, "Consuming expense exports", "queue", c.exportQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping export consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("export channel closed")
			}

			msg, err := ExpenseExportMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal export message", applog.FieldError, err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle export message",
					applog.FieldError, err,
					applog.FieldExpenseID, msg.ExpenseID)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
