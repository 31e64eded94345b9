// Package events announces committed reports on a message queue so
// downstream consumers (dashboards, notifiers) can react without polling the
// registry. Publishing is best-effort from the pipeline's point of view; a
// broker outage never fails a run.
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ReportEvent is the queue payload for one committed report.
type ReportEvent struct {
	ReportID   string    `json:"report_id"`
	ChatID     string    `json:"chat_id"`
	Action     string    `json:"action"` // created | updated
	OccurredAt time.Time `json:"occurred_at"`
}

// AMQPPublisher publishes report events to a durable queue on the default
// exchange.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher dials the broker and declares the durable queue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// ReportCommitted publishes one event with a bounded timeout.
func (p *AMQPPublisher) ReportCommitted(ctx context.Context, reportID, chatID, action string) error {
	body, err := json.Marshal(ReportEvent{
		ReportID:   reportID,
		ChatID:     chatID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
