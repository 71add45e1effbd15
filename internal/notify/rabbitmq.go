// Package notify announces published timetable updates on a RabbitMQ queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"

	"rozklad/internal/store"
	"rozklad/internal/update"
)

// EventType is the message_type header of update announcements.
const EventType = "rozklad.update"

// Event is the JSON body of an announcement.
type Event struct {
	Type      string           `json:"type"`
	Info      store.UpdateInfo `json:"info"`
	Sessions  int              `json:"sessions"`
	Skipped   int              `json:"skipped"`
	Archived  string           `json:"archived,omitempty"`
	Published time.Time        `json:"published"`
}

// publisher is the part of *amqp091.Channel used here.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// RabbitMQ publishes one persistent message per update to a durable queue.
type RabbitMQ struct {
	conn    *amqp091.Connection
	channel publisher
	queue   string

	now func() time.Time
}

// NewRabbitMQ dials url and declares queue.
func NewRabbitMQ(url, queue string) (*RabbitMQ, error) {
	if queue == "" {
		return nil, errors.New("notify: queue is empty")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare queue %q: %w", queue, err)
	}
	return &RabbitMQ{conn: conn, channel: ch, queue: queue, now: time.Now}, nil
}

// Notify implements update.Notifier.
func (r *RabbitMQ) Notify(ctx context.Context, out update.Outcome) error {
	msg, err := message(out, r.now())
	if err != nil {
		return err
	}
	if err := r.channel.PublishWithContext(ctx, "", r.queue, false, false, msg); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (r *RabbitMQ) Close() error {
	err := r.channel.Close()
	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}
	return err
}

func message(out update.Outcome, now time.Time) (amqp091.Publishing, error) {
	body, err := json.Marshal(Event{
		Type:      EventType,
		Info:      out.Info,
		Sessions:  out.Sessions,
		Skipped:   out.Skipped,
		Archived:  out.Archived,
		Published: now.UTC(),
	})
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("notify: encode: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    now,
		MessageId:    out.Info.SHA256,
		Headers: amqp091.Table{
			"message_type": EventType,
			"update_date":  out.Info.Date,
		},
	}, nil
}
