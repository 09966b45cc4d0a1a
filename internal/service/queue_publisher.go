package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/allure/event-admin/internal/queue"
)

// Publisher hands saved events to whatever mirrors them downstream.
type Publisher interface {
	PublishEventSaved(ctx context.Context, ev queue.EventSaved) error
}

// NopPublisher drops every message.  It is used when the spreadsheet sync
// is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishEventSaved(context.Context, queue.EventSaved) error { return nil }

// AMQPPublisher publishes EventSaved messages to the "event.saved" queue.
// Each call dials its own connection; writes are rare enough that a pooled
// channel is not worth the reconnect bookkeeping.
type AMQPPublisher struct {
	URL    string
	Logger *log.Logger
}

// PublishEventSaved never panics; any error is logged and returned so the
// caller can choose to ignore it.  Messages are marked as persistent.
func (p *AMQPPublisher) PublishEventSaved(ctx context.Context, ev queue.EventSaved) error {
	conn, err := amqp.DialConfig(p.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		p.Logger.Warnf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Logger.Warnf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue.EventSavedQueue, // name
		true,                  // durable
		false,                 // autoDelete
		false,                 // exclusive
		false,                 // noWait
		nil,                   // args
	); err != nil {
		p.Logger.Warnf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.Logger.Warnf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                    // default exchange
		queue.EventSavedQueue, // routing key = queue name
		false,                 // mandatory
		false,                 // immediate
		pub,
	); err != nil {
		p.Logger.Warnf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
