package queue

import (
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher mirrors webhook envelopes into a durable RabbitMQ queue. A nil
// Publisher is valid and publishes nothing, so callers never need to branch
// on whether the queue is configured.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	prefix  string
}

// Connect dials RabbitMQ and opens a channel. Returns nil, nil when url is
// empty (queue mirroring disabled).
func Connect(url, queueName, prefix string) (*Publisher, error) {
	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set, queue publishing disabled")
		return nil, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not open RabbitMQ channel: %w", err)
	}

	log.Info().
		Str("queue", queueName).
		Str("prefix", prefix).
		Msg("RabbitMQ connection established")

	return &Publisher{conn: conn, channel: channel, queue: queueName, prefix: prefix}, nil
}

// Publish sends a JSON body to the event queue. The queue is declared
// idempotently on every publish.
func (p *Publisher) Publish(eventType string, body []byte) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	queueName := p.prefix + "_" + p.queue

	_, err := p.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("could not declare queue %s: %w", queueName, err)
	}

	err = p.channel.Publish(
		"",        // default exchange
		queueName, // routing key = queue
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Type:        eventType,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("could not publish to queue %s: %w", queueName, err)
	}

	log.Debug().Str("queue", queueName).Str("eventType", eventType).Msg("Published event to RabbitMQ")
	return nil
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
