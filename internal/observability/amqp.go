package observability

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher pushes service events onto the audit exchange.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
	Close() error
}

// NewPublisher connects to RabbitMQ or degrades to a noop publisher when
// the broker is unavailable or AMQP is disabled.
func NewPublisher(url, exchange string, log zerolog.Logger) Publisher {
	if url == "" {
		log.Info().Msg("amqp disabled, using noop publisher")
		return noopPublisher{}
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		log.Warn().Err(err).Msg("amqp unavailable, using noop publisher")
		return noopPublisher{}
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		log.Warn().Err(err).Msg("amqp channel failed, using noop publisher")
		return noopPublisher{}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		log.Warn().Err(err).Msg("amqp exchange declare failed, using noop publisher")
		return noopPublisher{}
	}

	log.Info().Str("exchange", exchange).Msg("amqp connected")
	return &amqpPublisher{conn: conn, channel: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqpHeaders,
	})
}

func (p *amqpPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) PublishJSON(context.Context, string, interface{}, map[string]string) error {
	return nil
}

func (noopPublisher) Close() error { return nil }

var defaultPublisher Publisher

// SetPublisher installs the process-wide event publisher.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent publishes through the installed publisher; publish failures
// are counted, never propagated to request handling.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
