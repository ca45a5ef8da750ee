package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	domoutbox "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
)

const (
	defaultExchange = "commerce.events"
	publishTimeout  = 5 * time.Second
)

// Publisher mirrors saga events onto a RabbitMQ topic exchange for external
// consumers. Envelope: JSON body, routing key = event name. It is wired next
// to the in-memory bus via Fanout; the in-process saga never depends on it.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      observability.Logger
}

func NewPublisher(url, exchange string, logger observability.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = defaultExchange
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		log:      logger.With(observability.F("component", "amqp_publisher")),
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("amqp: marshal %s: %w", e.EventName(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, e.EventName(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish %s: %w", e.EventName(), err)
	}
	p.log.Debug("event_mirrored", observability.F("event", e.EventName()))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Fanout publishes each event to every target in order. The first target's
// error is returned; later targets still run so a broker hiccup never hides
// an event from the in-process subscribers.
type Fanout []domoutbox.Publisher

func (f Fanout) Publish(ctx context.Context, e domoutbox.Event) error {
	var first error
	for _, pub := range f {
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
