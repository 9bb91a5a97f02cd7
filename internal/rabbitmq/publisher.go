package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"alumni-service/internal/observability"
	"alumni-service/internal/telemetry"
)

// ErrConnectionLost is returned by Publish once the broker connection has closed.
var ErrConnectionLost = errors.New("rabbitmq connection lost")

// Publisher publishes audit and group domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Options configures the broker connection.
type Options struct {
	URL      string
	Exchange string
	// AppID is stamped on every message so consumers can tell producers apart.
	AppID string
}

// NewPublisher dials the broker and declares a durable topic exchange. Any
// failure along the way, or an empty URL, yields a logging noop publisher so
// the service keeps serving without a broker.
func NewPublisher(opts Options) Publisher {
	if opts.URL == "" {
		return disabled("empty amqp url")
	}

	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return disabled(err.Error())
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return disabled(err.Error())
	}

	if err := ch.ExchangeDeclare(opts.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return disabled(err.Error())
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: opts.Exchange, appID: opts.AppID}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	log.Printf("rabbitmq connected exchange=%s", opts.Exchange)
	return p
}

func disabled(reason string) noopPublisher {
	log.Printf("rabbitmq disabled, using noop: %s", reason)
	return noopPublisher{reason: reason}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	appID    string

	mu     sync.RWMutex
	closed error
}

// watch records an unexpected connection close; Publish then fails fast.
func (p *amqpPublisher) watch(closes <-chan *amqp.Error) {
	amqpErr, ok := <-closes
	if !ok || amqpErr == nil {
		return
	}
	log.Printf("rabbitmq connection closed code=%d reason=%s", amqpErr.Code, amqpErr.Reason)
	p.mu.Lock()
	p.closed = ErrConnectionLost
	p.mu.Unlock()
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed != nil {
		return closed
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        p.appID,
		Timestamp:    time.Now().UTC(),
		Type:         eventType(event),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s: %v", routingKey, err)
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	if p.closed == nil {
		p.closed = amqp.ErrClosed
	}
	p.mu.Unlock()

	_ = p.ch.Close()
	return p.conn.Close()
}

// eventType names the envelope so consumers can route without decoding the body.
func eventType(event any) string {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope.EventType
	case observability.EventEnvelope:
		return envelope.EventType + "." + envelope.EventName
	default:
		return ""
	}
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		log.Printf("rabbitmq noop publish routing_key=%s event_type=%s request_id=%s text=%q", routingKey, envelope.EventType, envelope.RequestID, envelope.Payload.Text)
	case observability.EventEnvelope:
		log.Printf("rabbitmq noop publish routing_key=%s event=%s", routingKey, eventType(envelope))
	default:
		log.Printf("rabbitmq noop publish routing_key=%s", routingKey)
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports "amqp", "noop" or "unknown" for start-up logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason reports why the noop publisher was chosen.
func PublisherNoopReason(p Publisher) string {
	if noop, ok := p.(noopPublisher); ok {
		return noop.reason
	}
	return ""
}
