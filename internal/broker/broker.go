// Package broker connects to RabbitMQ. It fans realtime events out to the
// whataybo.events topic exchange and carries WhatsApp notification jobs on
// the whataybo.notifications queue.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/whataybo/api/internal/realtime"
	"github.com/whataybo/api/internal/whatsapp"
)

const (
	EventsExchange     = "whataybo.events"
	NotificationsQueue = "whataybo.notifications"

	publishTimeout = 5 * time.Second
)

type Broker struct {
	conn *amqp.Connection

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
	ch *amqp.Channel
}

func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		NotificationsQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &Broker{conn: conn, ch: ch}, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil && !b.ch.IsClosed() {
		if err := b.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if b.conn != nil && !b.conn.IsClosed() {
		if err := b.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// Publish sends ev to the events exchange with the event type as routing key
// and the room in the "room" header. It implements realtime.Publisher, so
// failures are logged rather than returned.
func (b *Broker) Publish(room string, ev realtime.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("WARN: broker marshal %s: %v", ev.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Headers:     amqp.Table{"room": room},
		Body:        body,
	}
	if err := b.publish(ctx, EventsExchange, ev.Type, msg); err != nil {
		log.Printf("WARN: broker publish %s to %s: %v", ev.Type, room, err)
	}
}

// PublishJob queues a notification job. It implements whatsapp.JobPublisher.
func (b *Broker) PublishJob(ctx context.Context, job whatsapp.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         string(job.Kind),
		Body:         body,
	}
	if err := b.publish(ctx, "", NotificationsQueue, msg); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

func (b *Broker) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// JobHandler delivers one job. A returned error drops the message, unless
// the consumer is shutting down, in which case it is requeued.
type JobHandler func(ctx context.Context, job whatsapp.Job) error

// jobTimeout bounds a single delivery. Handlers run on a context detached
// from the consumer's so a shutdown lets in-flight jobs finish.
const jobTimeout = 30 * time.Second

// ConsumeJobs delivers notification jobs with at most limit in flight. It
// returns when ctx is cancelled or the delivery channel closes, after every
// running handler has finished.
func (b *Broker) ConsumeJobs(ctx context.Context, limit int, handle JobHandler) error {
	b.mu.Lock()
	err := b.ch.Qos(limit, 0, false)
	var deliveries <-chan amqp.Delivery
	if err == nil {
		deliveries, err = b.ch.ConsumeWithContext(ctx, NotificationsQueue, "", false, false, false, false, nil)
	}
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", NotificationsQueue, err)
	}
	return process(ctx, deliveries, limit, handle)
}

func process(ctx context.Context, deliveries <-chan amqp.Delivery, limit int, handle JobHandler) error {
	var g errgroup.Group
	g.SetLimit(limit)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-deliveries:
			if !ok {
				break loop
			}
			g.Go(func() error {
				handleDelivery(ctx, d, handle)
				return nil
			})
		}
	}
	return g.Wait()
}

func handleDelivery(ctx context.Context, d amqp.Delivery, handle JobHandler) {
	var job whatsapp.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("ERROR: decode notification job: %v", err)
		if err := d.Nack(false, false); err != nil {
			log.Printf("ERROR: nack: %v", err)
		}
		return
	}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	defer cancel()
	if err := handle(jobCtx, job); err != nil {
		requeue := ctx.Err() != nil
		log.Printf("ERROR: deliver %s job (requeue=%v): %v", job.Kind, requeue, err)
		if err := d.Nack(false, requeue); err != nil {
			log.Printf("ERROR: nack: %v", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Printf("ERROR: ack: %v", err)
	}
}
