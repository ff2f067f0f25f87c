package service

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/kiosk-seat-engine/internal/queue"
)

// AuditPublisher forwards seat audit events to the seat.audit queue.
// Record only enqueues; Run owns the broker connection and reconnects when
// it drops.  Events that arrive while the buffer is full are dropped and
// logged, never blocking a seat transition.
type AuditPublisher struct {
    url    string
    events chan queue.SeatAuditEvent
    log    *log.Logger
}

// NewAuditPublisher returns a publisher with room for buffer pending events.
func NewAuditPublisher(url string, buffer int, logger *log.Logger) *AuditPublisher {
    if buffer <= 0 {
        buffer = 256
    }
    if logger == nil {
        logger = log.New("audit")
    }
    return &AuditPublisher{url: url, events: make(chan queue.SeatAuditEvent, buffer), log: logger}
}

// Record implements AuditSink.
func (p *AuditPublisher) Record(ev queue.SeatAuditEvent) {
    select {
    case p.events <- ev:
    default:
        p.log.Warnf("rabbitmq: audit buffer full, dropping %s flight=%s seat=%s version=%d", ev.Action, ev.FlightID, ev.SeatID, ev.Version)
    }
}

// Pending reports how many events wait to be published.
func (p *AuditPublisher) Pending() int { return len(p.events) }

// Run publishes until ctx is cancelled.
func (p *AuditPublisher) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return nil
        }
        conn, err := amqp.Dial(p.url)
        if err != nil {
            p.log.Warnf("rabbitmq: dial failed: %v; retrying in %s", err, backoff)
            select {
            case <-ctx.Done():
                return nil
            case <-time.After(backoff):
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second
        err = p.publishLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        p.log.Warnf("rabbitmq: publisher loop ended: %v; reconnecting", err)
    }
}

func (p *AuditPublisher) publishLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        queue.AuditQueueName, // name
        true,                 // durable
        false,                // autoDelete
        false,                // exclusive
        false,                // noWait
        nil,                  // args
    ); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    closed := conn.NotifyClose(make(chan *amqp.Error, 1))
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case amqpErr := <-closed:
            return fmt.Errorf("connection closed: %v", amqpErr)
        case ev := <-p.events:
            pub, err := auditPublishing(ev)
            if err != nil {
                p.log.Errorf("rabbitmq: marshal audit event failed: %v", err)
                continue
            }
            if err := ch.PublishWithContext(ctx,
                "",                   // default exchange
                queue.AuditQueueName, // routing key = queue name
                false,                // mandatory
                false,                // immediate
                pub,
            ); err != nil {
                // Requeue locally once so a reconnect can deliver it.
                p.Record(ev)
                return fmt.Errorf("publish: %w", err)
            }
        }
    }
}

func auditPublishing(ev queue.SeatAuditEvent) (amqp.Publishing, error) {
    body, err := json.Marshal(ev)
    if err != nil {
        return amqp.Publishing{}, err
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    ev.At,
        Type:         ev.Action,
        Body:         body,
    }, nil
}
