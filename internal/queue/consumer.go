package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer listens to the seat.audit queue and appends one line per
// transition to <Dir>/seat_audit.log.
type AuditConsumer struct {
    URL    string
    Dir    string
    Logger *log.Logger
}

// NewAuditConsumer returns a consumer writing into dir (default "logs").
func NewAuditConsumer(url, dir string, logger *log.Logger) *AuditConsumer {
    if dir == "" {
        dir = "logs"
    }
    if logger == nil {
        logger = log.New("audit-consumer")
    }
    return &AuditConsumer{URL: url, Dir: dir, Logger: logger}
}

// Run connects to RabbitMQ, declares the queue and consumes until ctx is
// cancelled.  Broker failures are retried with a capped exponential
// backoff, so the server keeps operating while the broker is down.
func (c *AuditConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return nil
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Logger.Warnf("audit-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleepCtx(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.Logger.Warnf("audit-consumer: consume loop ended: %v; reconnecting", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return nil
        }
    }
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Logger.Warnf("audit-consumer: set QoS failed: %v", err)
    }
    if _, err := ch.QueueDeclare(AuditQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(AuditQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.HandleMessage(d.Body); err != nil {
                c.Logger.Errorf("audit-consumer: handle message failed: %v", err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// HandleMessage decodes one audit event and appends it to the log file.
func (c *AuditConsumer) HandleMessage(body []byte) error {
    var ev SeatAuditEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.FlightID == "" || ev.SeatID == "" {
        return errors.New("audit event without flight or seat")
    }
    if err := os.MkdirAll(c.Dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.Dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.Dir, "seat_audit.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatAuditLine renders an event as a single human-friendly log line.
func FormatAuditLine(ev SeatAuditEvent) string {
    session, booking := ev.SessionID, ev.BookingID
    if session == "" {
        session = "-"
    }
    if booking == "" {
        booking = "-"
    }
    return fmt.Sprintf("[%s] %s | flight=%s | seat=%s | %s -> %s | session=%s | booking=%s | version=%d\n",
        ev.At.UTC().Format(time.RFC3339), ev.Action, ev.FlightID, ev.SeatID,
        ev.OldStatus, ev.NewStatus, session, booking, ev.Version)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
