package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// attemptHeader counts deliveries of a message that failed to send.
const attemptHeader = "x-attempt"

// MaxAttempts bounds redelivery of a failing mail before it is dropped.
const MaxAttempts = 3

// MailHandler delivers one mail event.
type MailHandler interface {
    Deliver(ctx context.Context, to, subject, template string, data map[string]any) error
}

// Consumer reads MailEvents and hands them to a MailHandler.
type Consumer struct {
    url     string
    queue   string
    handler MailHandler
    log     *zap.Logger
}

func NewConsumer(url string, handler MailHandler, log *zap.Logger) *Consumer {
    return &Consumer{url: url, queue: MailQueueName, handler: handler, log: log}
}

// Run connects to RabbitMQ, declares the mail queue and consumes until ctx
// is cancelled.  Broker failures trigger a reconnect with exponential
// backoff capped at 30s; a failing message is republished with an
// incremented attempt count, then dropped after MaxAttempts.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if err := ctx.Err(); err != nil {
            return err
        }
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("mail-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
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
            return ctx.Err()
        }
        c.log.Warn("mail-consumer: consume loop ended; reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(10, 0, false); err != nil {
        c.log.Warn("mail-consumer: set QoS failed", zap.Error(err))
    }
    if err := declareMailQueue(ch, c.queue); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
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
            c.dispatch(ctx, ch, d)
        }
    }
}

func (c *Consumer) dispatch(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
    err := c.handle(ctx, d.Body)
    if err == nil {
        _ = d.Ack(false)
        return
    }

    attempt := attemptOf(d.Headers) + 1
    if errors.Is(err, errMalformed) || attempt >= MaxAttempts {
        c.log.Error("mail-consumer: dropping message",
            zap.String("message_id", d.MessageId), zap.Int("attempt", attempt), zap.Error(err))
        _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
        return
    }

    c.log.Warn("mail-consumer: delivery failed; retrying",
        zap.String("message_id", d.MessageId), zap.Int("attempt", attempt), zap.Error(err))
    retry := amqp.Publishing{
        ContentType:  d.ContentType,
        DeliveryMode: amqp.Persistent,
        MessageId:    d.MessageId,
        Timestamp:    time.Now().UTC(),
        Headers:      amqp.Table{attemptHeader: int32(attempt)},
        Body:         d.Body,
    }
    if err := ch.PublishWithContext(ctx, "", c.queue, false, false, retry); err != nil {
        c.log.Error("mail-consumer: republish failed", zap.Error(err))
        _ = d.Nack(false, true)
        return
    }
    _ = d.Ack(false)
}

var errMalformed = errors.New("malformed mail event")

func (c *Consumer) handle(ctx context.Context, body []byte) error {
    var ev MailEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("%w: %v", errMalformed, err)
    }
    if ev.To == "" || ev.Template == "" {
        return fmt.Errorf("%w: missing recipient or template", errMalformed)
    }
    return c.handler.Deliver(ctx, ev.To, ev.Subject, ev.Template, ev.Data)
}

// attemptOf reads the attempt header; brokers may hand integers back in
// any width.
func attemptOf(h amqp.Table) int {
    switch v := h[attemptHeader].(type) {
    case int32:
        return int(v)
    case int64:
        return int(v)
    case int:
        return v
    case int16:
        return int(v)
    case int8:
        return int(v)
    }
    return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
