package queue

import (
    "context"
    "encoding/json"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends MailEvents to RabbitMQ.  Each publish opens its own
// connection; publishes happen at most once or twice per request and a
// broker outage must not leave a broken shared channel behind.
type Publisher struct {
    url   string
    queue string
    log   *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
    return &Publisher{url: url, queue: MailQueueName, log: log}
}

// PublishMail publishes ev as a persistent JSON message.  An empty ev.ID is
// filled with a fresh UUID.  Errors are logged and returned so the caller
// decides whether they matter.
func (p *Publisher) PublishMail(ctx context.Context, ev MailEvent) error {
    if ev.ID == "" {
        ev.ID = uuid.NewString()
    }
    body, err := json.Marshal(ev)
    if err != nil {
        p.log.Error("rabbitmq: marshal event failed", zap.Error(err))
        return err
    }
    if err := p.publish(ctx, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    ev.ID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }); err != nil {
        p.log.Error("rabbitmq: publish failed", zap.String("template", ev.Template), zap.Error(err))
        return err
    }
    return nil
}

func (p *Publisher) publish(ctx context.Context, msg amqp.Publishing) error {
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return err
    }
    defer func() { _ = ch.Close() }()

    // Idempotent; durable so messages survive broker restarts.
    if err := declareMailQueue(ch, p.queue); err != nil {
        return err
    }
    return ch.PublishWithContext(ctx,
        "",      // default exchange
        p.queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        msg,
    )
}

func declareMailQueue(ch *amqp.Channel, name string) error {
    _, err := ch.QueueDeclare(
        name,  // name
        true,  // durable
        false, // autoDelete
        false, // exclusive
        false, // noWait
        nil,   // args
    )
    return err
}
