// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer pair that moves them.
package queue

// MailQueueName is the durable queue carrying outbound mail.
const MailQueueName = "mail.outbound"

// MailEvent asks the notification consumer to render Template with Data
// and send the result to To.  It carries everything needed to build the
// message so the consumer never queries the primary stores.
type MailEvent struct {
    ID       string         `json:"id"`
    To       string         `json:"to"`
    Subject  string         `json:"subject"`
    Template string         `json:"template"`
    Data     map[string]any `json:"data"`
}
