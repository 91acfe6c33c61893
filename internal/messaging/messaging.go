// Package messaging provides abstractions for message broker communication.
// Services publish report events and answer generation requests through these
// interfaces without depending on a specific broker.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a message broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Reply is an optional subject for request/reply patterns.
	Reply string

	// Metadata contains optional message headers.
	Metadata map[string]string

	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a fire-and-forget message.
	Publish(ctx context.Context, subject string, data []byte) error

	// Request sends a message and waits up to timeout for a response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)

	Close() error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)

	// QueueSubscribe load-balances messages across subscribers in the same
	// queue group.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)

	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain gracefully closes the connection, letting in-flight messages finish.
	Drain() error

	IsConnected() bool
}
