// Package messaging provides abstractions for message broker communication.
// It defines interfaces that allow services to exchange messages
// without being coupled to a specific broker implementation.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a message broker.
type Message struct {
	// Subject is the topic/channel the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Reply is an optional subject for request/reply patterns.
	// When set, the receiver publishes its response to this subject.
	Reply string

	// Metadata contains optional key-value pairs for message headers.
	Metadata map[string]string

	// Timestamp is when the message was received.
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	// Unsubscribe stops receiving messages on this subscription.
	Unsubscribe() error

	// Subject returns the subject this subscription is listening to.
	Subject() string

	// IsValid returns true if the subscription is still active.
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a message to the specified subject (fire-and-forget).
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message with full control over headers and reply subject.
	PublishMsg(ctx context.Context, msg *Message) error
}

// Requester performs synchronous request/reply exchanges.
type Requester interface {
	// RequestMsg sends msg and waits for a single reply.
	// The wait is bounded by the context deadline.
	RequestMsg(ctx context.Context, msg *Message) (*Message, error)
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// QueueSubscribe creates a queue subscription.
	// Messages are load-balanced across subscribers in the same queue group.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
}

// Client combines the broker capabilities used by the service.
type Client interface {
	Publisher
	Requester
	Subscriber

	// Drain gracefully closes the connection, allowing in-flight messages to complete.
	Drain() error

	// IsConnected returns true if the client is connected to the broker.
	IsConnected() bool

	// Close releases any resources and unsubscribes all active subscriptions.
	Close() error
}
