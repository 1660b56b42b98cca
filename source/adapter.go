package source

import (
	"context"
	"fmt"
	"time"
)

// Message is one unit of work pulled from a queue. The engine never inspects
// Body beyond its transform hook; AckToken is the only handle it hands back.
type Message struct {
	ID           string
	Body         []byte
	AckToken     string
	ReceiveCount int
	EnqueuedAt   time.Time
	ReceivedAt   time.Time
	Attributes   map[string]string
}

// Adapter is the common behaviour every queue source exposes.
type Adapter interface {
	Configure(any) error // driver-specific YAML ⇒ struct

	// Poll returns 0..max messages. It blocks at most the driver's
	// configured wait time; an empty batch on timeout is not an error.
	Poll(ctx context.Context, max int) ([]Message, error)

	// Acknowledge removes a delivered message from the queue. Re-acking a
	// handle that was already consumed succeeds; an expired or unknown
	// handle fails with *AckError.
	Acknowledge(ctx context.Context, ackToken string) error

	// Send enqueues a raw body and returns the assigned message ID. Used by
	// the producer-simulation path only, never by the engine loop.
	Send(ctx context.Context, body []byte) (string, error)

	Close() error // idempotent
}

/*──────── registry ───────*/

// Factory builds an Adapter (e.g., SQSDriver, MemoryDriver, …).
type Factory func() Adapter

var registry = map[string]Factory{}

// Register is called from each driver’s init() or main() factory map.
func Register(name string, f Factory) {
	registry[name] = f
}

// NewAdapter returns a driver by name (“sqs”, “memory”, …).
func NewAdapter(name string) (Adapter, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unsupported driver %q", name)
}
