package sink

import (
	"context"
	"fmt"
)

// Record is one message bound for the sink topic.
type Record struct {
	Key     []byte
	Value   []byte
	Headers map[string][]byte
}

// Receipt reports where the broker durably placed a record.
type Receipt struct {
	Partition int32
	Offset    int64
}

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error // driver-specific YAML ⇒ struct

	// EnsureTopic is an idempotent create-if-absent. Invalid parameters
	// fail synchronously with *ConfigError.
	EnsureTopic(ctx context.Context, name string, partitions, replication int, configs map[string]string) error

	// Publish blocks until the broker confirms durability at the configured
	// ack level, or fails with *PublishError once the driver's own retry
	// budget is exhausted.
	Publish(ctx context.Context, topic string, rec Record) (Receipt, error)

	Close() error // idempotent
}

// PublishError reports a record the driver could not durably deliver.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("sink: publish to %q: %v", e.Topic, e.Err)
}
func (e *PublishError) Unwrap() error { return e.Err }

// ConfigError reports invalid topic-management parameters.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "sink: " + e.Reason }

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
