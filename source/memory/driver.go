package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sluice/source"
)

// Config mirrors the queue knobs that matter for simulation.
type Config struct {
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	WaitTime          time.Duration `yaml:"wait_time"` // Poll block bound
}

// MemoryDriver simulates an SQS-style queue in process: uuid message IDs,
// per-delivery receipt handles, visibility timeout with redelivery, and
// receive-count tracking. Used by the producer-simulation path and tests.
type MemoryDriver struct {
	cfg Config

	mu       sync.Mutex
	order    []*entry
	byHandle map[string]*entry
	consumed map[string]struct{} // handles whose message was already deleted
}

type entry struct {
	id             string
	body           []byte
	enqueuedAt     time.Time
	receiveCount   int
	handle         string // current receipt handle, rotated per delivery
	invisibleUntil time.Time
}

const pollTick = 20 * time.Millisecond

func (d *MemoryDriver) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("memory-source: want Config, got %T", raw)
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.WaitTime < 0 {
		cfg.WaitTime = 0
	}
	d.cfg = cfg
	d.order = nil
	d.byHandle = make(map[string]*entry)
	d.consumed = make(map[string]struct{})
	return nil
}

func (d *MemoryDriver) Poll(ctx context.Context, max int) ([]source.Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(d.cfg.WaitTime)
	for {
		if batch := d.take(max); len(batch) > 0 {
			return batch, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		t := time.NewTimer(pollTick)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (d *MemoryDriver) take(max int) []source.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var batch []source.Message
	for _, e := range d.order {
		if len(batch) >= max {
			break
		}
		if now.Before(e.invisibleUntil) {
			continue
		}
		// redelivery: the previous handle is dead
		if e.handle != "" {
			delete(d.byHandle, e.handle)
		}
		e.handle = uuid.NewString()
		e.receiveCount++
		e.invisibleUntil = now.Add(d.cfg.VisibilityTimeout)
		d.byHandle[e.handle] = e

		batch = append(batch, source.Message{
			ID:           e.id,
			Body:         append([]byte(nil), e.body...),
			AckToken:     e.handle,
			ReceiveCount: e.receiveCount,
			EnqueuedAt:   e.enqueuedAt,
			ReceivedAt:   now,
		})
	}
	return batch
}

func (d *MemoryDriver) Acknowledge(_ context.Context, ackToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, done := d.consumed[ackToken]; done {
		return nil // idempotent delete
	}
	e, ok := d.byHandle[ackToken]
	if !ok {
		return &source.AckError{Token: ackToken, Err: errors.New("unknown or expired receipt handle")}
	}
	delete(d.byHandle, ackToken)
	d.consumed[ackToken] = struct{}{}
	for i, cand := range d.order {
		if cand == e {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *MemoryDriver) Send(_ context.Context, body []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := &entry{
		id:         uuid.NewString(),
		body:       append([]byte(nil), body...),
		enqueuedAt: time.Now(),
	}
	d.order = append(d.order, e)
	return e.id, nil
}

func (d *MemoryDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.order = nil
	d.byHandle = map[string]*entry{}
	d.consumed = map[string]struct{}{}
	return nil
}

// Depth reports how many messages remain queued (visible or in flight).
func (d *MemoryDriver) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

func init() { source.Register("memory", func() source.Adapter { return &MemoryDriver{} }) }
