package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sluice/internal/logging"
	"sluice/internal/metrics"
	"sluice/internal/transform"
	"sluice/sink"
	"sluice/source"
)

// State is the engine lifecycle position.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

var (
	// ErrAlreadyRunning signals a Start against a non-stopped engine.
	ErrAlreadyRunning = errors.New("processor: already running")
	// ErrNotRunning signals a Stop against a non-running engine.
	ErrNotRunning = errors.New("processor: not running")
)

// Config is fixed at construction; reconfiguring requires stop/start.
type Config struct {
	Topic            string
	TopicPartitions  int
	TopicReplication int
	DeadLetterTopic  string // "" = drop poison messages after counting

	BatchSize         int
	PollTimeout       time.Duration
	IdleInterval      time.Duration
	PublishRetryLimit int
	PublishTimeout    time.Duration
	PublishBackoff    time.Duration
	BackoffFactor     float64
	BackoffCap        time.Duration
	PoisonThreshold   int

	SampleInterval time.Duration
	Freshness      time.Duration
	ErrorDecay     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Topic == "" {
		c.Topic = "sqs-data"
	}
	if c.TopicPartitions <= 0 {
		c.TopicPartitions = 3
	}
	if c.TopicReplication <= 0 {
		c.TopicReplication = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 25 * time.Second
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 5 * time.Second
	}
	if c.PublishRetryLimit <= 0 {
		c.PublishRetryLimit = 3
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.PublishBackoff <= 0 {
		c.PublishBackoff = 500 * time.Millisecond
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 10 * time.Second
	}
	if c.PoisonThreshold <= 0 {
		c.PoisonThreshold = 5
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 10 * time.Second
	}
	if c.Freshness <= 0 {
		c.Freshness = 60 * time.Second
	}
	if c.ErrorDecay <= 0 {
		c.ErrorDecay = 60 * time.Second
	}
}

// Engine owns the poll→transform→publish→acknowledge loop. One loop goroutine
// at most; the state machine enforces the single-writer property over the
// adapter connections.
type Engine struct {
	cfg   Config
	src   source.Adapter
	snk   sink.Adapter
	xform transform.Func
	reg   *metrics.Registry

	mu        sync.Mutex // serializes transitions, guards fields below
	state     State
	startedAt time.Time
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(cfg Config, src source.Adapter, snk sink.Adapter, xform transform.Func, reg *metrics.Registry) *Engine {
	cfg.applyDefaults()
	if xform == nil {
		xform = transform.Envelope(transform.EnvelopeConfig{})
	}
	if reg == nil {
		reg = metrics.NewRegistry(0)
	}
	return &Engine{cfg: cfg, src: src, snk: snk, xform: xform, reg: reg}
}

// Status is the read-only lifecycle snapshot handed to the control plane.
type Status struct {
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	UptimeSec int64     `json:"uptime_seconds"`
	LastError string    `json:"last_error,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{State: e.state.String(), StartedAt: e.startedAt}
	if e.state == Running && !e.startedAt.IsZero() {
		st.UptimeSec = int64(time.Since(e.startedAt) / time.Second)
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

func (e *Engine) Metrics() metrics.Snapshot { return e.reg.Snapshot() }
func (e *Engine) FlushMetrics()             { e.reg.Flush() }

func (e *Engine) Health() metrics.Health {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	policy := metrics.HealthPolicy{Freshness: e.cfg.Freshness, ErrorDecay: e.cfg.ErrorDecay}
	return e.reg.Evaluate(policy, st.String(), st == Running)
}

// Start moves Stopped→Starting→Running and spawns the loop goroutine.
// Starting verifies the sink topic (and dead-letter topic, if any); an auth
// or config failure there aborts back to Stopped with the error recorded.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case Running, Starting:
		e.mu.Unlock()
		return ErrAlreadyRunning
	case Stopping:
		e.mu.Unlock()
		return fmt.Errorf("processor: stop in progress")
	}
	e.state = Starting
	e.mu.Unlock()

	if err := e.snk.EnsureTopic(ctx, e.cfg.Topic, e.cfg.TopicPartitions, e.cfg.TopicReplication, nil); err != nil {
		e.abortStart(err)
		return fmt.Errorf("processor: starting: %w", err)
	}
	if e.cfg.DeadLetterTopic != "" {
		if err := e.snk.EnsureTopic(ctx, e.cfg.DeadLetterTopic, e.cfg.TopicPartitions, e.cfg.TopicReplication, nil); err != nil {
			e.abortStart(err)
			return fmt.Errorf("processor: starting: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	e.state = Running
	e.startedAt = time.Now()
	e.lastErr = nil
	e.cancel, e.done = cancel, done
	e.mu.Unlock()

	go e.run(loopCtx, done)
	logging.L().Info("processor: started", "topic", e.cfg.Topic, "batch_size", e.cfg.BatchSize)
	return nil
}

func (e *Engine) abortStart(err error) {
	e.mu.Lock()
	e.state = Stopped
	e.lastErr = err
	e.mu.Unlock()
}

// Stop cancels the loop and waits for the in-flight batch to drain, bounded
// by the caller's context. The loop flips the state to Stopped as it exits.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.state = Stopping
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	logging.L().Info("processor: stopping")
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*──────── loop ───────*/

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer func() {
		e.mu.Lock()
		e.state = Stopped
		e.cancel, e.done = nil, nil
		e.mu.Unlock()
		close(done)
		logging.L().Info("processor: stopped")
	}()

	lastSample := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		pollCtx, cancel := context.WithTimeout(ctx, e.cfg.PollTimeout)
		batch, err := e.src.Poll(pollCtx, e.cfg.BatchSize)
		cancel()

		switch {
		case err == nil:
			e.reg.MarkPoll()
		case ctx.Err() != nil:
			return
		case errors.Is(err, context.DeadlineExceeded):
			// bounded wait elapsed; same as an empty batch
			e.reg.MarkPoll()
		default:
			e.reg.MarkSourceError()
			e.reg.IncProcessingErrors()
			e.setLastErr(err)
			var authErr *source.AuthError
			if errors.As(err, &authErr) {
				logging.L().Error("processor: source authorization failure, stopping", "err", err)
				return
			}
			logging.L().Warn("processor: poll failed", "err", err)
			if e.sleep(ctx, e.cfg.IdleInterval) != nil {
				return
			}
			continue
		}

		// retrieval order within the batch is preserved; a message that
		// exhausts its publish budget is skipped, not reordered
		for i := range batch {
			e.processMessage(ctx, batch[i])
		}

		if time.Since(lastSample) >= e.cfg.SampleInterval {
			e.reg.Sample()
			lastSample = time.Now()
		}

		if len(batch) == 0 {
			if e.sleep(ctx, e.cfg.IdleInterval) != nil {
				return
			}
		}
	}
}

func (e *Engine) processMessage(ctx context.Context, msg source.Message) {
	rec, err := e.xform(ctx, msg)
	if err != nil {
		e.reg.IncProcessingErrors()
		var fe *transform.FormatError
		if errors.As(err, &fe) && msg.ReceiveCount > e.cfg.PoisonThreshold {
			e.discardPoison(msg)
			return
		}
		e.setLastErr(err)
		logging.L().Warn("processor: message left for redelivery",
			"id", msg.ID, "receive_count", msg.ReceiveCount, "err", err)
		return
	}

	if !e.publishWithRetry(ctx, e.cfg.Topic, rec) {
		return // left unacknowledged; the source will redeliver
	}
	e.acknowledge(msg)
	e.reg.IncProcessed()
}

// publishWithRetry attempts up to PublishRetryLimit sends. Each attempt is
// allowed to complete even during Stopping; only the backoff sleeps between
// attempts observe cancellation.
func (e *Engine) publishWithRetry(ctx context.Context, topic string, rec sink.Record) bool {
	delay := e.cfg.PublishBackoff
	for attempt := 1; ; attempt++ {
		opCtx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
		_, err := e.snk.Publish(opCtx, topic, rec)
		cancel()
		if err == nil {
			return true
		}
		e.reg.IncSinkErrors()
		e.setLastErr(err)
		logging.L().Warn("processor: publish failed", "topic", topic, "attempt", attempt, "err", err)
		if attempt >= e.cfg.PublishRetryLimit {
			return false
		}
		if e.sleep(ctx, delay) != nil {
			return false
		}
		delay = time.Duration(float64(delay) * e.cfg.BackoffFactor)
		if delay > e.cfg.BackoffCap {
			delay = e.cfg.BackoffCap
		}
	}
}

// acknowledge consumes the ack token after a confirmed publish. Failures are
// counted and logged, never retried against the same token.
func (e *Engine) acknowledge(msg source.Message) {
	opCtx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
	defer cancel()
	if err := e.src.Acknowledge(opCtx, msg.AckToken); err != nil {
		e.reg.IncAckErrors()
		logging.L().Warn("processor: ack failed, message may be redelivered", "id", msg.ID, "err", err)
	}
}

// discardPoison handles a message whose receive count passed the threshold:
// dead-letter it when a topic is configured, otherwise drop it, and consume
// the ack token either way.
func (e *Engine) discardPoison(msg source.Message) {
	if e.cfg.DeadLetterTopic != "" {
		opCtx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
		_, err := e.snk.Publish(opCtx, e.cfg.DeadLetterTopic, sink.Record{Key: []byte(msg.ID), Value: msg.Body})
		cancel()
		if err != nil {
			e.reg.IncSinkErrors()
			logging.L().Warn("processor: dead-letter publish failed, message left for redelivery",
				"id", msg.ID, "err", err)
			return
		}
	}
	e.acknowledge(msg)
	e.reg.IncUnprocessable()
	logging.L().Warn("processor: unprocessable message removed",
		"id", msg.ID, "receive_count", msg.ReceiveCount, "dead_letter", e.cfg.DeadLetterTopic != "")
}

func (e *Engine) setLastErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
