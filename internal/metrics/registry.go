package metrics

import (
	"sync"
	"time"

	"sluice/internal/telemetry"
)

// Counters are monotonic until an explicit Flush.
type Counters struct {
	Processed        uint64 `json:"messages_processed"`
	ProcessingErrors uint64 `json:"processing_errors"`
	SinkErrors       uint64 `json:"sink_errors"`
	AckErrors        uint64 `json:"ack_errors"`
	Unprocessable    uint64 `json:"unprocessable"`
}

// Sample is one point of the rolling trend window.
type Sample struct {
	At       time.Time `json:"at"`
	Counters Counters  `json:"counters"`
}

// Snapshot is the read-only view handed to the control plane.
type Snapshot struct {
	Counters      Counters  `json:"counters"`
	History       []Sample  `json:"recent_history"`
	LastPoll      time.Time `json:"last_poll"`
	LastProcessed time.Time `json:"last_processed"`
}

const DefaultHistoryCap = 120

// Registry is a pure data sink: counters, raw health facts, and a fixed-size
// ring of periodic samples (oldest evicted first). All composite judgement
// happens at read time, in health.go.
type Registry struct {
	mu  sync.Mutex
	now func() time.Time

	c Counters

	ring       []Sample
	head, size int

	lastPoll      time.Time
	lastProcessed time.Time
	lastSourceErr time.Time
	lastSinkErr   time.Time
}

func NewRegistry(historyCap int) *Registry {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Registry{
		now:  time.Now,
		ring: make([]Sample, historyCap),
	}
}

/*──────── counter updates (mirrored to Prometheus) ───────*/

func (r *Registry) IncProcessed() {
	r.mu.Lock()
	r.c.Processed++
	r.lastProcessed = r.now()
	r.mu.Unlock()
	telemetry.MessagesProcessed.Inc()
}

func (r *Registry) IncProcessingErrors() {
	r.mu.Lock()
	r.c.ProcessingErrors++
	r.mu.Unlock()
	telemetry.ProcessingErrors.Inc()
}

func (r *Registry) IncSinkErrors() {
	r.mu.Lock()
	r.c.SinkErrors++
	r.lastSinkErr = r.now()
	r.mu.Unlock()
	telemetry.SinkErrors.Inc()
}

func (r *Registry) IncAckErrors() {
	r.mu.Lock()
	r.c.AckErrors++
	r.mu.Unlock()
	telemetry.AckErrors.Inc()
}

func (r *Registry) IncUnprocessable() {
	r.mu.Lock()
	r.c.Unprocessable++
	r.mu.Unlock()
	telemetry.Unprocessable.Inc()
}

/*──────── raw health facts ───────*/

func (r *Registry) MarkPoll() {
	r.mu.Lock()
	r.lastPoll = r.now()
	r.mu.Unlock()
}

func (r *Registry) MarkSourceError() {
	r.mu.Lock()
	r.lastSourceErr = r.now()
	r.mu.Unlock()
}

/*──────── sampling & reads ───────*/

// Sample appends the current counters to the ring. Called at a fixed cadence
// decoupled from processing rate, so memory stays bounded.
func (r *Registry) Sample() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.head] = Sample{At: r.now(), Counters: r.c}
	r.head = (r.head + 1) % len(r.ring)
	if r.size < len(r.ring) {
		r.size++
	}
}

// Snapshot copies everything out; history is ordered oldest→newest.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	hist := make([]Sample, 0, r.size)
	start := r.head - r.size
	if start < 0 {
		start += len(r.ring)
	}
	for i := 0; i < r.size; i++ {
		hist = append(hist, r.ring[(start+i)%len(r.ring)])
	}
	return Snapshot{
		Counters:      r.c,
		History:       hist,
		LastPoll:      r.lastPoll,
		LastProcessed: r.lastProcessed,
	}
}

// Flush resets counters and history. Control-plane action only, never on the
// data path.
func (r *Registry) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c = Counters{}
	r.head, r.size = 0, 0
}
