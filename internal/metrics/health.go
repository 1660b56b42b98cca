package metrics

import "time"

// HealthPolicy holds the windows the composite health is judged against.
type HealthPolicy struct {
	Freshness  time.Duration // newest successful poll must be at most this old
	ErrorDecay time.Duration // newest source/sink error must be at least this old
}

// Health is the composite the control plane reports. The Registry only holds
// raw facts; this is computed on every read.
type Health struct {
	Healthy  bool      `json:"healthy"`
	State    string    `json:"state"`
	Reasons  []string  `json:"reasons,omitempty"`
	LastPoll time.Time `json:"last_poll"`
}

// Evaluate computes healthy = running AND fresh poll AND decayed errors.
func (r *Registry) Evaluate(p HealthPolicy, state string, running bool) Health {
	r.mu.Lock()
	lastPoll := r.lastPoll
	lastSourceErr := r.lastSourceErr
	lastSinkErr := r.lastSinkErr
	now := r.now()
	r.mu.Unlock()

	h := Health{State: state, LastPoll: lastPoll}
	if !running {
		h.Reasons = append(h.Reasons, "processor not running")
	}
	if p.Freshness > 0 {
		if lastPoll.IsZero() || now.Sub(lastPoll) > p.Freshness {
			h.Reasons = append(h.Reasons, "no successful poll within freshness window")
		}
	}
	if p.ErrorDecay > 0 {
		if !lastSourceErr.IsZero() && now.Sub(lastSourceErr) < p.ErrorDecay {
			h.Reasons = append(h.Reasons, "recent source error")
		}
		if !lastSinkErr.IsZero() && now.Sub(lastSinkErr) < p.ErrorDecay {
			h.Reasons = append(h.Reasons, "recent sink error")
		}
	}
	h.Healthy = len(h.Reasons) == 0
	return h
}
