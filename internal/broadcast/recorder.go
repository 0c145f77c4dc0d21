package broadcast

import (
	"context"
	"slices"
	"sync"
)

// Sent is one delivery captured by Recorder.
type Sent struct {
	Channels []string
	Event    string
	Payload  any
}

// Recorder is a Driver that keeps deliveries in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) Send(_ context.Context, channels []string, event string, payload any) error {
	r.mu.Lock()
	r.sent = append(r.sent, Sent{Channels: slices.Clone(channels), Event: event, Payload: payload})
	r.mu.Unlock()
	return nil
}

// All returns every captured delivery.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

// Events returns the captured event names in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Event
	}
	return out
}

// Reset drops captured deliveries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
