// Package stream broadcasts case lifecycle events to in-process
// subscribers, backing the server-sent events endpoint.
package stream

import (
	"context"
	"sync"
	"time"
)

// CaseEvent describes one observable change to a case.
type CaseEvent struct {
	CaseID    string    `json:"case_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	RiskLevel string    `json:"risk_level,omitempty"`
	RiskScore *int      `json:"risk_score,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 16

// Stream fan-outs events to subscribers. A subscriber that cannot keep
// up loses events rather than blocking publishers.
type Stream struct {
	mu   sync.Mutex
	subs map[chan CaseEvent]struct{}
}

// New returns an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[chan CaseEvent]struct{})}
}

// Subscribe registers a subscriber bound to ctx. The returned channel is
// closed when ctx is done.
func (s *Stream) Subscribe(ctx context.Context) <-chan CaseEvent {
	ch := make(chan CaseEvent, defaultBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Publish delivers the event to every current subscriber. Full
// subscriber buffers drop the event.
func (s *Stream) Publish(ev CaseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
