// Package events publishes settlement domain events for downstream consumers such as the
// notification fan-out. Delivery is best effort; publishing never affects settlement state.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypePaymentFinalized = "payment.finalized"
	TypePaymentReverted  = "payment.reverted"
	TypePaymentDisputed  = "payment.disputed"
	TypePayoutPaid       = "payout.paid"
	TypePayoutFailed     = "payout.failed"
)

// Event is the JSON envelope written to the exchange. Type doubles as the routing key.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	JobID      *uuid.UUID     `json:"job_id,omitempty"`
	Reference  string         `json:"reference,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// New builds an event with a fresh id and timestamp.
func New(eventType string, jobID *uuid.UUID, reference string, data map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		JobID:      jobID,
		Reference:  reference,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events to the outside world.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
