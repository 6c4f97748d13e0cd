package events

import (
	"sync"

	"premarket/core/types"
)

// Event represents a structured state change emitted by the engines.
type Event interface {
	EventType() string
}

// Typed is implemented by events that render their payload as a generic
// attribute record for external consumers.
type Typed interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder is an Emitter that retains the events it receives for tests and
// for the in-process RPC event log. With a positive Limit it keeps only the
// most recent events; the zero value retains everything.
type Recorder struct {
	Limit int

	mu     sync.Mutex
	Events []Event
}

// NewRecorder creates a recorder keeping at most limit events.
func NewRecorder(limit int) *Recorder {
	return &Recorder{Limit: limit}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, evt)
	if r.Limit > 0 && len(r.Events) > r.Limit {
		r.Events = append(r.Events[:0], r.Events[len(r.Events)-r.Limit:]...)
	}
}

// Snapshot returns a copy of the retained events in emission order.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.Events))
	copy(out, r.Events)
	return out
}
