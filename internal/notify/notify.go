// Package notify publishes fetch progress events to interested listeners,
// such as a notebook dashboard connected over socket.io.
package notify

import (
	"context"
	"sync"
)

// Event names emitted during a fetch run.
const (
	RunStarted   = "run_started"
	RunFinished  = "run_finished"
	StepStarted  = "step_started"
	StepFinished = "step_finished"
	StepCached   = "step_cached"
	StepDisabled = "step_disabled"
	StepFailed   = "step_failed"
)

// Notifier receives progress events. Implementations must be safe for
// concurrent use and must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, string, map[string]any) {}
func (Nop) Close() error                                  { return nil }

// Recorded is a single event captured by a Recorder.
type Recorded struct {
	Event   string
	Payload map[string]any
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func (r *Recorder) Notify(_ context.Context, event string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Payload: payload})
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names, optionally filtered to those whose
// payload "step" equals stepID.
func (r *Recorder) Names(stepID string) []string {
	var names []string
	for _, e := range r.Events() {
		if stepID != "" && e.Payload["step"] != stepID {
			continue
		}
		names = append(names, e.Event)
	}
	return names
}
