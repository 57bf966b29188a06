package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// EventKind distinguishes section transitions from job outcomes.
type EventKind string

const (
	EventSection EventKind = "section"
	EventJob     EventKind = "job"
)

// Event is emitted whenever the controller changes a section or settles a job.
type Event struct {
	Kind      EventKind `json:"kind"`
	JobID     uuid.UUID `json:"jobId"`
	SubjectID string    `json:"subjectId"`
	Variant   string    `json:"variant"`
	SectionID int       `json:"sectionId,omitempty"`
	Name      string    `json:"name,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// Events fans events out to subscribers. Emit never blocks: a subscriber
// whose buffer is full misses the event.
type Events struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEvents returns an Events with no subscribers.
func NewEvents() *Events {
	return &Events{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel and a function that unsubscribes and closes it.
func (e *Events) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if sub, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(sub)
			}
		})
	}
}

// Emit delivers ev to every subscriber that has room.
func (e *Events) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Later Emits are no-ops.
func (e *Events) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// FormatEvent renders an event as a human-readable status line.
func FormatEvent(ev Event) string {
	if ev.Kind == EventJob {
		line := fmt.Sprintf("[%s] %s", JobKey(ev.SubjectID, ev.Variant), ev.Status)
		if ev.Message != "" {
			line += ": " + ev.Message
		}
		return line
	}

	switch ev.Status {
	case "pending":
		return fmt.Sprintf("  ○ %s (pending)", ev.Name)
	case "generating":
		return fmt.Sprintf("  ● %s...", ev.Name)
	case "completed":
		return fmt.Sprintf("  ✓ %s complete", ev.Name)
	case "failed":
		return fmt.Sprintf("  ✗ %s failed: %s", ev.Name, ev.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", ev.Name)
	}
}
