package bake

import "sync"

// EventKind distinguishes mailbox events.
type EventKind int

const (
	// EventProgress carries a progress percentage.
	EventProgress EventKind = iota + 1
	// EventComplete is posted once, after the shared engine has resumed.
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is a message from the worker to the caller's context.
type Event struct {
	Kind    EventKind
	Percent float64

	// Result is set on progress events that follow a task.
	// It is nil on the initial 0% event and on completion.
	Result *TaskResult
}

// mailbox is an unbounded FIFO from the worker to the caller.
//
// Posting never blocks, so a slow caller cannot stall the worker while the
// shared engine is paused. The buffered signal channel lets the caller wait
// with select alongside its own context.
type mailbox struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

func newMailbox() *mailbox {
	return &mailbox{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Post adds an event to the back of the mailbox.
// Returns false if the mailbox is closed.
func (m *mailbox) Post(e Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.events = append(m.events, e)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case m.signal <- struct{}{}:
	default:
	}

	return true
}

// TryTake removes the front event without blocking.
func (m *mailbox) TryTake() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) == 0 {
		return Event{}, false
	}

	e := m.events[0]
	m.events[0] = Event{} // release Result for GC

	if len(m.events) == 1 {
		m.events = m.events[:0]
	} else {
		m.events = m.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed once the mailbox is closed.
func (m *mailbox) Wait() <-chan struct{} {
	return m.signal
}

// Len returns the number of undelivered events.
func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Close signals that no more events will be posted.
func (m *mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	close(m.signal)
}
