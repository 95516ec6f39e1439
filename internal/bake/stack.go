package bake

import "sync"

// Order selects which pending task the worker takes next.
type Order int

const (
	// OrderLIFO renders the most recently submitted task first.
	OrderLIFO Order = iota

	// OrderFIFO renders tasks in submission order.
	OrderFIFO
)

func (o Order) String() string {
	switch o {
	case OrderLIFO:
		return "lifo"
	case OrderFIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseOrder converts "lifo" or "fifo" to an Order. The empty string is LIFO.
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "", "lifo":
		return OrderLIFO, true
	case "fifo":
		return OrderFIFO, true
	default:
		return OrderLIFO, false
	}
}

// taskStack holds pending tasks.
//
// The caller pushes before Start and the worker pops after it. The two
// windows never overlap because Submit is rejected once the scheduler is
// running; the mutex keeps Len() safe for observers in between.
type taskStack struct {
	mu    sync.Mutex
	tasks []*Task
	order Order
}

func newTaskStack(order Order) *taskStack {
	return &taskStack{
		tasks: make([]*Task, 0, 16),
		order: order,
	}
}

// Push appends a task.
func (s *taskStack) Push(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

// Pop removes the next task according to the configured order.
// Returns (nil, false) if empty.
func (s *taskStack) Pop() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.tasks)
	if n == 0 {
		return nil, false
	}

	var t *Task
	if s.order == OrderFIFO {
		t = s.tasks[0]
		s.tasks[0] = nil
		s.tasks = s.tasks[1:]
	} else {
		t = s.tasks[n-1]
		s.tasks[n-1] = nil
		s.tasks = s.tasks[:n-1]
	}

	if len(s.tasks) == 0 {
		s.tasks = s.tasks[:0:0]
	}
	return t, true
}

// Len returns the number of pending tasks.
func (s *taskStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
