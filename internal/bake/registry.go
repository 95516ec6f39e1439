package bake

import (
	"sort"
	"sync"
)

// Registry maps destination array names to the most recently baked task.
// A later task for the same array replaces the earlier entry.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func newRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

func (r *Registry) put(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.Array] = t
}

// Get returns the task last baked into the named array.
func (r *Registry) Get(array string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[array]
	return t, ok
}

// Len returns the number of baked arrays.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Names returns the baked array names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
