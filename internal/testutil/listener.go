package testutil

import (
	"fmt"
	"sync"
)

// RecordingListener records progress and completion calls in order.
type RecordingListener struct {
	mu        sync.Mutex
	calls     []string
	progress  []float64
	completes int
}

func (l *RecordingListener) Progress(percent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf("progress %g", percent))
	l.progress = append(l.progress, percent)
}

func (l *RecordingListener) Complete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "complete")
	l.completes++
}

// Calls returns every callback in delivery order.
func (l *RecordingListener) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// ProgressValues returns the delivered percentages in order.
func (l *RecordingListener) ProgressValues() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]float64, len(l.progress))
	copy(out, l.progress)
	return out
}

// Completes returns how many times Complete was called.
func (l *RecordingListener) Completes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completes
}
