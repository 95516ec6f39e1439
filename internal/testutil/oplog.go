package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// OpLog records engine operations in call order.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type OpLog struct {
	mu  sync.Mutex
	ops []string
}

// NewOpLog creates an empty log.
func NewOpLog() *OpLog {
	return &OpLog{}
}

// Add appends a formatted operation.
func (l *OpLog) Add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, fmt.Sprintf(format, args...))
}

// Ops returns a copy of the recorded operations.
func (l *OpLog) Ops() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ops))
	copy(out, l.ops)
	return out
}

// WithPrefix returns the recorded operations whose verb matches prefix.
func (l *OpLog) WithPrefix(prefix string) []string {
	var out []string
	for _, op := range l.Ops() {
		if strings.HasPrefix(op, prefix) {
			out = append(out, op)
		}
	}
	return out
}

// Index returns the position of the first operation equal to op, or -1.
func (l *OpLog) Index(op string) int {
	for i, o := range l.Ops() {
		if o == op {
			return i
		}
	}
	return -1
}

// LastIndex returns the position of the last operation equal to op, or -1.
func (l *OpLog) LastIndex(op string) int {
	ops := l.Ops()
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i] == op {
			return i
		}
	}
	return -1
}
