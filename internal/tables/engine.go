// Package tables provides the shared engines that own destination arrays.
//
// Engine keeps named float arrays in process; it is what the CLI bakes into
// when no remote engine is configured. Remote drives an out-of-process Pure
// Data instance over FUDI and cannot report array sizes.
package tables

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// ErrNoSuchArray is returned for an array that was never declared.
var ErrNoSuchArray = errors.New("no such array")

var (
	_ audio.SharedEngine = (*Engine)(nil)
	_ audio.SharedEngine = (*Remote)(nil)
)

// Engine is an in-process shared engine holding named arrays.
//
// Thread-safety: all methods are safe for concurrent use. Readers such as a
// playback device may Read while a batch writes.
type Engine struct {
	mu     sync.RWMutex
	arrays map[string][]float32
	paused bool

	onPause func(paused bool)
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPauseHook registers a function called after every pause state change.
// The hook runs on the caller's goroutine, outside the engine lock.
func WithPauseHook(fn func(paused bool)) Option {
	return func(e *Engine) {
		e.onPause = fn
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine with no arrays.
func New(opts ...Option) *Engine {
	e := &Engine{
		arrays: make(map[string][]float32),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Declare creates (or resizes and clears) an array of size frames.
func (e *Engine) Declare(name string, size int) {
	if size < 0 {
		size = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.arrays[name] = make([]float32, size)
}

// Read returns a copy of the named array.
func (e *Engine) Read(name string) ([]float32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.arrays[name]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(a))
	copy(out, a)
	return out, true
}

// Names returns the declared array names in sorted order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.arrays))
	for name := range e.arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pause stops audio processing. Pausing twice is a no-op.
func (e *Engine) Pause() error {
	e.setPaused(true)
	return nil
}

// Resume restarts audio processing.
func (e *Engine) Resume() error {
	e.setPaused(false)
	return nil
}

// Paused reports whether processing is paused.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

func (e *Engine) setPaused(paused bool) {
	e.mu.Lock()
	changed := e.paused != paused
	e.paused = paused
	hook := e.onPause
	e.mu.Unlock()

	if !changed {
		return
	}
	e.logger.Debug("shared engine pause state changed", "paused", paused)
	if hook != nil {
		hook(paused)
	}
}

// ArraySize returns the capacity of the named array.
func (e *Engine) ArraySize(name string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.arrays[name]
	if !ok {
		return 0, fmt.Errorf("array %q: %w", name, ErrNoSuchArray)
	}
	return len(a), nil
}

// WriteArray copies buf[bufOffset:bufOffset+length] into the named array at
// offset. Writes past the end grow the array.
func (e *Engine) WriteArray(name string, offset int, buf []float32, bufOffset, length int) error {
	if err := checkWrite(offset, buf, bufOffset, length); err != nil {
		return fmt.Errorf("write array %q: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.arrays[name]
	if !ok {
		return fmt.Errorf("write array %q: %w", name, ErrNoSuchArray)
	}
	if end := offset + length; end > len(a) {
		grown := make([]float32, end)
		copy(grown, a)
		a = grown
		e.arrays[name] = a
	}
	copy(a[offset:offset+length], buf[bufOffset:bufOffset+length])
	return nil
}

func checkWrite(offset int, buf []float32, bufOffset, length int) error {
	if offset < 0 || bufOffset < 0 || length < 0 {
		return fmt.Errorf("negative range (offset=%d, buf offset=%d, length=%d)", offset, bufOffset, length)
	}
	if bufOffset+length > len(buf) {
		return fmt.Errorf("source range %d+%d exceeds buffer of %d", bufOffset, length, len(buf))
	}
	return nil
}
