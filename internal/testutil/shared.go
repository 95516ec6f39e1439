package testutil

import (
	"fmt"
	"sync"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// FakeShared is an audio.SharedEngine holding arrays in memory.
//
// Writes past the end of an array grow it, so tests can observe an
// oversized write in full.
//
// Logged operations:
//
//	pause
//	resume
//	size <array>
//	write <array> <offset> <length>
type FakeShared struct {
	Log *OpLog

	// Remote makes ArraySize report audio.ErrArraySizeUnavailable.
	Remote bool
	// SizeErrors makes ArraySize fail for an array.
	SizeErrors map[string]error
	// WriteErrors makes WriteArray fail for an array.
	WriteErrors map[string]error

	mu      sync.Mutex
	arrays  map[string][]float32
	paused  bool
	pauses  int
	resumes int
}

// NewFakeShared creates an engine with no arrays.
func NewFakeShared(log *OpLog) *FakeShared {
	return &FakeShared{
		Log:         log,
		SizeErrors:  make(map[string]error),
		WriteErrors: make(map[string]error),
		arrays:      make(map[string][]float32),
	}
}

// Declare creates or replaces an array of the given size filled with fill.
func (s *FakeShared) Declare(name string, size int, fill float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	arr := make([]float32, size)
	for i := range arr {
		arr[i] = fill
	}
	s.arrays[name] = arr
}

// Array returns a copy of the named array.
func (s *FakeShared) Array(name string) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	arr, ok := s.arrays[name]
	if !ok {
		return nil
	}
	out := make([]float32, len(arr))
	copy(out, arr)
	return out
}

func (s *FakeShared) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log.Add("pause")
	s.paused = true
	s.pauses++
	return nil
}

func (s *FakeShared) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log.Add("resume")
	s.paused = false
	s.resumes++
	return nil
}

func (s *FakeShared) ArraySize(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Log.Add("size %s", name)
	if s.Remote {
		return 0, audio.ErrArraySizeUnavailable
	}
	if err := s.SizeErrors[name]; err != nil {
		return 0, err
	}
	arr, ok := s.arrays[name]
	if !ok {
		return 0, fmt.Errorf("array %q not found", name)
	}
	return len(arr), nil
}

func (s *FakeShared) WriteArray(name string, offset int, buf []float32, bufOffset, length int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Log.Add("write %s %d %d", name, offset, length)
	if err := s.WriteErrors[name]; err != nil {
		return err
	}

	arr := s.arrays[name]
	if end := offset + length; end > len(arr) {
		grown := make([]float32, end)
		copy(grown, arr)
		arr = grown
	}
	copy(arr[offset:offset+length], buf[bufOffset:bufOffset+length])
	s.arrays[name] = arr
	return nil
}

// Paused reports whether the engine is currently paused.
func (s *FakeShared) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Counts returns how many times Pause and Resume were called.
func (s *FakeShared) Counts() (pauses, resumes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses, s.resumes
}
