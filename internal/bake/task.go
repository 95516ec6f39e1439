package bake

import (
	"fmt"
	"math"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// Task is one render request.
//
// All fields are set by the caller before Submit and never change afterward.
// The rendered samples are written exactly once by the worker.
type Task struct {
	// Patch is the source patch to render.
	Patch audio.PatchRef

	// Array is the destination array name.
	Array string

	// SampleRate is the offline render rate in Hz.
	SampleRate int

	// Duration is the requested length in seconds.
	Duration float64

	samples  []float32
	rendered bool
}

// MaxFrames bounds the frames a single task may request.
const MaxFrames = math.MaxInt32

// NewTask creates a pending task.
func NewTask(patch audio.PatchRef, array string, sampleRate int, duration float64) *Task {
	return &Task{
		Patch:      patch,
		Array:      array,
		SampleRate: sampleRate,
		Duration:   duration,
	}
}

// Samples returns the rendered samples, or nil while the task is pending.
// Only safe to call after the batch has completed.
func (t *Task) Samples() []float32 {
	return t.samples
}

// Rendered reports whether the worker has produced samples for this task.
func (t *Task) Rendered() bool {
	return t.rendered
}

// RequestedFrames is floor(Duration * SampleRate).
func (t *Task) RequestedFrames() int {
	return int(math.Floor(t.Duration * float64(t.SampleRate)))
}

func (t *Task) validate() error {
	if t == nil {
		return invalidTaskf("nil task")
	}
	if t.Patch == "" {
		return invalidTaskf("array %q: patch is required", t.Array)
	}
	if t.Array == "" {
		return invalidTaskf("patch %q: destination array is required", t.Patch)
	}
	if t.SampleRate <= 0 {
		return invalidTaskf("array %q: sample rate must be positive, got %d", t.Array, t.SampleRate)
	}
	if t.Duration < 0 || math.IsNaN(t.Duration) || math.IsInf(t.Duration, 0) {
		return invalidTaskf("array %q: duration must be a non-negative number, got %v", t.Array, t.Duration)
	}
	if frames := t.Duration * float64(t.SampleRate); frames > MaxFrames {
		return invalidTaskf("array %q: %gs at %dHz is %.0f frames, limit is %d", t.Array, t.Duration, t.SampleRate, frames, MaxFrames)
	}
	return nil
}

// TaskStatus summarizes how a task ended.
type TaskStatus string

const (
	// StatusRendered means the task rendered cleanly and was registered.
	StatusRendered TaskStatus = "rendered"

	// StatusDegraded means the task was registered despite a render error
	// or a rejected write.
	StatusDegraded TaskStatus = "degraded"

	// StatusFailed means the task was skipped and not registered.
	StatusFailed TaskStatus = "failed"
)

// ReconcileAction records what the capacity check did before the write.
type ReconcileAction string

const (
	// ReconcileNone means the rendered length matched the capacity.
	ReconcileNone ReconcileAction = "none"

	// ReconcileZeroFill means the tail beyond the rendered length was cleared.
	ReconcileZeroFill ReconcileAction = "zero_fill"

	// ReconcileOverflow means the rendered buffer exceeds the capacity and was
	// written in full anyway.
	ReconcileOverflow ReconcileAction = "overflow"

	// ReconcileUnchecked means the capacity could not be queried (remote mode).
	ReconcileUnchecked ReconcileAction = "unchecked"
)

// UnknownCapacity is reported when the destination capacity was not queried.
const UnknownCapacity = -1

// TaskResult is the outcome of one task, posted with its progress event and
// written to the journal.
type TaskResult struct {
	RunID      string
	Seq        int64
	Array      string
	Patch      audio.PatchRef
	SampleRate int
	Duration   float64

	RequestedFrames int
	Blocks          int
	RenderedFrames  int
	RenderCode      int

	Capacity  int
	Reconcile ReconcileAction

	Status TaskStatus
	Err    error
}

// DroppedFrames is the number of trailing frames below one full block.
func (r TaskResult) DroppedFrames() int {
	return r.RequestedFrames - r.RenderedFrames
}

// String returns a single-line summary suitable for logs and CLI output.
func (r TaskResult) String() string {
	s := fmt.Sprintf("%s %s: %d/%d frames @%dHz (%s)",
		r.Status, r.Array, r.RenderedFrames, r.RequestedFrames, r.SampleRate, r.Reconcile)
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}
