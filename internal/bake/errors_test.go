package bake

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsageError_Messages(t *testing.T) {
	submit := &UsageError{Op: "submit", State: StateRunning}
	assert.Contains(t, submit.Error(), "before baking starts")
	assert.Contains(t, submit.Error(), "running")

	start := &UsageError{Op: "start", State: StateCompleted}
	assert.Contains(t, start.Error(), "only be called once")
}

func TestUsageError_Wrapped(t *testing.T) {
	err := fmt.Errorf("bake sfx: %w", &UsageError{Op: "start", State: StateRunning})
	assert.True(t, IsUsageError(err))
	assert.ErrorIs(t, err, ErrIllegalUse)
	assert.False(t, IsUsageError(errors.New("other")))
}

func TestTaskError_Classification(t *testing.T) {
	open := fmt.Errorf("wrapped: %w", &TaskError{Code: CodeOpenFailed, Array: "a", Err: errors.New("missing")})
	assert.True(t, IsOpenError(open))
	assert.False(t, IsRenderError(open))
	assert.Contains(t, open.Error(), `OPEN_FAILED: array "a": missing`)

	render := &TaskError{Code: CodeRenderFailed, Array: "b"}
	assert.True(t, IsRenderError(render))
	assert.Equal(t, `RENDER_FAILED: array "b"`, render.Error())

	unavailable := &TaskError{Code: CodeArrayUnavailable, Array: "c"}
	assert.True(t, IsArrayUnavailable(unavailable))
}

func TestTaskResult_String(t *testing.T) {
	r := TaskResult{
		Array:           "kick",
		SampleRate:      44100,
		RequestedFrames: 110250,
		RenderedFrames:  110208,
		Reconcile:       ReconcileZeroFill,
		Status:          StatusRendered,
	}
	assert.Equal(t, "rendered kick: 110208/110250 frames @44100Hz (zero_fill)", r.String())
	assert.Equal(t, 42, r.DroppedFrames())
}

func TestTask_RequestedFrames(t *testing.T) {
	assert.Equal(t, 110250, NewTask("p", "a", 44100, 2.5).RequestedFrames())
	assert.Equal(t, 0, NewTask("p", "a", 44100, 0).RequestedFrames())
	assert.Equal(t, 22050, NewTask("p", "a", 44100, 0.5).RequestedFrames())
}
