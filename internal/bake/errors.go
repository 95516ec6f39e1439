package bake

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalUse marks a violation of the Submit/Start protocol.
	ErrIllegalUse = errors.New("illegal use of scheduler")

	// ErrInvalidTask marks a task rejected at Submit.
	ErrInvalidTask = errors.New("invalid bake task")
)

// UsageError reports a call made in the wrong scheduler state.
// It is fatal for the caller and is never retried.
type UsageError struct {
	// Op is the scheduler method that was called ("submit" or "start").
	Op string

	// State is the scheduler state at the time of the call.
	State State
}

func (e *UsageError) Error() string {
	switch e.Op {
	case "submit":
		return fmt.Sprintf("submit should only be called before baking starts (state=%s)", e.State)
	case "start":
		return fmt.Sprintf("start should only be called once (state=%s)", e.State)
	default:
		return fmt.Sprintf("%s called in state %s", e.Op, e.State)
	}
}

func (e *UsageError) Unwrap() error { return ErrIllegalUse }

// IsUsageError returns true if err is (or wraps) a usage-protocol violation.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrIllegalUse)
}

func invalidTaskf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTask, fmt.Sprintf(format, args...))
}

// TaskErrorCode categorizes per-task failures.
type TaskErrorCode string

const (
	// CodeOpenFailed indicates the patch could not be opened. The task is skipped.
	CodeOpenFailed TaskErrorCode = "OPEN_FAILED"

	// CodeConfigureFailed indicates the offline context could not be configured.
	// The task is skipped.
	CodeConfigureFailed TaskErrorCode = "CONFIGURE_FAILED"

	// CodeRenderFailed indicates a non-zero render status. The task is still
	// written and registered with whatever the engine produced.
	CodeRenderFailed TaskErrorCode = "RENDER_FAILED"

	// CodeArrayUnavailable indicates the destination array could not be sized.
	// The task is skipped.
	CodeArrayUnavailable TaskErrorCode = "ARRAY_UNAVAILABLE"

	// CodeWriteFailed indicates the shared engine rejected the array write.
	CodeWriteFailed TaskErrorCode = "WRITE_FAILED"
)

// TaskError describes what went wrong with a single task.
// Task errors are isolated: they never stop the remaining batch.
type TaskError struct {
	Code  TaskErrorCode
	Array string
	Err   error
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: array %q: %v", e.Code, e.Array, e.Err)
	}
	return fmt.Sprintf("%s: array %q", e.Code, e.Array)
}

func (e *TaskError) Unwrap() error { return e.Err }

// IsOpenError returns true if err is a patch-open failure.
// Uses errors.As to handle wrapped errors.
func IsOpenError(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code == CodeOpenFailed
	}
	return false
}

// IsRenderError returns true if err is a render-status failure.
func IsRenderError(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code == CodeRenderFailed
	}
	return false
}

// IsArrayUnavailable returns true if the destination array could not be sized.
func IsArrayUnavailable(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code == CodeArrayUnavailable
	}
	return false
}
