package bake

import (
	"context"
	"time"
)

// RunStatus is the lifecycle status of a journaled run.
type RunStatus string

const (
	// RunRunning is written when the worker starts; a run left in this state
	// was interrupted before it drained.
	RunRunning RunStatus = "running"

	// RunCompleted is written after the shared engine was resumed.
	RunCompleted RunStatus = "completed"
)

// RunRecord describes one batch for the journal.
type RunRecord struct {
	ID          string
	Manifest    string
	TaskCount   int
	Order       Order
	Remote      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	StartedSeq  int64
	FinishedSeq int64
	Status      RunStatus
}

// Journal records bake runs and their per-task results.
// Implemented by store.Store.
//
// Journal errors are logged by the scheduler and never abort a batch.
type Journal interface {
	BeginRun(ctx context.Context, run RunRecord) error
	RecordTask(ctx context.Context, result TaskResult) error
	FinishRun(ctx context.Context, run RunRecord) error
}
