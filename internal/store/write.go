package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mr00Anderson/gdx-pd/internal/bake"
)

// BeginRun inserts a run in the running state.
// Uses ON CONFLICT(id) DO NOTHING: beginning the same run twice is a no-op.
func (s *Store) BeginRun(ctx context.Context, run bake.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bake_runs
		(id, manifest, task_count, task_order, remote, status, started_at, started_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Manifest,
		run.TaskCount,
		run.Order.String(),
		boolToInt(run.Remote),
		string(bake.RunRunning),
		formatTime(run.StartedAt),
		run.StartedSeq,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordTask appends one task result to its run.
//
// Note: the run referenced by result.RunID must exist (foreign key constraint).
// Recording the same (run, seq) twice is a no-op.
func (s *Store) RecordTask(ctx context.Context, result bake.TaskResult) error {
	code, msg := errorColumns(result.Err)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bake_results
		(run_id, seq, array_name, patch, sample_rate, duration,
		 requested_frames, blocks, rendered_frames, render_code,
		 capacity, reconcile, status, error_code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		result.RunID,
		result.Seq,
		result.Array,
		string(result.Patch),
		result.SampleRate,
		result.Duration,
		result.RequestedFrames,
		result.Blocks,
		result.RenderedFrames,
		result.RenderCode,
		result.Capacity,
		string(result.Reconcile),
		string(result.Status),
		code,
		msg,
	)
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

// FinishRun marks a run completed.
// Returns an error if the run was never begun.
func (s *Store) FinishRun(ctx context.Context, run bake.RunRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bake_runs
		SET status = ?, finished_at = ?, finished_seq = ?
		WHERE id = ?
	`,
		string(run.Status),
		formatTime(run.FinishedAt),
		run.FinishedSeq,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %q: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

func errorColumns(err error) (code, msg string) {
	if err == nil {
		return "", ""
	}
	var te *bake.TaskError
	if errors.As(err, &te) {
		code = string(te.Code)
	}
	return code, err.Error()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
