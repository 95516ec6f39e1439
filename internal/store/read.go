package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mr00Anderson/gdx-pd/internal/bake"
)

// ErrRunNotFound is returned when a run id is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// ResultRecord is a journaled task result.
//
// The task error is flattened to its code and message; the original error
// value does not survive a round trip through the journal.
type ResultRecord struct {
	RunID           string
	Seq             int64
	Array           string
	Patch           string
	SampleRate      int
	Duration        float64
	RequestedFrames int
	Blocks          int
	RenderedFrames  int
	RenderCode      int
	Capacity        int
	Reconcile       bake.ReconcileAction
	Status          bake.TaskStatus
	ErrorCode       bake.TaskErrorCode
	Error           string
}

// DroppedFrames is the number of trailing frames below one full block.
func (r ResultRecord) DroppedFrames() int {
	return r.RequestedFrames - r.RenderedFrames
}

// ReadRun retrieves a single run by id.
// Returns ErrRunNotFound if the id is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (bake.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, manifest, task_count, task_order, remote, status,
		       started_at, finished_at, started_seq, finished_seq
		FROM bake_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bake.RunRecord{}, fmt.Errorf("read run %q: %w", id, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
// A limit <= 0 returns every run.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]bake.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, manifest, task_count, task_order, remote, status,
		       started_at, finished_at, started_seq, finished_seq
		FROM bake_runs
		ORDER BY started_seq DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []bake.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadResults returns the task results of a run in render order (seq ASC).
func (s *Store) ReadResults(ctx context.Context, runID string) ([]ResultRecord, error) {
	return s.queryResults(ctx, `
		SELECT run_id, seq, array_name, patch, sample_rate, duration,
		       requested_frames, blocks, rendered_frames, render_code,
		       capacity, reconcile, status, error_code, error
		FROM bake_results
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
}

// ResultsForArray returns every journaled bake of one destination array,
// oldest first.
func (s *Store) ResultsForArray(ctx context.Context, array string) ([]ResultRecord, error) {
	return s.queryResults(ctx, `
		SELECT run_id, seq, array_name, patch, sample_rate, duration,
		       requested_frames, blocks, rendered_frames, render_code,
		       capacity, reconcile, status, error_code, error
		FROM bake_results
		WHERE array_name = ?
		ORDER BY seq ASC, id ASC
	`, array)
}

// LastSeq returns the highest sequence number in the journal, or 0 when empty.
// The CLI resumes its logical clock from here.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(m) FROM (
			SELECT MAX(seq) AS m FROM bake_results
			UNION ALL
			SELECT MAX(COALESCE(finished_seq, started_seq)) FROM bake_runs
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) queryResults(ctx context.Context, query string, arg any) ([]ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []ResultRecord{}
	for rows.Next() {
		var r ResultRecord
		var reconcile, status, code string
		if err := rows.Scan(
			&r.RunID, &r.Seq, &r.Array, &r.Patch, &r.SampleRate, &r.Duration,
			&r.RequestedFrames, &r.Blocks, &r.RenderedFrames, &r.RenderCode,
			&r.Capacity, &reconcile, &status, &code, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Reconcile = bake.ReconcileAction(reconcile)
		r.Status = bake.TaskStatus(status)
		r.ErrorCode = bake.TaskErrorCode(code)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (bake.RunRecord, error) {
	var run bake.RunRecord
	var order, status, startedAt string
	var remote int
	var finishedAt sql.NullString
	var finishedSeq sql.NullInt64

	if err := row.Scan(
		&run.ID, &run.Manifest, &run.TaskCount, &order, &remote, &status,
		&startedAt, &finishedAt, &run.StartedSeq, &finishedSeq,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}

	var ok bool
	if run.Order, ok = bake.ParseOrder(order); !ok {
		return run, fmt.Errorf("scan run %q: unknown order %q", run.ID, order)
	}
	run.Remote = remote != 0
	run.Status = bake.RunStatus(status)

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return run, fmt.Errorf("scan run %q: started_at: %w", run.ID, err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt.String); err != nil {
			return run, fmt.Errorf("scan run %q: finished_at: %w", run.ID, err)
		}
	}
	run.FinishedSeq = finishedSeq.Int64
	return run, nil
}
