package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
	"github.com/Mr00Anderson/gdx-pd/internal/bake"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string, tasks int, startedSeq int64) bake.RunRecord {
	return bake.RunRecord{
		ID:         id,
		Manifest:   "sfx.yaml",
		TaskCount:  tasks,
		Order:      bake.OrderLIFO,
		StartedAt:  testStart,
		StartedSeq: startedSeq,
		Status:     bake.RunRunning,
	}
}

// createTestResult creates a cleanly rendered result.
func createTestResult(runID, array string, seq int64) bake.TaskResult {
	return bake.TaskResult{
		RunID:           runID,
		Seq:             seq,
		Array:           array,
		Patch:           audio.PatchRef("patches/" + array + ".yaml"),
		SampleRate:      44100,
		Duration:        2.5,
		RequestedFrames: 110250,
		Blocks:          1722,
		RenderedFrames:  110208,
		Capacity:        110250,
		Reconcile:       bake.ReconcileZeroFill,
		Status:          bake.StatusRendered,
	}
}

func beginTestRun(t *testing.T, s *Store, run bake.RunRecord) {
	t.Helper()
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
}
