package bake

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
	"github.com/Mr00Anderson/gdx-pd/internal/testutil"
)

type fixture struct {
	log      *testutil.OpLog
	renderer *testutil.FakeRenderer
	shared   *testutil.FakeShared
	logs     *bytes.Buffer
	sched    *Scheduler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := testutil.NewOpLog()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := &fixture{
		log:      log,
		renderer: testutil.NewFakeRenderer(log),
		shared:   testutil.NewFakeShared(log),
		logs:     logs,
	}
	all := append([]Option{WithLogger(logger), WithRunIDGenerator(NewFixedGenerator("run-1"))}, opts...)
	f.sched = New(f.renderer, f.shared, all...)
	return f
}

func (f *fixture) submit(t *testing.T, patch, array string, rate int, duration float64) *Task {
	t.Helper()
	task := NewTask(audio.PatchRef(patch), array, rate, duration)
	require.NoError(t, f.sched.Submit(task))
	return task
}

// runToCompletion starts the batch and drains it on the test goroutine.
func (f *fixture) runToCompletion(t *testing.T, l Listener) *Batch {
	t.Helper()
	b, err := f.sched.Start(l)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
	return b
}

func TestScheduler_ProgressSequence(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		f.shared.Declare(name, 64, 0)
		f.submit(t, name+".pd", name, 64, 1)
	}

	l := &testutil.RecordingListener{}
	b := f.runToCompletion(t, l)

	assert.Equal(t, []string{
		"progress 0",
		"progress 25",
		"progress 50",
		"progress 75",
		"progress 100",
		"complete",
	}, l.Calls())
	assert.True(t, b.Completed())
	assert.Equal(t, "run-1", b.RunID())
	assert.Equal(t, StateCompleted, f.sched.State())
	assert.Equal(t, 0, f.sched.Pending())
}

func TestScheduler_ProgressMonotonicEndsAt100(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		name := string(rune('a' + i))
		f.shared.Declare(name, 64, 0)
		f.submit(t, name, name, 64, 1)
	}

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	values := l.ProgressValues()
	require.Len(t, values, 8)
	assert.Equal(t, float64(0), values[0])
	for i := 1; i < len(values); i++ {
		assert.Greater(t, values[i], values[i-1], "progress must strictly increase")
	}
	assert.Equal(t, float64(100), values[len(values)-1])

	calls := l.Calls()
	assert.Equal(t, "complete", calls[len(calls)-1])
	assert.Equal(t, 1, l.Completes())
}

func TestScheduler_EmptyBatch(t *testing.T) {
	f := newFixture(t)

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	assert.Equal(t, []string{"progress 0", "complete"}, l.Calls())
	assert.Equal(t, []string{"pause", "resume"}, f.log.Ops())
	assert.Equal(t, 0, f.sched.Registry().Len())
}

func TestScheduler_SubmitAfterStartFails(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("a", 64, 0)
	f.submit(t, "a", "a", 64, 1)

	b, err := f.sched.Start(nil)
	require.NoError(t, err)

	// Running or already completed: both reject.
	err = f.sched.Submit(NewTask("late", "late", 44100, 1))
	require.Error(t, err)
	assert.True(t, IsUsageError(err))
	assert.ErrorIs(t, err, ErrIllegalUse)

	require.NoError(t, b.Wait(context.Background()))

	err = f.sched.Submit(NewTask("later", "later", 44100, 1))
	require.Error(t, err)
	var ue *UsageError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "submit", ue.Op)
	assert.Equal(t, StateCompleted, ue.State)

	_, ok := f.sched.Registry().Get("late")
	assert.False(t, ok)
}

func TestScheduler_SecondStartFails(t *testing.T) {
	f := newFixture(t)

	b, err := f.sched.Start(nil)
	require.NoError(t, err)

	_, err = f.sched.Start(nil)
	require.Error(t, err)
	assert.True(t, IsUsageError(err))
	assert.Contains(t, err.Error(), "start should only be called once")

	require.NoError(t, b.Wait(context.Background()))

	_, err = f.sched.Start(nil)
	assert.True(t, IsUsageError(err))

	pauses, resumes := f.shared.Counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
}

func TestScheduler_SubmitRejectsInvalidTask(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		task *Task
	}{
		{"nil task", nil},
		{"missing patch", NewTask("", "arr", 44100, 1)},
		{"missing array", NewTask("p", "", 44100, 1)},
		{"zero rate", NewTask("p", "arr", 0, 1)},
		{"negative rate", NewTask("p", "arr", -1, 1)},
		{"negative duration", NewTask("p", "arr", 44100, -0.5)},
		{"duration overflows frames", NewTask("p", "arr", 44100, 1e300)},
		{"one frame past limit", NewTask("p", "arr", 1, MaxFrames+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.sched.Submit(tt.task)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTask)
			assert.False(t, IsUsageError(err))
		})
	}
	assert.Equal(t, 0, f.sched.Pending())
}

func TestScheduler_TruncatesToWholeBlocks(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("pad", 110208, 0)
	task := f.submit(t, "pad.pd", "pad", 44100, 2.5)

	f.runToCompletion(t, nil)

	results := f.sched.Results()
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, 110250, res.RequestedFrames)
	assert.Equal(t, 1722, res.Blocks)
	assert.Equal(t, 110208, res.RenderedFrames)
	assert.Equal(t, 42, res.DroppedFrames())
	assert.Equal(t, ReconcileNone, res.Reconcile)
	assert.Equal(t, StatusRendered, res.Status)

	assert.True(t, task.Rendered())
	assert.Len(t, task.Samples(), 110208)
	assert.Equal(t, []string{"render pad.pd 1722"}, f.log.WithPrefix("render "))
}

func TestScheduler_ZeroFillsLargerDestination(t *testing.T) {
	f := newFixture(t)
	f.renderer.Block = 10
	f.renderer.Values["short"] = 0.25
	f.shared.Declare("tab", 100, 9) // stale contents
	f.submit(t, "short", "tab", 60, 1)

	f.runToCompletion(t, nil)

	arr := f.shared.Array("tab")
	require.Len(t, arr, 100)
	for i := 0; i < 60; i++ {
		require.Equal(t, float32(0.25), arr[i], "index %d", i)
	}
	for i := 60; i < 100; i++ {
		require.Equal(t, float32(0), arr[i], "index %d", i)
	}

	clearIdx := f.log.Index("write tab 60 40")
	writeIdx := f.log.Index("write tab 0 60")
	require.NotEqual(t, -1, clearIdx)
	require.NotEqual(t, -1, writeIdx)
	assert.Less(t, clearIdx, writeIdx, "tail must be cleared before the rendered write")

	res := f.sched.Results()[0]
	assert.Equal(t, ReconcileZeroFill, res.Reconcile)
	assert.Equal(t, 100, res.Capacity)
	assert.Contains(t, f.logs.String(), "clearing tail")
}

func TestScheduler_OversizedBufferWrittenInFull(t *testing.T) {
	f := newFixture(t)
	f.renderer.Block = 10
	f.renderer.Values["long"] = 0.5
	f.shared.Declare("tab", 60, 0)
	f.submit(t, "long", "tab", 100, 1)

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	arr := f.shared.Array("tab")
	require.Len(t, arr, 100)
	for i, v := range arr {
		require.Equal(t, float32(0.5), v, "index %d", i)
	}
	assert.Equal(t, []string{"write tab 0 100"}, f.log.WithPrefix("write "))

	res := f.sched.Results()[0]
	assert.Equal(t, ReconcileOverflow, res.Reconcile)
	assert.Equal(t, 60, res.Capacity)
	assert.Equal(t, StatusRendered, res.Status)
	assert.NoError(t, res.Err)
	assert.Contains(t, f.logs.String(), "destination array too short")
	assert.Equal(t, 1, l.Completes())
}

func TestScheduler_LIFOOrder(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"A", "B", "C"} {
		f.shared.Declare(name, 64, 0)
		f.submit(t, name, name, 64, 1)
	}

	f.runToCompletion(t, nil)

	assert.Equal(t, []string{"open C", "open B", "open A"}, f.log.WithPrefix("open "))
	assert.Equal(t, 3, f.sched.Registry().Len())
	assert.Equal(t, []string{"A", "B", "C"}, f.sched.Registry().Names())

	results := f.sched.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "C", results[0].Array)
	assert.Equal(t, "A", results[2].Array)
	assert.Less(t, results[0].Seq, results[1].Seq)
	assert.Less(t, results[1].Seq, results[2].Seq)
}

func TestScheduler_FIFOOrder(t *testing.T) {
	f := newFixture(t, WithOrder(OrderFIFO))
	for _, name := range []string{"A", "B", "C"} {
		f.shared.Declare(name, 64, 0)
		f.submit(t, name, name, 64, 1)
	}

	f.runToCompletion(t, nil)

	assert.Equal(t, []string{"open A", "open B", "open C"}, f.log.WithPrefix("open "))
}

func TestScheduler_SameArrayLastRenderedWins(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("tab", 64, 0)
	f.renderer.Values["first"] = 0.1
	f.renderer.Values["second"] = 0.2
	first := f.submit(t, "first", "tab", 64, 1)
	f.submit(t, "second", "tab", 64, 1)

	f.runToCompletion(t, nil)

	// LIFO: "second" renders first, so "first" is the last write.
	got, ok := f.sched.Registry().Get("tab")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, f.sched.Registry().Len())
	assert.Equal(t, float32(0.1), f.shared.Array("tab")[0])
}

func TestScheduler_PauseAndResumeBracketTheBatch(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b"} {
		f.shared.Declare(name, 64, 0)
		f.submit(t, name, name, 64, 1)
	}

	var pausedAtComplete bool
	l := ListenerFuncs{OnComplete: func() { pausedAtComplete = f.shared.Paused() }}
	f.runToCompletion(t, l)

	ops := f.log.Ops()
	require.NotEmpty(t, ops)
	assert.Equal(t, "pause", ops[0])
	assert.Equal(t, "resume", ops[len(ops)-1])
	assert.Len(t, f.log.WithPrefix("pause"), 1)
	assert.Len(t, f.log.WithPrefix("resume"), 1)
	assert.False(t, pausedAtComplete, "complete must be delivered after resume")
}

func TestScheduler_PerTaskProtocolOrder(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("tab", 128, 0)
	f.submit(t, "p", "tab", 128, 1)

	f.runToCompletion(t, nil)

	assert.Equal(t, []string{
		"pause",
		"open p",
		"configure 0 1 128",
		"compute on",
		"render p 2",
		"close p",
		"size tab",
		"write tab 0 128",
		"resume",
	}, f.log.Ops())
}

func TestScheduler_CallbacksOnlyDeliveredWhenDrained(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("a", 64, 0)
	f.submit(t, "a", "a", 64, 1)

	l := &testutil.RecordingListener{}
	b, err := f.sched.Start(l)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.sched.State() == StateCompleted && b.Pending() == 3
	}, 5*time.Second, time.Millisecond)

	assert.Empty(t, l.Calls(), "worker must not invoke the listener")

	n := b.Poll()
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"progress 0", "progress 100", "complete"}, l.Calls())
	assert.Equal(t, 0, b.Poll())
}

func TestScheduler_RenderErrorStillRegisters(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("noisy", 256, 0)
	f.renderer.RenderCodes["noisy"] = 3
	f.submit(t, "noisy", "noisy", 256, 1)

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	res := f.sched.Results()[0]
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, 3, res.RenderCode)
	assert.True(t, IsRenderError(res.Err))
	assert.Equal(t, 256, res.RenderedFrames)

	_, ok := f.sched.Registry().Get("noisy")
	assert.True(t, ok)
	assert.Equal(t, []string{"write noisy 0 256"}, f.log.WithPrefix("write "))
	assert.Contains(t, f.logs.String(), "process error")
	assert.Equal(t, []float64{0, 100}, l.ProgressValues())
}

func TestScheduler_OpenFailureSkipsOnlyThatTask(t *testing.T) {
	f := newFixture(t, WithOrder(OrderFIFO))
	f.shared.Declare("a", 64, 0)
	f.shared.Declare("b", 64, 0)
	f.shared.Declare("c", 64, 0)
	f.renderer.OpenErrors["b.pd"] = errors.New("no such file")
	f.submit(t, "a.pd", "a", 64, 1)
	f.submit(t, "b.pd", "b", 64, 1)
	f.submit(t, "c.pd", "c", 64, 1)

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	assert.Equal(t, []string{"a", "c"}, f.sched.Registry().Names())
	assert.Empty(t, f.log.WithPrefix("write b"))
	assert.Equal(t, 0, f.renderer.OpenCount())

	results := f.sched.Results()
	require.Len(t, results, 3)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.True(t, IsOpenError(results[1].Err))

	values := l.ProgressValues()
	require.Len(t, values, 4)
	assert.Equal(t, float64(100), values[3])
	assert.Equal(t, 1, l.Completes())
}

func TestScheduler_ConfigureFailureClosesPatch(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("a", 64, 0)
	f.renderer.ConfigureError = errors.New("unsupported rate")
	f.submit(t, "a", "a", 64, 1)

	f.runToCompletion(t, nil)

	res := f.sched.Results()[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 0, f.renderer.OpenCount())
	assert.Empty(t, f.log.WithPrefix("render "))
	assert.Equal(t, 0, f.sched.Registry().Len())
}

func TestScheduler_RemoteModeWritesBlind(t *testing.T) {
	f := newFixture(t, WithRemoteMode(true))
	f.submit(t, "p", "remote-tab", 128, 1)

	f.runToCompletion(t, nil)

	assert.Empty(t, f.log.WithPrefix("size "), "remote mode must not query capacity")
	assert.Equal(t, []string{"write remote-tab 0 128"}, f.log.WithPrefix("write "))

	res := f.sched.Results()[0]
	assert.Equal(t, ReconcileUnchecked, res.Reconcile)
	assert.Equal(t, UnknownCapacity, res.Capacity)
	assert.Equal(t, StatusRendered, res.Status)
	assert.Contains(t, f.logs.String(), "remote mode")
}

func TestScheduler_SizeUnavailableTreatedAsUnchecked(t *testing.T) {
	f := newFixture(t)
	f.shared.Remote = true
	f.submit(t, "p", "tab", 64, 1)

	f.runToCompletion(t, nil)

	res := f.sched.Results()[0]
	assert.Equal(t, ReconcileUnchecked, res.Reconcile)
	assert.Equal(t, StatusRendered, res.Status)
	assert.Equal(t, []string{"write tab 0 64"}, f.log.WithPrefix("write "))
}

func TestScheduler_MissingArrayFailsTask(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "p", "nowhere", 64, 1)

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	res := f.sched.Results()[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, IsArrayUnavailable(res.Err))
	assert.Empty(t, f.log.WithPrefix("write "))
	assert.Equal(t, 0, f.sched.Registry().Len())
	assert.Equal(t, 1, l.Completes())
}

func TestScheduler_WriteFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("tab", 64, 0)
	f.shared.WriteErrors["tab"] = errors.New("engine busy")
	f.submit(t, "p", "tab", 64, 1)

	f.runToCompletion(t, nil)

	res := f.sched.Results()[0]
	assert.Equal(t, StatusDegraded, res.Status)
	var te *TaskError
	require.ErrorAs(t, res.Err, &te)
	assert.Equal(t, CodeWriteFailed, te.Code)
}

func TestScheduler_ZeroDuration(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("tab", 10, 5)
	task := f.submit(t, "p", "tab", 44100, 0)

	f.runToCompletion(t, nil)

	assert.Len(t, task.Samples(), 0)
	assert.True(t, task.Rendered())
	assert.Equal(t, make([]float32, 10), f.shared.Array("tab"))
}

func TestScheduler_OversizedRequestRejectedBatchStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("ok", 64, 0)

	err := f.sched.Submit(NewTask("huge", "big", 44100, 1e300))
	require.ErrorIs(t, err, ErrInvalidTask)
	f.submit(t, "p", "ok", 64, 1)

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	assert.Equal(t, 1, l.Completes())
	pauses, resumes := f.shared.Counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
	assert.Equal(t, -1, f.log.Index("open huge"))
	assert.Equal(t, 1, f.sched.Registry().Len())
}

func TestScheduler_ResultListenerSeesEachTask(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"x", "y"} {
		f.shared.Declare(name, 64, 0)
		f.submit(t, name, name, 64, 1)
	}

	var seen []string
	l := ListenerFuncs{
		OnTaskDone: func(r TaskResult) { seen = append(seen, "done "+r.Array) },
		OnProgress: func(p float64) {
			if p > 0 {
				seen = append(seen, "progress")
			}
		},
		OnComplete: func() { seen = append(seen, "complete") },
	}
	f.runToCompletion(t, l)

	assert.Equal(t, []string{"done y", "progress", "done x", "progress", "complete"}, seen)
}

func TestScheduler_WaitCancelledLeavesBatchRunning(t *testing.T) {
	f := newFixture(t)
	f.shared.Declare("a", 64, 0)
	f.submit(t, "a", "a", 64, 1)

	l := &testutil.RecordingListener{}
	b, err := f.sched.Start(l)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.sched.State() == StateCompleted
	}, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Pending events are still delivered before the cancellation is seen.
	require.NoError(t, b.Wait(ctx))
	assert.Equal(t, 1, l.Completes())
}

type recordingJournal struct {
	begun    []RunRecord
	tasks    []TaskResult
	finished []RunRecord
	fail     error
}

func (j *recordingJournal) BeginRun(_ context.Context, run RunRecord) error {
	j.begun = append(j.begun, run)
	return j.fail
}

func (j *recordingJournal) RecordTask(_ context.Context, res TaskResult) error {
	j.tasks = append(j.tasks, res)
	return j.fail
}

func (j *recordingJournal) FinishRun(_ context.Context, run RunRecord) error {
	j.finished = append(j.finished, run)
	return j.fail
}

func TestScheduler_JournalRecordsRun(t *testing.T) {
	j := &recordingJournal{}
	f := newFixture(t, WithJournal(j), WithManifestName("sfx"), WithClock(NewClockAt(10)))
	f.shared.Declare("a", 64, 0)
	f.shared.Declare("b", 64, 0)
	f.submit(t, "a", "a", 64, 1)
	f.submit(t, "b", "b", 64, 1)

	f.runToCompletion(t, nil)

	require.Len(t, j.begun, 1)
	assert.Equal(t, "run-1", j.begun[0].ID)
	assert.Equal(t, "sfx", j.begun[0].Manifest)
	assert.Equal(t, 2, j.begun[0].TaskCount)
	assert.Equal(t, RunRunning, j.begun[0].Status)
	assert.Equal(t, int64(10), j.begun[0].StartedSeq)

	require.Len(t, j.tasks, 2)
	assert.Equal(t, int64(11), j.tasks[0].Seq)
	assert.Equal(t, int64(12), j.tasks[1].Seq)
	assert.Equal(t, "run-1", j.tasks[1].RunID)

	require.Len(t, j.finished, 1)
	assert.Equal(t, RunCompleted, j.finished[0].Status)
	assert.Equal(t, int64(12), j.finished[0].FinishedSeq)
}

func TestScheduler_JournalErrorsDoNotAbort(t *testing.T) {
	j := &recordingJournal{fail: errors.New("disk full")}
	f := newFixture(t, WithJournal(j))
	f.shared.Declare("a", 64, 0)
	f.submit(t, "a", "a", 64, 1)

	l := &testutil.RecordingListener{}
	f.runToCompletion(t, l)

	assert.Equal(t, 1, l.Completes())
	assert.Equal(t, 1, f.sched.Registry().Len())
	assert.Contains(t, f.logs.String(), "disk full")
}
