package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
	"github.com/Mr00Anderson/gdx-pd/internal/bake"
	"github.com/Mr00Anderson/gdx-pd/internal/store"
	"github.com/Mr00Anderson/gdx-pd/internal/testutil"
)

// DefaultTimeout bounds how long Run waits for a batch to complete.
const DefaultTimeout = 10 * time.Second

// Harness wires one scenario to fake engines and an in-memory journal.
type Harness struct {
	store    *store.Store
	log      *testutil.OpLog
	renderer *testutil.FakeRenderer
	shared   *testutil.FakeShared
	listener *testutil.RecordingListener
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create fresh in-memory journal
//  2. Declare tables and inject faults
//  3. Submit every task and start the batch
//  4. Drain the batch until completion
//  5. Evaluate assertions against the trace, journal and arrays
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	result, err := h.execute(ctx, scenario)
	if err != nil {
		return nil, err
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(st *store.Store, s *Scenario) *Harness {
	log := testutil.NewOpLog()
	h := &Harness{
		store:    st,
		log:      log,
		renderer: testutil.NewFakeRenderer(log),
		shared:   testutil.NewFakeShared(log),
		listener: &testutil.RecordingListener{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if s.BlockSize > 0 {
		h.renderer.Block = s.BlockSize
	}
	for _, t := range s.Tables {
		h.shared.Declare(t.Name, t.Size, t.Fill)
	}
	for _, t := range s.Tasks {
		if t.Value != nil {
			h.renderer.Values[audio.PatchRef(t.Patch)] = *t.Value
		}
	}

	f := s.Faults
	for _, p := range f.OpenErrors {
		h.renderer.OpenErrors[audio.PatchRef(p)] = fmt.Errorf("patch %s not found", p)
	}
	for p, code := range f.RenderCodes {
		h.renderer.RenderCodes[audio.PatchRef(p)] = code
	}
	if f.ConfigureError != "" {
		h.renderer.ConfigureError = errors.New(f.ConfigureError)
	}
	for _, a := range f.SizeErrors {
		h.shared.SizeErrors[a] = fmt.Errorf("array %s size query failed", a)
	}
	for _, a := range f.WriteErrors {
		h.shared.WriteErrors[a] = fmt.Errorf("array %s is read-only", a)
	}
	h.shared.Remote = s.Remote

	return h
}

// execute bakes the scenario's tasks and collects the observable outcome.
func (h *Harness) execute(ctx context.Context, s *Scenario) (*Result, error) {
	order, _ := bake.ParseOrder(s.Order)
	sched := bake.New(h.renderer, h.shared,
		bake.WithLogger(h.logger),
		bake.WithOrder(order),
		bake.WithRemoteMode(s.Remote),
		bake.WithJournal(h.store),
		bake.WithRunIDGenerator(bake.NewFixedGenerator(s.runID())),
		bake.WithManifestName(s.Name),
	)

	for i, step := range s.Tasks {
		t := bake.NewTask(audio.PatchRef(step.Patch), step.Array, step.SampleRate, step.Duration)
		if err := sched.Submit(t); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
	}

	batch, err := sched.Start(h.listener)
	if err != nil {
		return nil, fmt.Errorf("failed to start batch: %w", err)
	}
	if err := batch.Wait(ctx); err != nil {
		return nil, fmt.Errorf("batch did not complete: %w", err)
	}

	result := NewResult()
	result.RunID = batch.RunID()
	for i, op := range h.log.Ops() {
		result.Trace = append(result.Trace, TraceEvent{Seq: i + 1, Op: op})
	}
	result.Progress = append(result.Progress, h.listener.ProgressValues()...)
	for _, r := range sched.Results() {
		result.Results = append(result.Results, toResultLine(r))
	}
	for _, t := range s.Tables {
		result.Arrays[t.Name] = h.shared.Array(t.Name)
	}
	for _, t := range s.Tasks {
		if _, ok := result.Arrays[t.Array]; !ok {
			if arr := h.shared.Array(t.Array); arr != nil {
				result.Arrays[t.Array] = arr
			}
		}
	}

	h.logger.Info("scenario executed",
		"scenario", s.Name,
		"ops", len(result.Trace),
		"tasks", len(result.Results),
	)
	return result, nil
}

func toResultLine(r bake.TaskResult) ResultLine {
	line := ResultLine{
		Seq:       r.Seq,
		Array:     r.Array,
		Patch:     string(r.Patch),
		Status:    string(r.Status),
		Requested: r.RequestedFrames,
		Rendered:  r.RenderedFrames,
		Dropped:   r.DroppedFrames(),
		Capacity:  r.Capacity,
		Reconcile: string(r.Reconcile),
	}
	var te *bake.TaskError
	if errors.As(r.Err, &te) {
		line.ErrorCode = string(te.Code)
	}
	return line
}
