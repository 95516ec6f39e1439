package bake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// State is the scheduler lifecycle state.
type State int

const (
	// StateConfiguring accepts Submit calls.
	StateConfiguring State = iota
	// StateRunning means the worker owns the task stack.
	StateRunning
	// StateCompleted means the stack is drained and the shared engine resumed.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scheduler bakes a batch of tasks on a single worker goroutine.
//
// Thread-safety model:
//   - Submit(), Start(), State(): safe from any goroutine
//   - the render and shared engines are used only by the worker, between
//     Start and the completion event
//   - Registry() and Results() are complete once completion is delivered
//
// INVARIANTS:
//   - Configuring -> Running happens exactly once, under mu
//   - no task is accepted once Running
//   - exactly one worker per scheduler; tasks render strictly sequentially
type Scheduler struct {
	renderer audio.RenderEngine
	shared   audio.SharedEngine

	mu    sync.Mutex
	state State

	tasks    *taskStack
	registry *Registry

	resultsMu sync.Mutex
	results   []TaskResult

	clock    *Clock
	runIDs   RunIDGenerator
	journal  Journal
	logger   *slog.Logger
	order    Order
	remote   bool
	manifest string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithRemoteMode skips the destination capacity check. Use when the shared
// engine runs out of process and cannot report array sizes.
func WithRemoteMode(remote bool) Option {
	return func(s *Scheduler) {
		s.remote = remote
	}
}

// WithOrder selects the order pending tasks are rendered in.
//
// Default: OrderLIFO, the most recently submitted task renders first.
// OrderFIFO renders in submission order.
func WithOrder(o Order) Option {
	return func(s *Scheduler) {
		s.order = o
	}
}

// WithJournal records runs and per-task results.
func WithJournal(j Journal) Option {
	return func(s *Scheduler) {
		s.journal = j
	}
}

// WithRunIDGenerator overrides the run id generator. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *Scheduler) {
		s.runIDs = g
	}
}

// WithClock sets the logical clock used to sequence results.
// Used to continue numbering after the last journaled result.
func WithClock(c *Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithManifestName labels the run in the journal.
func WithManifestName(name string) Option {
	return func(s *Scheduler) {
		s.manifest = name
	}
}

// New creates a Scheduler in the Configuring state.
//
// The scheduler takes exclusive use of renderer and shared from Start until
// the completion event is delivered. Callers must not touch either engine in
// that window.
func New(renderer audio.RenderEngine, shared audio.SharedEngine, opts ...Option) *Scheduler {
	s := &Scheduler{
		renderer: renderer,
		shared:   shared,
		state:    StateConfiguring,
		registry: newRegistry(),
		clock:    NewClock(),
		runIDs:   UUIDv7Generator{},
		logger:   slog.Default(),
		order:    OrderLIFO,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.tasks = newTaskStack(s.order)
	return s
}

// Submit adds a task to the batch.
//
// Returns a *UsageError once the scheduler has started, and an error wrapping
// ErrInvalidTask if the task is malformed. Never blocks on the worker.
func (s *Scheduler) Submit(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfiguring {
		return &UsageError{Op: "submit", State: s.state}
	}
	if err := t.validate(); err != nil {
		return err
	}

	s.tasks.Push(t)
	return nil
}

// Start launches the worker and returns the batch the caller drains to
// receive progress and completion on its own goroutine.
//
// Start may be called once. A second call returns a *UsageError.
// There is no way to cancel a started batch.
func (s *Scheduler) Start(l Listener) (*Batch, error) {
	s.mu.Lock()
	if s.state != StateConfiguring {
		state := s.state
		s.mu.Unlock()
		return nil, &UsageError{Op: "start", State: state}
	}
	s.state = StateRunning
	s.mu.Unlock()

	b := newBatch(s.runIDs.Generate(), l)
	go s.run(b)
	return b, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of tasks not yet rendered.
func (s *Scheduler) Pending() int {
	return s.tasks.Len()
}

// Registry returns the registry of baked tasks.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Results returns a copy of the task results in render order.
func (s *Scheduler) Results() []TaskResult {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	out := make([]TaskResult, len(s.results))
	copy(out, s.results)
	return out
}

// run is the worker. CRITICAL: the only goroutine that touches the engines.
func (s *Scheduler) run(b *Batch) {
	total := s.tasks.Len()
	count := 0

	b.post(Event{Kind: EventProgress, Percent: 0})

	run := RunRecord{
		ID:         b.runID,
		Manifest:   s.manifest,
		TaskCount:  total,
		Order:      s.order,
		Remote:     s.remote,
		StartedAt:  time.Now(),
		StartedSeq: s.clock.Current(),
		Status:     RunRunning,
	}
	s.journalBegin(run)

	s.logger.Info("baking started", "run", b.runID, "tasks", total, "order", s.order.String())

	if err := s.shared.Pause(); err != nil {
		s.logger.Error("pause shared engine failed", "run", b.runID, "error", err)
	}

	for {
		t, ok := s.tasks.Pop()
		if !ok {
			break
		}

		res := s.bake(b.runID, t)
		count++

		s.resultsMu.Lock()
		s.results = append(s.results, res)
		s.resultsMu.Unlock()
		s.journalTask(res)

		b.post(Event{
			Kind:    EventProgress,
			Percent: 100 * float64(count) / float64(total),
			Result:  &res,
		})
	}

	if err := s.shared.Resume(); err != nil {
		s.logger.Error("resume shared engine failed", "run", b.runID, "error", err)
	}

	s.mu.Lock()
	s.state = StateCompleted
	s.mu.Unlock()

	run.FinishedAt = time.Now()
	run.FinishedSeq = s.clock.Current()
	run.Status = RunCompleted
	s.journalFinish(run)

	s.logger.Info("baking complete", "run", b.runID, "tasks", count, "baked", s.registry.Len())

	b.post(Event{Kind: EventComplete})
	b.close()
}

// bake runs the render-and-reconcile protocol for one task.
// Failures are recorded in the result and never escape the task.
func (s *Scheduler) bake(runID string, t *Task) TaskResult {
	res := TaskResult{
		RunID:           runID,
		Array:           t.Array,
		Patch:           t.Patch,
		SampleRate:      t.SampleRate,
		Duration:        t.Duration,
		RequestedFrames: t.RequestedFrames(),
		Capacity:        UnknownCapacity,
	}

	s.logger.Debug("baking task", "run", runID, "array", t.Array, "patch", t.Patch)

	h, err := s.renderer.Open(t.Patch)
	if err != nil {
		s.logger.Error("unable to open patch", "array", t.Array, "patch", t.Patch, "error", err)
		return s.fail(res, &TaskError{Code: CodeOpenFailed, Array: t.Array, Err: err})
	}

	if err := s.renderer.ConfigureOffline(0, 1, t.SampleRate); err != nil {
		s.logger.Error("unable to configure offline context", "array", t.Array, "sample_rate", t.SampleRate, "error", err)
		s.closePatch(t, h)
		return s.fail(res, &TaskError{Code: CodeConfigureFailed, Array: t.Array, Err: err})
	}
	s.renderer.EnableCompute(true)

	// Trailing frames below one full block are dropped, not rounded up.
	buf := make([]float32, res.RequestedFrames)
	blockSize := s.renderer.BlockSize()
	if blockSize > 0 {
		res.Blocks = res.RequestedFrames / blockSize
	}
	res.RenderCode = s.renderer.RenderBlocks(res.Blocks, []float32{}, buf)
	res.RenderedFrames = res.Blocks * blockSize
	samples := buf[:res.RenderedFrames]

	if res.RenderCode != 0 {
		s.logger.Warn("process error", "array", t.Array, "patch", t.Patch, "code", res.RenderCode)
		res.Err = &TaskError{
			Code:  CodeRenderFailed,
			Array: t.Array,
			Err:   fmt.Errorf("render status %d", res.RenderCode),
		}
	}

	s.closePatch(t, h)

	t.samples = samples
	t.rendered = true

	capacity, action, err := s.reconcile(t.Array, len(samples))
	res.Capacity = capacity
	res.Reconcile = action
	if err != nil {
		if IsArrayUnavailable(err) {
			s.logger.Error("destination array unavailable", "array", t.Array, "error", err)
			return s.fail(res, err)
		}
		s.logger.Warn("reconcile failed", "array", t.Array, "error", err)
		if res.Err == nil {
			res.Err = err
		}
	}

	if err := s.shared.WriteArray(t.Array, 0, samples, 0, len(samples)); err != nil {
		s.logger.Warn("write array failed", "array", t.Array, "samples", len(samples), "error", err)
		if res.Err == nil {
			res.Err = &TaskError{Code: CodeWriteFailed, Array: t.Array, Err: err}
		}
	}

	s.registry.put(t)

	res.Status = StatusRendered
	if res.Err != nil {
		res.Status = StatusDegraded
	}
	res.Seq = s.clock.Next()

	s.logger.Info("task baked",
		"array", t.Array,
		"frames", res.RenderedFrames,
		"dropped", res.DroppedFrames(),
		"reconcile", string(res.Reconcile),
		"status", string(res.Status),
	)
	return res
}

func (s *Scheduler) fail(res TaskResult, err error) TaskResult {
	res.Status = StatusFailed
	res.Err = err
	res.Seq = s.clock.Next()
	return res
}

func (s *Scheduler) closePatch(t *Task, h audio.PatchHandle) {
	if err := s.renderer.Close(h); err != nil {
		s.logger.Warn("close patch failed", "array", t.Array, "patch", t.Patch, "error", err)
	}
}

func (s *Scheduler) journalBegin(run RunRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.BeginRun(context.Background(), run); err != nil {
		s.logger.Error("journal begin run failed", "run", run.ID, "error", err)
	}
}

func (s *Scheduler) journalTask(res TaskResult) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordTask(context.Background(), res); err != nil {
		s.logger.Error("journal record task failed", "run", res.RunID, "array", res.Array, "error", err)
	}
}

func (s *Scheduler) journalFinish(run RunRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.FinishRun(context.Background(), run); err != nil {
		s.logger.Error("journal finish run failed", "run", run.ID, "error", err)
	}
}
