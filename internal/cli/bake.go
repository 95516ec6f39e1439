package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/spf13/cobra"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
	"github.com/Mr00Anderson/gdx-pd/internal/bake"
	"github.com/Mr00Anderson/gdx-pd/internal/manifest"
	"github.com/Mr00Anderson/gdx-pd/internal/playback"
	"github.com/Mr00Anderson/gdx-pd/internal/staging"
	"github.com/Mr00Anderson/gdx-pd/internal/store"
	"github.com/Mr00Anderson/gdx-pd/internal/synth"
	"github.com/Mr00Anderson/gdx-pd/internal/tables"
)

// Error codes reported by the bake command.
const (
	ErrCodeManifest    = "E_MANIFEST"
	ErrCodeStage       = "E_STAGE"
	ErrCodeEngine      = "E_ENGINE"
	ErrCodeDatabase    = "E_DATABASE"
	ErrCodeSubmit      = "E_SUBMIT"
	ErrCodeTasksFailed = "TASKS_FAILED"
)

// BakeOptions holds flags for the bake command.
type BakeOptions struct {
	*RootOptions
	Database string
	CacheDir string
	Remote   string
	FIFO     bool
	Play     bool

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs bake.RunIDGenerator

	// NewRenderer overrides the render engine (for testing).
	// If nil, defaults to the SoundFont synth engine.
	NewRenderer func(logger *slog.Logger) audio.RenderEngine
}

// NewBakeCommand creates the bake command.
func NewBakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BakeOptions{RootOptions: rootOpts}
	return newBakeCommand(opts)
}

func newBakeCommand(opts *BakeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bake <manifest>",
		Short: "Render a manifest's patches into tables",
		Long: `Render every task of a manifest offline and write the samples into the
destination arrays of the shared engine.

Without --remote the tables live in process and are declared from the
manifest's tables section. With --remote the samples are sent over FUDI to
a running Pure Data instance, which cannot report array sizes.

Example:
  pdbake bake ./sfx/drums.yaml
  pdbake bake --db ./bake.db --fifo ./sfx/drums.cue
  pdbake bake --remote localhost:3000 ./sfx/drums.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBake(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite journal")
	cmd.Flags().StringVar(&opts.CacheDir, "cache", "", "stage patch folders into this directory before rendering")
	cmd.Flags().StringVar(&opts.Remote, "remote", "", "FUDI address of a remote shared engine (host:port)")
	cmd.Flags().BoolVar(&opts.FIFO, "fifo", false, "render in manifest order instead of most recent first")
	cmd.Flags().BoolVar(&opts.Play, "play", false, "play each baked table after the batch completes")

	return cmd
}

// TaskLine is one task's outcome in command output.
type TaskLine struct {
	Seq        int64  `json:"seq"`
	Array      string `json:"array"`
	Status     string `json:"status"`
	SampleRate int    `json:"sample_rate"`
	Frames     int    `json:"frames"`
	Dropped    int    `json:"dropped"`
	Capacity   int    `json:"capacity"`
	Action     string `json:"reconcile"`
	Error      string `json:"error,omitempty"`
}

// BakeSummary is the result of a bake command.
type BakeSummary struct {
	RunID     string     `json:"run_id"`
	Manifest  string     `json:"manifest"`
	Order     string     `json:"order"`
	Remote    bool       `json:"remote"`
	Tasks     int        `json:"tasks"`
	Rendered  int        `json:"rendered"`
	Degraded  int        `json:"degraded"`
	Failed    int        `json:"failed"`
	Frames    int        `json:"frames"`
	Bytes     int        `json:"bytes"`
	ElapsedMS int64      `json:"elapsed_ms"`
	Results   []TaskLine `json:"results"`
}

func runBake(opts *BakeOptions, manifestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return outputCommandError(formatter, ErrCodeManifest, "failed to load manifest", err)
	}
	logger.Info("manifest loaded", "path", manifestPath, "tasks", len(m.Tasks))

	var resolve manifest.PatchResolver
	if opts.CacheDir != "" {
		stager := staging.New(os.DirFS(m.Dir()), opts.CacheDir, staging.WithLogger(logger))
		resolve = func(patch string) (string, error) {
			formatter.VerboseLog("Staging %s", patch)
			return stager.Stage(ctx, patch)
		}
	}
	tasks, err := m.BuildTasks(resolve)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStage, "failed to stage patches", err)
	}

	shared, local, closeShared, err := openSharedEngine(ctx, opts, m, logger)
	if err != nil {
		return outputCommandError(formatter, ErrCodeEngine, "failed to open shared engine", err)
	}
	defer closeShared()

	remote := local == nil
	if opts.Play && remote {
		return outputCommandError(formatter, ErrCodeEngine, "--play requires local tables", nil)
	}

	order := m.BakeOrder()
	if opts.FIFO {
		order = bake.OrderFIFO
	}

	schedOpts := []bake.Option{
		bake.WithLogger(logger),
		bake.WithRemoteMode(remote),
		bake.WithOrder(order),
		bake.WithManifestName(m.DisplayName()),
	}
	if opts.RunIDs != nil {
		schedOpts = append(schedOpts, bake.WithRunIDGenerator(opts.RunIDs))
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		lastSeq, err := st.LastSeq(ctx)
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, "failed to read journal", err)
		}
		schedOpts = append(schedOpts, bake.WithJournal(st), bake.WithClock(bake.NewClockAt(lastSeq)))
	}

	renderer := opts.newRenderer(logger)
	sched := bake.New(renderer, shared, schedOpts...)
	for _, t := range tasks {
		if err := sched.Submit(t); err != nil {
			return outputCommandError(formatter, ErrCodeSubmit, "failed to submit task", err)
		}
	}

	text := formatter.Format != "json"
	listener := bake.ListenerFuncs{
		OnProgress: func(percent float64) {
			formatter.VerboseLog("progress %.0f%%", percent)
		},
		OnTaskDone: func(r bake.TaskResult) {
			if text {
				fmt.Fprintf(formatter.Writer, "%s %s\n", statusMark(r.Status), r.String())
			}
		},
	}

	started := time.Now()
	batch, err := sched.Start(listener)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start batch", err)
	}
	if err := batch.Wait(ctx); err != nil {
		// A started batch cannot be cancelled. Drain it so the shared engine
		// is resumed before the engine connection and journal are closed.
		logger.Warn("interrupted, waiting for the batch to finish", "run", batch.RunID(), "pending", sched.Pending())
		_ = batch.Wait(context.Background())
		return WrapExitError(ExitFailure, "interrupted while baking", err)
	}

	summary := summarize(batch.RunID(), m, order, remote, sched.Results(), time.Since(started))

	if opts.Play {
		if err := playTables(ctx, local, summary.Results, m.SampleRate, formatter); err != nil {
			logger.Error("playback failed", "error", err)
		}
	}

	return outputBakeSummary(formatter, summary)
}

func (o *BakeOptions) newRenderer(logger *slog.Logger) audio.RenderEngine {
	if o.NewRenderer != nil {
		return o.NewRenderer(logger)
	}
	return synth.New(synth.WithLogger(logger))
}

// openSharedEngine returns the shared engine, the local table engine (nil
// when remote) and a close function.
func openSharedEngine(ctx context.Context, opts *BakeOptions, m *manifest.Manifest, logger *slog.Logger) (audio.SharedEngine, *tables.Engine, func(), error) {
	if opts.Remote != "" {
		r, err := tables.Dial(ctx, opts.Remote, tables.WithRemoteLogger(logger))
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := r.Close(); err != nil {
				logger.Warn("error closing remote engine", "error", err)
			}
		}
		return r, nil, closeFn, nil
	}
	if m.Remote {
		return nil, nil, nil, fmt.Errorf("manifest %s requires a remote engine: pass --remote host:port", m.DisplayName())
	}

	local := tables.New(
		tables.WithLogger(logger),
		tables.WithPauseHook(func(paused bool) {
			logger.Debug("shared engine dsp", "paused", paused)
		}),
	)
	for _, t := range m.Tables {
		local.Declare(t.Name, t.Size)
	}
	return local, local, func() {}, nil
}

func summarize(runID string, m *manifest.Manifest, order bake.Order, remote bool, results []bake.TaskResult, elapsed time.Duration) BakeSummary {
	s := BakeSummary{
		RunID:     runID,
		Manifest:  m.DisplayName(),
		Order:     order.String(),
		Remote:    remote,
		Tasks:     len(results),
		ElapsedMS: elapsed.Milliseconds(),
		Results:   make([]TaskLine, 0, len(results)),
	}
	for _, r := range results {
		line := TaskLine{
			Seq:        r.Seq,
			Array:      r.Array,
			Status:     string(r.Status),
			SampleRate: r.SampleRate,
			Frames:     r.RenderedFrames,
			Dropped:    r.DroppedFrames(),
			Capacity:   r.Capacity,
			Action:     string(r.Reconcile),
		}
		if r.Err != nil {
			line.Error = r.Err.Error()
		}
		switch r.Status {
		case bake.StatusRendered:
			s.Rendered++
		case bake.StatusDegraded:
			s.Degraded++
		case bake.StatusFailed:
			s.Failed++
		}
		if r.Status != bake.StatusFailed {
			s.Frames += r.RenderedFrames
		}
		s.Results = append(s.Results, line)
	}
	s.Bytes = s.Frames * 4
	return s
}

func outputBakeSummary(formatter *OutputFormatter, s BakeSummary) error {
	var failErr error
	if s.Failed > 0 {
		failErr = NewExitError(ExitFailure, fmt.Sprintf("%d task(s) failed", s.Failed))
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: s, RunID: s.RunID}
		if failErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeTasksFailed, Message: failErr.Error()}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
		return failErr
	}

	elapsed := durafmt.Parse(time.Duration(s.ElapsedMS) * time.Millisecond).LimitFirstN(2).String()
	fmt.Fprintf(formatter.Writer, "\nBaked %d task(s) from %s (%d rendered, %d degraded, %d failed)\n",
		s.Tasks, s.Manifest, s.Rendered, s.Degraded, s.Failed)
	fmt.Fprintf(formatter.Writer, "%s frames, %s of table data in %s\n",
		humanize.Comma(int64(s.Frames)), humanize.Bytes(uint64(s.Bytes)), elapsed)
	fmt.Fprintf(formatter.Writer, "run %s\n", s.RunID)
	return failErr
}

func statusMark(status bake.TaskStatus) string {
	switch status {
	case bake.StatusRendered:
		return "✓"
	case bake.StatusDegraded:
		return "!"
	default:
		return "✗"
	}
}

// playTables plays every registered table on one device opened at
// deviceRate; oto allows a single context per process.
func playTables(ctx context.Context, local *tables.Engine, results []TaskLine, deviceRate int, formatter *OutputFormatter) error {
	queue := playbackQueue(local, results)
	if len(queue) == 0 {
		return nil
	}
	player, err := playback.New(deviceRate)
	if err != nil {
		return err
	}
	for _, q := range queue {
		formatter.VerboseLog("Playing %s (%d Hz)", q.array, q.sampleRate)
		if err := player.Play(ctx, q.samples, q.sampleRate); err != nil {
			return err
		}
	}
	return nil
}

type queuedTable struct {
	array      string
	samples    []float32
	sampleRate int
}

// playbackQueue lists the baked tables in result order with the rate each
// was rendered at. Failed tasks and undeclared tables are skipped.
func playbackQueue(local *tables.Engine, results []TaskLine) []queuedTable {
	var queue []queuedTable
	for _, r := range results {
		if r.Status == string(bake.StatusFailed) {
			continue
		}
		samples, ok := local.Read(r.Array)
		if !ok {
			continue
		}
		queue = append(queue, queuedTable{array: r.Array, samples: samples, sampleRate: r.SampleRate})
	}
	return queue
}

// outputCommandError reports a command-level failure (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string, err error) error {
	var details interface{}
	full := message
	if err != nil {
		details = err.Error()
		full = fmt.Sprintf("%s: %v", message, err)
	}
	_ = formatter.Error(code, full, details)
	return WrapExitError(ExitCommandError, message, err)
}
