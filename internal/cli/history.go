package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/spf13/cobra"

	"github.com/Mr00Anderson/gdx-pd/internal/bake"
	"github.com/Mr00Anderson/gdx-pd/internal/store"
)

// Error codes reported by the history command.
const (
	ErrCodeRunNotFound = "E_RUN_NOT_FOUND"
	ErrCodeUsage       = "E_USAGE"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Array    string

	// Now overrides the reference time for relative timestamps (for testing).
	Now func() time.Time
}

// RunSummary is one journaled run in history output.
type RunSummary struct {
	ID          string    `json:"id"`
	Manifest    string    `json:"manifest"`
	Tasks       int       `json:"tasks"`
	Order       string    `json:"order"`
	Remote      bool      `json:"remote"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	StartedSeq  int64     `json:"started_seq"`
	FinishedSeq int64     `json:"finished_seq"`
}

// ResultSummary is one journaled task result in history output.
type ResultSummary struct {
	RunID     string `json:"run_id"`
	Seq       int64  `json:"seq"`
	Array     string `json:"array"`
	Patch     string `json:"patch"`
	Status    string `json:"status"`
	Frames    int    `json:"frames"`
	Requested int    `json:"requested"`
	Capacity  int    `json:"capacity"`
	Reconcile string `json:"reconcile"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunDetail is a run together with its results.
type RunDetail struct {
	Run     RunSummary      `json:"run"`
	Results []ResultSummary `json:"results"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}
	return newHistoryCommand(opts)
}

func newHistoryCommand(opts *HistoryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show journaled bake runs",
		Long: `List recent bake runs from the journal, show the results of one run,
or show every result written to one array.

Example:
  pdbake history --db ./bake.db
  pdbake history --db ./bake.db 01928c4e-7d1a-7c3e-9a2b-3f4d5e6f7a8b
  pdbake history --db ./bake.db --array kick`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "bake.db", "SQLite journal to read")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.Array, "array", "", "show results written to this array")

	return cmd
}

func runHistory(opts *HistoryOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	if runID != "" && opts.Array != "" {
		_ = formatter.Error(ErrCodeUsage, "run id and --array are mutually exclusive", nil)
		return NewExitError(ExitCommandError, "run id and --array are mutually exclusive")
	}

	formatter.VerboseLog("Opening journal %s", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	switch {
	case runID != "":
		run, err := st.ReadRun(ctx, runID)
		if errors.Is(err, store.ErrRunNotFound) {
			_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("run %s not found", runID), nil)
			return WrapExitError(ExitFailure, "run not found", err)
		}
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, "failed to read run", err)
		}
		results, err := st.ReadResults(ctx, runID)
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, "failed to read results", err)
		}
		detail := RunDetail{Run: summarizeRun(run), Results: summarizeResults(results)}
		if formatter.Format == "json" {
			return formatter.Respond(CLIResponse{Status: "ok", Data: detail, RunID: run.ID})
		}
		printRun(formatter, detail.Run, now())
		printResults(formatter, detail.Results)
		return nil

	case opts.Array != "":
		results, err := st.ResultsForArray(ctx, opts.Array)
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, "failed to read results", err)
		}
		summaries := summarizeResults(results)
		if formatter.Format == "json" {
			return formatter.Success(summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintf(formatter.Writer, "no results for array %s\n", opts.Array)
			return nil
		}
		printResults(formatter, summaries)
		return nil

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, "failed to list runs", err)
		}
		summaries := make([]RunSummary, 0, len(runs))
		for _, r := range runs {
			summaries = append(summaries, summarizeRun(r))
		}
		if formatter.Format == "json" {
			return formatter.Success(summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(formatter.Writer, "no runs recorded")
			return nil
		}
		for _, r := range summaries {
			printRun(formatter, r, now())
		}
		return nil
	}
}

func summarizeRun(r bake.RunRecord) RunSummary {
	return RunSummary{
		ID:          r.ID,
		Manifest:    r.Manifest,
		Tasks:       r.TaskCount,
		Order:       r.Order.String(),
		Remote:      r.Remote,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		StartedSeq:  r.StartedSeq,
		FinishedSeq: r.FinishedSeq,
	}
}

func summarizeResults(results []store.ResultRecord) []ResultSummary {
	out := make([]ResultSummary, 0, len(results))
	for _, r := range results {
		out = append(out, ResultSummary{
			RunID:     r.RunID,
			Seq:       r.Seq,
			Array:     r.Array,
			Patch:     r.Patch,
			Status:    string(r.Status),
			Frames:    r.RenderedFrames,
			Requested: r.RequestedFrames,
			Capacity:  r.Capacity,
			Reconcile: string(r.Reconcile),
			ErrorCode: string(r.ErrorCode),
			Error:     r.Error,
		})
	}
	return out
}

func printRun(formatter *OutputFormatter, r RunSummary, now time.Time) {
	took := "-"
	if !r.FinishedAt.IsZero() {
		took = durafmt.Parse(r.FinishedAt.Sub(r.StartedAt)).LimitFirstN(2).String()
	}
	fmt.Fprintf(formatter.Writer, "%s  %-12s %-9s %d tasks  %s  started %s  took %s\n",
		r.ID, r.Manifest, r.Status, r.Tasks, r.Order,
		humanize.RelTime(r.StartedAt, now, "ago", "from now"), took)
}

func printResults(formatter *OutputFormatter, results []ResultSummary) {
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tARRAY\tSTATUS\tFRAMES\tCAPACITY\tRECONCILE\tERROR")
	for _, r := range results {
		capacity := "?"
		if r.Capacity != bake.UnknownCapacity {
			capacity = humanize.Comma(int64(r.Capacity))
		}
		errText := "-"
		if r.ErrorCode != "" {
			errText = r.ErrorCode
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s/%s\t%s\t%s\t%s\n",
			r.Seq, r.Array, r.Status,
			humanize.Comma(int64(r.Frames)), humanize.Comma(int64(r.Requested)),
			capacity, r.Reconcile, errText)
	}
	_ = tw.Flush()
}
