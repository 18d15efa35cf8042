package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/objindex/internal/executor"
	"github.com/dshills/objindex/internal/pipeline"
	"github.com/dshills/objindex/internal/planner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Index every object whose archive is missing or stale",
	Long: `Run plans and executes one indexing run.

Objects with a valid archive are skipped, so an interrupted run can simply
be started again. Failed jobs are reported at the end and retried by the
next run.

Examples:
  # Index with the built-in indexer
  objindex run --input /data/objects --output /data/index

  # Use an external engine, 8 workers
  objindex run -i /data/objects -o /data/index -j 8 \
    --engine analyzer --engine -o --engine {workdir} --engine {object}`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.config.RunConfig()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	hooks := pipeline.Hooks{
		OnPlan: func(p *planner.Plan) {
			fmt.Fprintf(os.Stderr, "%d candidates, %d up to date, %d to index\n",
				p.Stats.Candidates, p.Stats.UpToDate, p.Stats.Planned)
			if p.Stats.Planned > 0 {
				bar = newProgressBar(p.Stats.Planned)
			}
		},
		OnProgress: func(p executor.Progress) {
			if bar != nil {
				_ = bar.Set(p.Done)
			}
		},
	}

	summary, err := a.runner.Run(cmd.Context(), cfg, hooks)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if summary != nil {
		printSummary(cmd, summary)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", summary.Failed, summary.Plan.Planned)
	}
	return nil
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s in %s\n", s.RunID, s.Status, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  candidates %d, up to date %d, oversized %d, unmappable %d\n",
		s.Plan.Candidates, s.Plan.UpToDate, s.Plan.Oversized, s.Plan.Unmappable)
	fmt.Fprintf(out, "  indexed %s of %s planned, %d failed",
		humanize.Comma(int64(s.Completed)), humanize.Comma(int64(s.Plan.Planned)), s.Failed)
	if s.Undispatched > 0 {
		fmt.Fprintf(out, ", %d not started", s.Undispatched)
	}
	fmt.Fprintln(out)

	for _, f := range s.Failures {
		fmt.Fprintf(out, "  FAILED %s (%d attempts): %v\n", f.Job.ObjectPath, f.Attempts, f.Err)
	}
}
