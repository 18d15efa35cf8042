package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/objindex/internal/storage"
	"github.com/dshills/objindex/pkg/types"
)

var (
	statusLimit    int
	statusFailures bool
)

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "number of runs to show")
	statusCmd.Flags().BoolVar(&statusFailures, "failures", false, "list the failed objects of each run")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs from the ledger",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.ledger == nil {
		return fmt.Errorf("run ledger is disabled")
	}

	ctx := cmd.Context()
	runs, err := a.ledger.ListRuns(ctx, statusLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	for _, run := range runs {
		fmt.Fprintln(out, formatRun(run, time.Now()))
		if run.Error != "" {
			fmt.Fprintf(out, "    error: %s\n", run.Error)
		}
		if !statusFailures || run.Failed == 0 {
			continue
		}
		failed, err := a.ledger.ListJobs(ctx, run.ID, types.JobFailed)
		if err != nil {
			return err
		}
		for _, j := range failed {
			fmt.Fprintf(out, "    FAILED %s: %s\n", j.ObjectPath, j.Error)
		}
	}
	return nil
}

// formatRun renders one ledger row.
func formatRun(run *storage.Run, now time.Time) string {
	took := "running"
	if !run.FinishedAt.IsZero() {
		took = run.Duration().Round(time.Second).String()
	}
	return fmt.Sprintf("%s  %-9s %s (%s)  %s -> %s  planned %s, indexed %s, failed %s",
		shortID(run.ID), run.Status, humanize.RelTime(run.StartedAt, now, "ago", "from now"), took,
		run.InputRoot, run.OutputRoot,
		humanize.Comma(int64(run.Planned)), humanize.Comma(int64(run.Completed)), humanize.Comma(int64(run.Failed)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
