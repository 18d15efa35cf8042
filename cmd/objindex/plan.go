package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planLimit int

func init() {
	planCmd.Flags().IntVar(&planLimit, "limit", 50, "objects to list, 0 lists all")
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a run would index without indexing anything",
	Long: `Plan checks the run preconditions and lists the objects whose archive is
missing or stale. No object is indexed and nothing is written to the ledger.
The precondition checks create the output root and the scratch directory if
they do not exist.

Examples:
  objindex plan --input /data/objects --output /data/index
  objindex plan -i /data/objects -o /data/index --limit 0`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.config.RunConfig()
	if err != nil {
		return err
	}

	plan, err := a.runner.Plan(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	st := plan.Stats
	fmt.Fprintf(out, "projects %d, candidates %d, up to date %d, oversized %d, excluded %d, unmappable %d\n",
		st.Projects, st.Candidates, st.UpToDate, st.Oversized, st.Excluded, st.Unmappable)
	fmt.Fprintf(out, "%d objects to index\n", st.Planned)

	for i, job := range plan.Jobs {
		if planLimit > 0 && i == planLimit {
			fmt.Fprintf(out, "  ... and %d more\n", len(plan.Jobs)-planLimit)
			break
		}
		fmt.Fprintf(out, "  %s -> %s\n", job.ObjectPath, job.IndexedPath)
	}
	return nil
}
