package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/pipeline"
	"github.com/castline/castline/internal/pipeline/handlers"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipeline plan for one run",
	Long: `Execute the steps of a pipeline plan in declared order against a run
directory. A plan whose steps all set config.dry_run=true executes in
zero-write mode and only reports planned output paths.`,
	RunE: runRun,
}

var (
	runPlanPath string
	runID       string
)

func init() {
	runCmd.Flags().StringVar(&runPlanPath, "plan", "", "path to the pipeline plan YAML (required)")
	runCmd.Flags().StringVar(&runID, "run-id", "", "run identifier, a single path segment (required)")
	runCmd.MarkFlagRequired("plan")
	runCmd.MarkFlagRequired("run-id")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	store, cfg, err := environment()
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(store, handlers.DefaultRegistry(), cfg)
	summary, err := runner.Run(runPlanPath, runID)
	if err != nil {
		return err
	}
	if summary.Status == pipeline.StatusDisabled {
		fmt.Println("pipeline disabled, nothing executed")
		return nil
	}
	fmt.Printf("pipeline %s: %s (%d/%d steps)\n",
		summary.Pipeline, summary.Status, summary.Successful, summary.TotalSteps)
	return nil
}
