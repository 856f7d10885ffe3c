package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/gate"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run the quality gate for a finished render",
	Long: `Evaluate the rendered MP4 of a run against the structural checks and
write the pass/fail decision artifact. A fail decision exits nonzero after
the artifact is on disk.`,
	RunE: runGate,
}

var gateRunID string

func init() {
	gateCmd.Flags().StringVar(&gateRunID, "run-id", "", "run identifier (required)")
	gateCmd.MarkFlagRequired("run-id")

	rootCmd.AddCommand(gateCmd)
}

func runGate(cmd *cobra.Command, args []string) error {
	store, _, err := environment()
	if err != nil {
		return err
	}

	decision, err := gate.Evaluate(cmd.Context(), store, gateRunID, gate.Options{})
	if err != nil {
		return err
	}
	fmt.Printf("quality gate: %s\n", decision.Decision)
	return nil
}
