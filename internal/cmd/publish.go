package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a gate-approved run to the video platform",
	Long: `Upload the rendered MP4 of a run whose quality gate passed. The call
is retried on transient API errors with a fixed backoff; every invocation
writes an outcome artifact, including skips and failures.`,
	RunE: runPublish,
}

var publishRunID string

func init() {
	publishCmd.Flags().StringVar(&publishRunID, "run-id", "", "run identifier (required)")
	publishCmd.MarkFlagRequired("run-id")

	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	store, cfg, err := environment()
	if err != nil {
		return err
	}

	outcome, err := publish.Run(cmd.Context(), store, cfg, publishRunID, publish.Options{})
	if err != nil {
		return err
	}
	if outcome.Reason != "" {
		fmt.Printf("publish: %s (%s)\n", outcome.Status, outcome.Reason)
	} else {
		fmt.Printf("publish: %s video_id=%s attempts=%d\n",
			outcome.Status, outcome.VideoID, outcome.AttemptCount)
	}
	return nil
}
