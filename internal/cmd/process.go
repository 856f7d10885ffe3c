package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/observability"
	"github.com/castline/castline/internal/supervisor"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Supervise an external render or build process",
}

var processRunCmd = &cobra.Command{
	Use:   "run -- <command> [args...]",
	Short: "Run one command under supervision until it finishes",
	Long: `Spawn the command under the supervisor, stream its tagged output to
output/logs/<key>.log, and wait for completion. Progress is read from
"progress=<n>%" lines and, when configured, a sidecar file. Cancelling the
invocation stops the process; a stop always reports stopped regardless of
the exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcessRun,
}

var (
	processKey          string
	processProgressFile string
	processMetricsAddr  string
)

func init() {
	processRunCmd.Flags().StringVar(&processKey, "key", "default", "stable job key")
	processRunCmd.Flags().StringVar(&processProgressFile, "progress-file", "", "repository-relative progress sidecar")
	processRunCmd.Flags().StringVar(&processMetricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address while running")

	processCmd.AddCommand(processRunCmd)
	rootCmd.AddCommand(processCmd)
}

func runProcessRun(cmd *cobra.Command, args []string) error {
	store, cfg, err := environment()
	if err != nil {
		return err
	}
	sup := supervisor.New(store, cfg)

	if processMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		go http.ListenAndServe(processMetricsAddr, mux)
	}

	status, err := sup.Start(processKey, supervisor.StartOptions{
		Command:      args,
		ProgressFile: processProgressFile,
	})
	if err != nil {
		return err
	}
	if status.State == supervisor.StateDisabled {
		fmt.Println("pipeline disabled, process not started")
		return nil
	}

	// A cancelled context stops the supervised process before we exit.
	done := make(chan supervisor.Status, 1)
	go func() { done <- sup.Wait(processKey) }()

	select {
	case status = <-done:
	case <-cmd.Context().Done():
		status, _ = sup.Stop(processKey)
	}

	fmt.Printf("process %s: %s (progress %d%%)\n", processKey, status.State, status.Progress)
	if status.State == supervisor.StateError {
		return fmt.Errorf("supervised process failed: %s", status.Error)
	}
	return nil
}
