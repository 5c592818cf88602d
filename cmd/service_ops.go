package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guardctl/internal/orchestrator"
)

// newRunOrchestrator loads the manifest and wires an orchestrator for
// verbs that operate on already-orchestrated services.
func newRunOrchestrator() (*orchestrator.Orchestrator, error) {
	manifest, err := loadManifest()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(newEngine(), manifest, activeProfiles), nil
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop and remove all services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			orch, err := newRunOrchestrator()
			if err != nil {
				return err
			}
			if err := orch.Teardown(ctx); err != nil {
				return err
			}
			fmt.Println("All services stopped.")
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart all services in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			orch, err := newRunOrchestrator()
			if err != nil {
				return err
			}
			if err := orch.RestartAll(ctx); err != nil {
				return err
			}
			fmt.Println(orch.AccessReport())
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var tail int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show aggregated service logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			orch, err := newRunOrchestrator()
			if err != nil {
				return err
			}
			if follow {
				return orch.FollowLogs(ctx, os.Stdout, tail)
			}
			logs, err := orch.Logs(ctx, tail)
			if err != nil {
				return err
			}
			fmt.Print(logs)
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 100, "Number of log lines per service")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new output until interrupted")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Stop all services and prune unused engine artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			orch, err := newRunOrchestrator()
			if err != nil {
				return err
			}
			if err := orch.Cleanup(ctx); err != nil {
				return err
			}
			fmt.Println("Services removed and engine artifacts pruned.")
			return nil
		},
	}
}
