package cmd

import (
	"github.com/spf13/cobra"
)

// detachAfterLaunch skips attaching the supervisor after a launch.
var detachAfterLaunch bool

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Validate, prepare the host, and launch all services",
		Long: `setup runs the full first-run pipeline: it validates that required
artifacts exist, prepares the host environment (camera probe, display
forwarding, environment file), rebuilds every service image without
cache, launches the services in dependency order, and then supervises
them until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runSetup,
	}
	cmd.Flags().BoolVarP(&detachAfterLaunch, "detach", "d", false, "Exit after launching instead of supervising")
	return cmd
}

func runSetup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	return runPipeline(ctx, true, detachAfterLaunch)
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch all services on an already prepared host",
		Long: `start runs the launch pipeline without environment preparation:
preflight validation, image rebuild, dependency-ordered start, and
supervision. Use setup for the first run on a host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runPipeline(ctx, false, detachAfterLaunch)
		},
	}
	cmd.Flags().BoolVarP(&detachAfterLaunch, "detach", "d", false, "Exit after launching instead of supervising")
	return cmd
}
