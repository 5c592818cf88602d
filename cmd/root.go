package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"guardctl/pkg/logging"
)

// debugLogging enables verbose logging across the application.
var debugLogging bool

// activeProfiles selects non-default service profiles for this run.
var activeProfiles []string

// rootCmd represents the base command when called without any subcommands.
// Running guardctl with no verb performs the full setup pipeline.
var rootCmd = &cobra.Command{
	Use:   "guardctl",
	Short: "Deploy and supervise the guard fall-detection services",
	Long: `guardctl validates preconditions, prepares the host environment
(display forwarding, camera device), builds and launches the guard
services in dependency order, and keeps them running under health
checks with a bounded restart budget.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failed builds, missing preconditions)
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// No verb supplied: default to setup.
		return runSetup(cmd, args)
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if debugLogging {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "guardctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringSliceVar(&activeProfiles, "profile", nil, "Activate additional service profiles (e.g. production)")

	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
