package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"guardctl/internal/engine"
)

var (
	statusRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusStoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusAbsentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the current state of every service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			manifest, err := loadManifest()
			if err != nil {
				return err
			}
			eng := newEngine()
			if err := eng.CheckAvailable(ctx); err != nil {
				return err
			}

			for _, svc := range manifest.ServicesForProfiles(activeProfiles) {
				state, err := eng.State(ctx, manifest.ContainerName(svc.Name))
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %s\n", svc.Name, renderState(state))
			}
			return nil
		},
	}
}

func renderState(state engine.ContainerState) string {
	switch state {
	case engine.StateRunning:
		return statusRunningStyle.Render(string(state))
	case engine.StateAbsent:
		return statusAbsentStyle.Render("not created")
	default:
		return statusStoppedStyle.Render(string(state))
	}
}
