package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CreateVersionCommand creates the version command.
// The version string is passed in because it's set at build time in main.go.
func CreateVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v", "ver"},
		Short:   "Show cortexlog version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s (cortexlog)\n", version)
		},
	}
}
