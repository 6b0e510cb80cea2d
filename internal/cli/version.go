package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/site-archiver/internal/build"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cobraCmd *cobra.Command, _ []string) {
			fmt.Fprintf(cobraCmd.OutOrStdout(), "site-archiver version %s\n", build.Version())
			fmt.Fprintf(cobraCmd.OutOrStdout(), "  commit: %s\n", build.Commit())
		},
	}
}

func init() {
	rootCmd.AddCommand(NewVersionCmd())
}
