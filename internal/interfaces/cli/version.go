package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd returns the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate})
		},
	}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("pdbsieve %s (commit: %s, built: %s)\n", b.Version, b.Commit, b.BuildDate)
}
