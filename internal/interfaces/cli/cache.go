package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCacheCmd returns the cache maintenance command.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the redis query cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached search result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd.Context())
			defer cancel()

			cache, err := cliCtx.QueryCache()
			if err != nil {
				return err
			}
			n, err := cache.Purge(ctx)
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("purged %d cached queries under %q", n, cache.Prefix()))
			return nil
		},
	})
	return cmd
}
