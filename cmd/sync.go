package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/ingest"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.RunSync(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
				return perr
			}
			if errors.Is(err, ingest.ErrSyncFailed) {
				appInstance.Logger().Error("sync failed", zap.Error(err))
			}
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			return nil
		},
	}
}
