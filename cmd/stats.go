// File: cmd/stats.go
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mend-cli/internal/audit"
	"github.com/xkilldash9x/mend-cli/internal/observability"
)

// newStatsCmd creates the stats command: summarize the audit trail.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize past healing activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			trail, err := audit.NewTrail(logger, appCfg.Audit)
			if err != nil {
				return err
			}
			defer trail.Close()

			stats, err := trail.Statistics()
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
