// File: cmd/watch.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/heal"
	"github.com/xkilldash9x/mend-cli/internal/observability"
	"github.com/xkilldash9x/mend-cli/internal/watch"
)

// newWatchCmd creates the watch command: tail a log file and heal every
// failure that shows up in it. Runs until interrupted.
func newWatchCmd() *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a log file and heal failures as they appear",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			ctx := cmd.Context()

			if logPath != "" {
				appCfg.Watch.LogPath = logPath
			}

			eng, err := buildEngine(ctx, logger, appCfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			errorChan := make(chan schemas.DetectedError, 16)
			watcher, err := watch.NewWatcher(logger, appCfg.Watch, eng.classifier, errorChan)
			if err != nil {
				return err
			}
			if err := watcher.Start(ctx); err != nil {
				return err
			}

			logger.Info("watching for failures", zap.String("log_path", appCfg.Watch.LogPath))
			for {
				select {
				case <-ctx.Done():
					return nil
				case detected := <-errorChan:
					session := eng.orchestrator.Heal(ctx, detected, heal.Options{})
					logger.Info("healing session finished for watched failure",
						zap.String("incident_id", session.IncidentID),
						zap.String("final_result", string(session.FinalResult)))
				}
			}
		},
	}

	cmd.Flags().StringVar(&logPath, "log", "", "log file to watch (overrides watch.log_path)")
	return cmd
}
