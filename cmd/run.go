// File: cmd/run.go
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/observability"
)

// newRunCmd creates the run command: execute a script under healing
// supervision.
func newRunCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "run <script> [-- script-args...]",
		Short: "Run a script and heal it if it fails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			scriptPath := args[0]
			scriptArgs := args[1:]

			kind := schemas.TargetKind(target)
			if target == "" {
				kind = targetForPath(scriptPath)
			}

			eng, err := buildEngine(cmd.Context(), logger, appCfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			session, err := eng.orchestrator.RunScript(cmd.Context(), kind, scriptPath, scriptArgs)
			if session != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (incident %s, %d attempt(s))\n",
					scriptPath, session.FinalResult, session.IncidentID, session.TotalAttempts)
			} else if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: completed without errors\n", scriptPath)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "target environment (default inferred from the file extension)")
	cmd.Flags().String("level", "", "validation level (quick, standard, thorough)")
	_ = viper.BindPFlag("healing.validation_level", cmd.Flags().Lookup("level"))

	return cmd
}

// targetForPath infers the environment from the artifact's extension,
// falling back to shell.
func targetForPath(path string) schemas.TargetKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return schemas.TargetPython
	case ".tf":
		return schemas.TargetTerraform
	case ".yml", ".yaml":
		return schemas.TargetAnsible
	default:
		return schemas.TargetShell
	}
}
