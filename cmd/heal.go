// File: cmd/heal.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/observability"
)

// healInput is one captured failure to ingest: a named blob of tool
// output plus the exit code it ended with.
type healInput struct {
	Name     string
	Output   string
	ExitCode int
}

// outputHealer is the slice of the orchestrator the heal command needs.
type outputHealer interface {
	HealFromOutput(ctx context.Context, target schemas.TargetKind, artifactPath, stdout, stderr string, exitCode int) *schemas.HealingSession
}

// newHealCmd creates the heal command: ingest captured output (from files
// or stdin) and remediate whatever failure it describes.
func newHealCmd() *cobra.Command {
	var (
		target   string
		artifact string
		exitCode int
	)

	cmd := &cobra.Command{
		Use:   "heal [output-file...]",
		Short: "Heal a failure from captured tool output",
		Long: `Reads captured output (a traceback, a failed terraform plan, an
ansible run) from the given files, or from stdin when no file is named,
and runs the remediation pipeline against it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			inputs, err := collectInputs(args, exitCode)
			if err != nil {
				return err
			}

			eng, err := buildEngine(cmd.Context(), logger, appCfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			return runHeal(cmd.Context(), logger, cmd.OutOrStdout(),
				eng.orchestrator, schemas.TargetKind(target), artifact, inputs)
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "python", "target environment (python, terraform, ansible, bash)")
	cmd.Flags().StringVarP(&artifact, "file", "f", "", "path to the artifact the output came from")
	cmd.Flags().IntVar(&exitCode, "exit-code", 1, "exit code of the failed run")
	cmd.Flags().String("level", "", "validation level (quick, standard, thorough)")
	_ = viper.BindPFlag("healing.validation_level", cmd.Flags().Lookup("level"))

	return cmd
}

// collectInputs reads each named file, or stdin when none are given.
func collectInputs(args []string, exitCode int) ([]healInput, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return []healInput{{Name: "stdin", Output: string(data), ExitCode: exitCode}}, nil
	}

	inputs := make([]healInput, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		inputs = append(inputs, healInput{Name: path, Output: string(data), ExitCode: exitCode})
	}
	return inputs, nil
}

// runHeal heals each input concurrently and reports per-input outcomes.
// It returns an error when any input carried a failure that could not be
// healed.
func runHeal(ctx context.Context, logger *zap.Logger, out io.Writer, healer outputHealer, target schemas.TargetKind, artifact string, inputs []healInput) error {
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, input := range inputs {
		input := input
		g.Go(func() error {
			session := healer.HealFromOutput(gctx, target, artifact, "", input.Output, input.ExitCode)

			mu.Lock()
			defer mu.Unlock()
			if session == nil {
				fmt.Fprintf(out, "%s: no failure detected\n", input.Name)
				return nil
			}
			fmt.Fprintf(out, "%s: %s (incident %s, %d attempt(s))\n",
				input.Name, session.FinalResult, session.IncidentID, session.TotalAttempts)
			if !session.Succeeded() {
				failed++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		logger.Warn("some inputs could not be healed", zap.Int("failed", failed))
		return fmt.Errorf("%d of %d input(s) could not be healed", failed, len(inputs))
	}
	return nil
}
