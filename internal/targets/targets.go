// File: internal/targets/targets.go

// Package targets holds the per-environment adapters: each one knows how to
// execute its artifact kind, probe its syntax, parse its tool output into a
// DetectedError, and volunteer an environment-specific fix.
package targets

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

// Adapter is the collaborator contract the healing core requires from each
// target environment.
type Adapter interface {
	Kind() schemas.TargetKind
	// Execute runs the artifact and captures its outcome. The returned
	// error covers spawn-level failures only; a nonzero exit is reported
	// through exitCode, not err.
	Execute(ctx context.Context, artifactPath string, args []string, timeout time.Duration) (exitCode int, stdout, stderr string, err error)
	CheckSyntax(artifactPath string) (valid bool, message string)
	// ParseError turns captured output into a DetectedError, or nil when
	// the output carries no failure.
	ParseError(artifactPath, stdout, stderr string, exitCode int) *schemas.DetectedError
	// GenerateFix volunteers one environment-specific suggestion, or nil.
	GenerateFix(detected schemas.DetectedError) *schemas.FixSuggestion
}

// Registry resolves adapters by target kind.
type Registry map[schemas.TargetKind]Adapter

// NewRegistry wires up the four stock adapters.
func NewRegistry(logger *zap.Logger, cfg *config.Config, classifier *classify.Classifier) Registry {
	return Registry{
		schemas.TargetPython:    NewPythonAdapter(logger, cfg.Targets.Python, classifier),
		schemas.TargetTerraform: NewTerraformAdapter(logger, cfg.Targets.Terraform, classifier),
		schemas.TargetAnsible:   NewAnsibleAdapter(logger, cfg.Targets.Ansible, classifier),
		schemas.TargetShell:     NewShellAdapter(logger, cfg.Targets.Shell, classifier),
	}
}

// Get returns the adapter for a kind, or nil when none is registered.
func (r Registry) Get(kind schemas.TargetKind) Adapter {
	return r[kind]
}

// runCommand spawns a process with a bounded timeout and captures stdout
// and stderr separately. Exit status is folded into exitCode; err is
// reserved for failures to spawn at all.
func runCommand(ctx context.Context, timeout time.Duration, dir, name string, args ...string) (int, string, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return 0, stdout.String(), stderr.String(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stdout.String(), stderr.String(), nil
	}
	return -1, stdout.String(), stderr.String(), err
}

// toolAvailable reports whether a binary resolves on PATH.
func toolAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
