// File: internal/targets/shell.go
package targets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

// ShellAdapter runs shell scripts. Syntax checking is in-process via a
// bash-dialect parser, so a malformed candidate is rejected without
// spawning a shell.
type ShellAdapter struct {
	logger     *zap.Logger
	cfg        config.ShellConfig
	classifier *classify.Classifier
	parser     *syntax.Parser
}

func NewShellAdapter(logger *zap.Logger, cfg config.ShellConfig, classifier *classify.Classifier) *ShellAdapter {
	return &ShellAdapter{
		logger:     logger.Named("target-shell"),
		cfg:        cfg,
		classifier: classifier,
		parser:     syntax.NewParser(syntax.Variant(syntax.LangBash)),
	}
}

func (a *ShellAdapter) Kind() schemas.TargetKind { return schemas.TargetShell }

func (a *ShellAdapter) shell() string {
	if a.cfg.Shell != "" {
		return a.cfg.Shell
	}
	return "/bin/bash"
}

func (a *ShellAdapter) Execute(ctx context.Context, artifactPath string, args []string, timeout time.Duration) (int, string, string, error) {
	cmdArgs := []string{}
	if a.cfg.StrictMode {
		cmdArgs = append(cmdArgs, "-euo", "pipefail")
	}
	cmdArgs = append(cmdArgs, artifactPath)
	cmdArgs = append(cmdArgs, args...)
	return runCommand(ctx, timeout, "", a.shell(), cmdArgs...)
}

func (a *ShellAdapter) CheckSyntax(artifactPath string) (bool, string) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return false, "cannot read artifact: " + err.Error()
	}
	defer f.Close()

	if _, err := a.parser.Parse(f, artifactPath); err != nil {
		if perr, ok := err.(syntax.ParseError); ok {
			return false, fmt.Sprintf("syntax error near line %d: %s", perr.Pos.Line(), perr.Text)
		}
		return false, err.Error()
	}
	return true, ""
}

func (a *ShellAdapter) ParseError(artifactPath, stdout, stderr string, exitCode int) *schemas.DetectedError {
	return a.classifier.FromOutput(schemas.TargetShell, artifactPath, stdout, stderr, exitCode)
}

func (a *ShellAdapter) GenerateFix(detected schemas.DetectedError) *schemas.FixSuggestion {
	if detected.Kind == schemas.ErrorKindDependency && strings.Contains(detected.Message, "command not found") {
		return &schemas.FixSuggestion{
			Description:    "Refresh the package index before installing the missing command",
			Reasoning:      "A stale package index makes installs of the missing command fail too.",
			Confidence:     schemas.ConfidenceLow,
			Kind:           schemas.FixKindCommand,
			Command:        "apt-get update",
			TargetLocation: detected.Location,
			Priority:       6,
		}
	}
	return nil
}
