// File: internal/validate/validator.go

// Package validate checks whether an applied fix actually helped, at three
// escalating levels: syntax only, syntax plus style, and syntax plus style
// plus tests and an optional rerun of the original operation.
package validate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/config"
	"github.com/xkilldash9x/mend-cli/internal/targets"
)

// Level selects how much verification runs after a fix.
type Level int

const (
	// LevelQuick checks syntax only.
	LevelQuick Level = iota
	// LevelStandard adds an advisory lint pass.
	LevelStandard
	// LevelThorough adds test discovery and the original-error rerun.
	LevelThorough
)

// ParseLevel maps a configuration string to a Level, defaulting to Standard.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "quick":
		return LevelQuick
	case "thorough":
		return LevelThorough
	default:
		return LevelStandard
	}
}

func (l Level) String() string {
	switch l {
	case LevelQuick:
		return "quick"
	case LevelThorough:
		return "thorough"
	default:
		return "standard"
	}
}

// RerunFunc re-invokes the operation that originally failed. A returned
// error means the original problem is still present.
type RerunFunc func(ctx context.Context) error

// Validator verifies fixes through the target adapters. Lint output is
// advisory: it is recorded but never flips the overall verdict.
type Validator struct {
	logger   *zap.Logger
	cfg      *config.Config
	adapters targets.Registry
}

// NewValidator creates a validator over the given adapter registry.
func NewValidator(logger *zap.Logger, cfg *config.Config, adapters targets.Registry) *Validator {
	return &Validator{
		logger:   logger.Named("validator"),
		cfg:      cfg,
		adapters: adapters,
	}
}

// Validate checks one applied fix. A fix that was never applied fails
// immediately; a dry-run fix passes trivially since nothing on disk
// changed. Overall success is the conjunction of: syntax valid, tests
// passed (or not run), and original error resolved (or rerun not
// requested).
func (v *Validator) Validate(ctx context.Context, fixResult schemas.FixResult, detected schemas.DetectedError, level Level, rerun RerunFunc) schemas.ValidationResult {
	result := schemas.ValidationResult{}

	if !fixResult.Success {
		result.Messages = append(result.Messages, "fix was not applied; nothing to validate")
		return result
	}
	if fixResult.DryRun {
		result.Success = true
		result.SyntaxValid = true
		result.Messages = append(result.Messages, "dry run; validation skipped")
		return result
	}

	artifactPath := detected.Location.File
	if fixResult.Rollback != nil && fixResult.Rollback.TargetPath != "" {
		artifactPath = fixResult.Rollback.TargetPath
	}

	result.SyntaxValid = v.checkSyntax(artifactPath, detected.Target, &result)

	if level >= LevelStandard && artifactPath != "" {
		v.runLint(ctx, artifactPath, detected.Target, &result)
	}

	if level >= LevelThorough {
		v.runTests(ctx, artifactPath, detected.Target, &result)
		if rerun != nil {
			resolved := true
			if err := rerun(ctx); err != nil {
				resolved = false
				result.NewErrors = append(result.NewErrors, err.Error())
				result.Messages = append(result.Messages, "original operation still fails: "+err.Error())
			} else {
				result.Messages = append(result.Messages, "original operation succeeds after fix")
			}
			result.OriginalErrorResolved = &resolved
		}
	}

	result.Success = result.SyntaxValid &&
		(result.TestsPassed == nil || *result.TestsPassed) &&
		(result.OriginalErrorResolved == nil || *result.OriginalErrorResolved)

	v.logger.Debug("validation finished",
		zap.String("level", level.String()),
		zap.Bool("success", result.Success),
		zap.Bool("syntax_valid", result.SyntaxValid))
	return result
}

// checkSyntax probes the artifact through its adapter. Fixes with no
// artifact (command or retry fixes) have nothing to parse and pass.
func (v *Validator) checkSyntax(artifactPath string, target schemas.TargetKind, result *schemas.ValidationResult) bool {
	if artifactPath == "" {
		result.Messages = append(result.Messages, "no artifact to syntax-check")
		return true
	}
	adapter := v.adapters.Get(target)
	if adapter == nil {
		result.Messages = append(result.Messages, fmt.Sprintf("no adapter for target %q; syntax check skipped", target))
		return true
	}
	valid, msg := adapter.CheckSyntax(artifactPath)
	if msg != "" {
		result.Messages = append(result.Messages, msg)
	}
	if !valid {
		result.NewErrors = append(result.NewErrors, msg)
	}
	return valid
}

// runLint runs the configured style pass. Failures and missing linters are
// recorded as warnings only.
func (v *Validator) runLint(ctx context.Context, artifactPath string, target schemas.TargetKind, result *schemas.ValidationResult) {
	template, ok := v.cfg.Validation.LintCommands[string(target)]
	if !ok || template == "" {
		return
	}

	fields := strings.Fields(strings.ReplaceAll(template, "{file}", artifactPath))
	if len(fields) == 0 {
		return
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		passed := true
		result.LintPassed = &passed
		result.Messages = append(result.Messages, fmt.Sprintf("linter %q not available; style check skipped", fields[0]))
		return
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	output, err := cmd.CombinedOutput()
	passed := err == nil
	result.LintPassed = &passed
	if !passed {
		result.Messages = append(result.Messages, "style warnings: "+strings.TrimSpace(string(output)))
	}
}

// runTests locates a test artifact by filename convention and runs the
// configured test command against it. Absence of tests is recorded, not
// penalized.
func (v *Validator) runTests(ctx context.Context, artifactPath string, target schemas.TargetKind, result *schemas.ValidationResult) {
	template, ok := v.cfg.Validation.TestCommands[string(target)]
	if !ok || template == "" || artifactPath == "" {
		return
	}

	testPath := findTestFile(artifactPath, target)
	if testPath == "" {
		result.Messages = append(result.Messages, "no test file found by convention")
		return
	}

	fields := strings.Fields(strings.ReplaceAll(template, "{file}", testPath))
	if len(fields) == 0 {
		return
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		result.Messages = append(result.Messages, fmt.Sprintf("test runner %q not available; tests skipped", fields[0]))
		return
	}

	timeout := time.Duration(v.cfg.Validation.TestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	output, err := cmd.CombinedOutput()
	passed := err == nil
	result.TestsPassed = &passed
	if passed {
		result.Messages = append(result.Messages, "tests passed: "+testPath)
	} else {
		result.Messages = append(result.Messages, "tests failed: "+strings.TrimSpace(string(output)))
		result.NewErrors = append(result.NewErrors, "test suite failed after fix")
	}
}

// findTestFile probes the conventional sibling locations for a test file
// matching the artifact.
func findTestFile(artifactPath string, target schemas.TargetKind) string {
	dir := filepath.Dir(artifactPath)
	base := filepath.Base(artifactPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var candidates []string
	switch target {
	case schemas.TargetPython:
		candidates = []string{
			filepath.Join(dir, "test_"+stem+ext),
			filepath.Join(dir, stem+"_test"+ext),
			filepath.Join(dir, "tests", "test_"+stem+ext),
			filepath.Join(dir, "test", "test_"+stem+ext),
		}
	case schemas.TargetShell:
		candidates = []string{
			filepath.Join(dir, stem+"_test"+ext),
			filepath.Join(dir, "tests", stem+"_test"+ext),
		}
	default:
		return ""
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
