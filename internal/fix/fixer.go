// File: internal/fix/fixer.go
package fix

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

// backupTimeLayout is the timestamp embedded in backup file names,
// producing "<name>.<timestamp>.backup".
const backupTimeLayout = "20060102_150405"

// defaultCommandTimeout bounds a spawned fix command when the caller's
// context carries no deadline of its own.
const defaultCommandTimeout = 2 * time.Minute

// SyntaxChecker verifies an artifact parses, used by the sandbox policy
// before a candidate is promoted over the original.
type SyntaxChecker interface {
	CheckSyntax(path string) (valid bool, message string)
}

// Fixer applies one suggestion at a time under the safety policy. It
// reports failure through the FixResult, never through an error return, so
// the retry loop above it can always continue.
type Fixer struct {
	logger   *zap.Logger
	cfg      *config.Config
	limiter  *rate.Limiter
	checkers map[schemas.TargetKind]SyntaxChecker
}

// NewFixer creates a fixer bound to the given safety configuration.
func NewFixer(logger *zap.Logger, cfg *config.Config) *Fixer {
	perMinute := cfg.Safety.CommandsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Fixer{
		logger:   logger.Named("fixer"),
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		checkers: make(map[schemas.TargetKind]SyntaxChecker),
	}
}

// RegisterSyntaxChecker attaches a sandbox syntax probe for one target.
func (f *Fixer) RegisterSyntaxChecker(target schemas.TargetKind, checker SyntaxChecker) {
	f.checkers[target] = checker
}

// Apply routes a suggestion to the matching handler.
func (f *Fixer) Apply(ctx context.Context, suggestion schemas.FixSuggestion, detected schemas.DetectedError) schemas.FixResult {
	switch suggestion.Kind {
	case schemas.FixKindCommand:
		return f.applyCommand(ctx, suggestion)
	case schemas.FixKindCodeChange, schemas.FixKindConfig:
		return f.applyCodeChange(suggestion, detected)
	case schemas.FixKindRetryOnly:
		// Nothing to mutate; the orchestrator reruns the original operation.
		return schemas.FixResult{Success: true, CommandOutput: "retry requested, no changes made"}
	default:
		return failure(fmt.Sprintf("unsupported fix kind %q", suggestion.Kind))
	}
}

// applyCommand runs an external command fix. The allow-list check happens
// before anything else, including dry-run handling, so a disallowed
// command can never spawn in any mode.
func (f *Fixer) applyCommand(ctx context.Context, suggestion schemas.FixSuggestion) schemas.FixResult {
	command := strings.TrimSpace(suggestion.Command)
	if command == "" {
		return failure("suggestion carries no command")
	}
	if !f.cfg.IsCommandAllowed(command) {
		f.logger.Warn("command rejected by allow-list", zap.String("command", command))
		return failure(fmt.Sprintf("command %q is not in the allowed list", strings.Fields(command)[0]))
	}

	if f.cfg.Safety.DryRun {
		return schemas.FixResult{
			Success:       true,
			DryRun:        true,
			CommandOutput: "[DRY RUN] Would execute: " + command,
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return failure(fmt.Sprintf("cancelled while waiting to run command: %v", err))
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, defaultCommandTimeout)
		defer cancel()
	}

	fields := strings.Fields(command)
	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	output, err := cmd.CombinedOutput()

	result := schemas.FixResult{CommandOutput: string(output)}
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("command failed: %v", err)
		f.logger.Warn("fix command failed", zap.String("command", command), zap.Error(err))
		return result
	}
	result.Success = true
	f.logger.Info("fix command succeeded", zap.String("command", command))
	return result
}

// applyCodeChange mutates a text artifact. Order matters: the protected
// path veto first, then content synthesis, then the no-change check, and
// only then any filesystem write — with rollback data captured before the
// original is touched.
func (f *Fixer) applyCodeChange(suggestion schemas.FixSuggestion, detected schemas.DetectedError) schemas.FixResult {
	path := suggestion.TargetLocation.File
	if path == "" {
		path = detected.Location.File
	}
	if path == "" {
		return failure("no target file for code change")
	}
	if f.cfg.IsPathProtected(path) {
		f.logger.Warn("refusing to modify protected path", zap.String("path", path))
		return failure(fmt.Sprintf("path %q is protected", path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return failure(fmt.Sprintf("cannot stat target: %v", err))
	}
	if maxKB := f.cfg.Safety.MaxFileSizeKB; maxKB > 0 && info.Size() > int64(maxKB)*1024 {
		return failure(fmt.Sprintf("target exceeds the %d KB modification limit", maxKB))
	}

	originalBytes, err := os.ReadFile(path)
	if err != nil {
		return failure(fmt.Sprintf("cannot read target: %v", err))
	}
	original := string(originalBytes)

	updated := original
	if suggestion.Replacement != nil && suggestion.Replacement.Old != "" {
		updated = strings.Replace(original, suggestion.Replacement.Old, suggestion.Replacement.New, 1)
	} else {
		updated = transformForKind(detected, original)
	}

	if updated == original {
		// A fix that changes nothing is not a fix.
		return failure("no code changes generated")
	}

	diff := unifiedDiff(path, original, updated)

	if f.cfg.Safety.DryRun {
		return schemas.FixResult{Success: true, DryRun: true, Diff: diff}
	}

	rollback := &schemas.RollbackInfo{TargetPath: path, OriginalContent: original, Mode: info.Mode()}
	if f.cfg.Safety.BackupBeforeFix {
		backupPath, err := writeBackup(path, originalBytes)
		if err != nil {
			return failure(fmt.Sprintf("backup failed, refusing to modify: %v", err))
		}
		rollback.BackupPath = backupPath
	}

	if err := f.writeCandidate(path, updated, detected.Target, info.Mode()); err != nil {
		// The write went wrong; put the original back if we can.
		f.restore(rollback)
		return schemas.FixResult{Rollback: rollback, ErrorMessage: err.Error()}
	}

	f.logger.Info("applied code change",
		zap.String("path", path),
		zap.String("backup", rollback.BackupPath))
	return schemas.FixResult{Success: true, Diff: diff, Rollback: rollback}
}

// writeCandidate writes the new content, optionally staging it through a
// temp file that must pass a syntax check before being renamed over the
// original (the sandbox policy).
func (f *Fixer) writeCandidate(path, content string, target schemas.TargetKind, mode os.FileMode) error {
	if !f.cfg.Safety.SandboxExecution {
		if err := os.WriteFile(path, []byte(content), mode); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".candidate-*")
	if err != nil {
		return fmt.Errorf("sandbox temp file failed: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("sandbox write failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sandbox close failed: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("sandbox chmod failed: %w", err)
	}

	if checker, ok := f.checkers[target]; ok {
		if valid, msg := checker.CheckSyntax(tmpPath); !valid {
			return fmt.Errorf("candidate failed syntax check: %s", msg)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("sandbox promote failed: %w", err)
	}
	return nil
}

// Rollback restores a mutated artifact: from the backup file when one was
// made, else from the stored original content. Returns false when neither
// is available.
func (f *Fixer) Rollback(result schemas.FixResult) bool {
	if result.Rollback == nil {
		return false
	}
	ok := f.restore(result.Rollback)
	if ok {
		f.logger.Info("rolled back fix", zap.String("path", result.Rollback.TargetPath))
	} else {
		f.logger.Error("rollback failed: no backup and no stored content",
			zap.String("path", result.Rollback.TargetPath))
	}
	return ok
}

func (f *Fixer) restore(rollback *schemas.RollbackInfo) bool {
	mode := rollback.Mode
	if mode == 0 {
		mode = 0o644
	}
	if rollback.BackupPath != "" {
		if data, err := os.ReadFile(rollback.BackupPath); err == nil {
			if err := os.WriteFile(rollback.TargetPath, data, mode); err == nil {
				// WriteFile leaves an existing file's mode alone; force it
				// back to the pre-fix mode.
				return os.Chmod(rollback.TargetPath, mode) == nil
			}
		}
	}
	if rollback.OriginalContent != "" {
		if err := os.WriteFile(rollback.TargetPath, []byte(rollback.OriginalContent), mode); err != nil {
			return false
		}
		return os.Chmod(rollback.TargetPath, mode) == nil
	}
	return false
}

// writeBackup snapshots the original next to it as
// "<name>.<timestamp>.backup".
func writeBackup(path string, content []byte) (string, error) {
	backupPath := fmt.Sprintf("%s.%s.backup", path, time.Now().Format(backupTimeLayout))
	if err := os.WriteFile(backupPath, content, 0o644); err != nil {
		return "", err
	}
	return backupPath, nil
}

// unifiedDiff renders an a/ b/ style unified diff of the change.
func unifiedDiff(path, original, updated string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(updated),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}

func failure(message string) schemas.FixResult {
	return schemas.FixResult{ErrorMessage: message}
}
