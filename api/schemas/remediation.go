// File: api/schemas/remediation.go
package schemas

import (
	"io/fs"
	"time"
)

// ErrorKind classifies a detected failure into a coarse taxonomy. The kind
// drives pattern-table lookup and fix-template selection downstream.
type ErrorKind string

const (
	ErrorKindSyntax        ErrorKind = "syntax"
	ErrorKindLogic         ErrorKind = "logic"
	ErrorKindDependency    ErrorKind = "dependency"
	ErrorKindRuntime       ErrorKind = "runtime"
	ErrorKindConfiguration ErrorKind = "config"
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindPermission    ErrorKind = "permission"
	ErrorKindResource      ErrorKind = "resource"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// TargetKind identifies the kind of executable artifact being diagnosed.
type TargetKind string

const (
	TargetPython    TargetKind = "python"
	TargetTerraform TargetKind = "terraform"
	TargetAnsible   TargetKind = "ansible"
	TargetShell     TargetKind = "bash"
)

// FixKind describes how a suggestion remediates: by editing an artifact,
// running an external command, changing configuration, or simply retrying.
type FixKind string

const (
	FixKindCodeChange FixKind = "code_change"
	FixKindCommand    FixKind = "command"
	FixKindConfig     FixKind = "config"
	FixKindRetryOnly  FixKind = "retry_only"
)

// Confidence is a coarse tier used purely for ordering suggestions,
// never as a probability.
type Confidence string

const (
	ConfidenceHigh         Confidence = "high"
	ConfidenceMedium       Confidence = "medium"
	ConfidenceLow          Confidence = "low"
	ConfidenceExperimental Confidence = "experimental"
)

// Rank maps a confidence tier to its sort position. Lower sorts first.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceLow:
		return 2
	case ConfidenceExperimental:
		return 3
	default:
		return 4
	}
}

// Location pinpoints a position inside an artifact. Zero values mean the
// corresponding coordinate is unknown.
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// DetectedError is one observed failure, produced by the classifier and
// immutable for the rest of the session.
type DetectedError struct {
	Kind          ErrorKind  `json:"kind"`
	Target        TargetKind `json:"target"`
	Message       string     `json:"message"`
	ExceptionType string     `json:"exception_type,omitempty"`
	Location      Location   `json:"location"`
	RawTrace      string     `json:"raw_trace,omitempty"`
	SourceSnippet string     `json:"source_snippet,omitempty"`
	ExitCode      int        `json:"exit_code"`
	Stdout        string     `json:"stdout,omitempty"`
	Stderr        string     `json:"stderr,omitempty"`
	DetectedAt    time.Time  `json:"detected_at"`
}

// Replacement is a literal old -> new text substitution carried by a
// code-change suggestion.
type Replacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// FixSuggestion is one candidate remedy. Ranked by (Priority, Confidence
// rank) and consumed at most once per session.
type FixSuggestion struct {
	Description    string       `json:"description"`
	Reasoning      string       `json:"reasoning"`
	Confidence     Confidence   `json:"confidence"`
	Kind           FixKind      `json:"kind"`
	Command        string       `json:"command,omitempty"`
	Replacement    *Replacement `json:"replacement,omitempty"`
	TargetLocation Location     `json:"target_location"`
	// Priority orders suggestions before confidence does; lower tries first.
	Priority int `json:"priority"`
}

// AnalysisResult is the analyzer's verdict for one incident.
type AnalysisResult struct {
	RootCause           string          `json:"root_cause"`
	RootCauseConfidence Confidence      `json:"root_cause_confidence"`
	Suggestions         []FixSuggestion `json:"suggestions"`
	RequiresHumanReview bool            `json:"requires_human_review"`
	Notes               []string        `json:"notes,omitempty"`
}

// RollbackInfo holds everything needed to undo one applied fix. It is
// populated before validation ever runs.
type RollbackInfo struct {
	TargetPath      string `json:"target_path"`
	OriginalContent string `json:"original_content,omitempty"`
	BackupPath      string `json:"backup_path,omitempty"`
	// Mode is the artifact's file mode before the fix, restored on rollback.
	Mode fs.FileMode `json:"mode,omitempty"`
}

// FixResult is the outcome of applying one suggestion.
type FixResult struct {
	Success       bool          `json:"success"`
	Diff          string        `json:"diff,omitempty"`
	Rollback      *RollbackInfo `json:"rollback,omitempty"`
	CommandOutput string        `json:"command_output,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	DryRun        bool          `json:"dry_run,omitempty"`
}

// ValidationResult is the outcome of checking one applied fix. The
// pointer fields are nil when the corresponding check did not run.
type ValidationResult struct {
	Success               bool     `json:"success"`
	SyntaxValid           bool     `json:"syntax_valid"`
	LintPassed            *bool    `json:"lint_passed,omitempty"`
	TestsPassed           *bool    `json:"tests_passed,omitempty"`
	OriginalErrorResolved *bool    `json:"original_error_resolved,omitempty"`
	NewErrors             []string `json:"new_errors,omitempty"`
	Messages              []string `json:"messages,omitempty"`
}
