// File: internal/classify/classifier.go
package classify

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

// maxMessageLength caps the message stored on a DetectedError; tool output
// can run to megabytes and the audit trail only needs the head of it.
const maxMessageLength = 500

// snippetRadius is how many lines of context to capture around a failing
// line when the source artifact is readable.
const snippetRadius = 3

// Fault describes an in-process failure handed to the classifier: a caught
// exception, a recovered panic, or any structured diagnostic with a stack.
type Fault struct {
	// FaultType is the language-level type name, e.g. "KeyError".
	FaultType string
	Message   string
	RawTrace  string
	Location  schemas.Location
}

// Classifier turns raw diagnostics into DetectedErrors. It is pure: no
// side effects, never returns an error, degrades to ErrorKindUnknown when
// nothing matches.
type Classifier struct {
	logger *zap.Logger
	table  map[schemas.TargetKind][]Pattern
}

// NewClassifier creates a classifier using the stock pattern table.
func NewClassifier(logger *zap.Logger) *Classifier {
	return NewClassifierWithTable(logger, DefaultTable)
}

// NewClassifierWithTable creates a classifier with a caller-supplied
// pattern table. The table is data; the matching algorithm is fixed.
func NewClassifierWithTable(logger *zap.Logger, table map[schemas.TargetKind][]Pattern) *Classifier {
	return &Classifier{
		logger: logger.Named("classifier"),
		table:  table,
	}
}

// FromFault classifies a caught runtime fault. The fault type name is
// prepended to the message so the pattern table can see it, and a source
// snippet is captured around the failing line when the file is readable.
func (c *Classifier) FromFault(target schemas.TargetKind, fault Fault) schemas.DetectedError {
	text := fault.Message
	if fault.FaultType != "" {
		text = fault.FaultType + ": " + fault.Message
	}

	detected := schemas.DetectedError{
		Kind:          c.classifyText(target, text+"\n"+fault.RawTrace),
		Target:        target,
		Message:       truncate(text, maxMessageLength),
		ExceptionType: fault.FaultType,
		Location:      fault.Location,
		RawTrace:      fault.RawTrace,
		DetectedAt:    time.Now().UTC(),
	}

	if fault.Location.File != "" && fault.Location.Line > 0 {
		detected.SourceSnippet = readSnippet(fault.Location.File, fault.Location.Line)
	}

	c.logger.Debug("classified fault",
		zap.String("kind", string(detected.Kind)),
		zap.String("target", string(target)),
		zap.String("fault_type", fault.FaultType))
	return detected
}

// FromOutput classifies captured process output plus exit code. A nonzero
// exit is always an error; a zero exit is still an error when the output
// carries a target-specific sentinel. Returns nil when nothing looks wrong.
func (c *Classifier) FromOutput(target schemas.TargetKind, artifactPath, stdout, stderr string, exitCode int) *schemas.DetectedError {
	combined := stderr
	if combined == "" {
		combined = stdout
	}

	if exitCode == 0 && !hasSentinel(target, stdout+"\n"+stderr) {
		return nil
	}

	detected := &schemas.DetectedError{
		Kind:       c.classifyText(target, stdout+"\n"+stderr),
		Target:     target,
		Message:    truncate(errorSummary(combined), maxMessageLength),
		Location:   extractLocation(target, artifactPath, stdout+"\n"+stderr),
		ExitCode:   exitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		DetectedAt: time.Now().UTC(),
	}

	c.logger.Debug("classified process output",
		zap.String("kind", string(detected.Kind)),
		zap.String("target", string(target)),
		zap.Int("exit_code", exitCode))
	return detected
}

// classifyText runs the ordered pattern list for the target; first match
// wins. Unmatched text is ErrorKindUnknown, never an error.
func (c *Classifier) classifyText(target schemas.TargetKind, text string) schemas.ErrorKind {
	for _, kp := range c.table[target] {
		if kp.Regexp.MatchString(text) {
			return kp.Kind
		}
	}
	return schemas.ErrorKindUnknown
}

// hasSentinel reports whether any error sentinel for the target appears at
// the start of a line in the output.
func hasSentinel(target schemas.TargetKind, output string) bool {
	marks := sentinels[target]
	if len(marks) == 0 {
		return false
	}
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, mark := range marks {
			if strings.HasPrefix(trimmed, mark) {
				return true
			}
		}
	}
	return false
}

// extractLocation pulls a file/line out of tool output using the target's
// line-number convention, defaulting the file to the executed artifact.
func extractLocation(target schemas.TargetKind, artifactPath, output string) schemas.Location {
	loc := schemas.Location{File: artifactPath}
	re, ok := linePatterns[target]
	if !ok {
		return loc
	}

	matches := re.FindStringSubmatch(output)
	switch {
	case target == schemas.TargetTerraform && len(matches) == 3:
		loc.File = matches[1]
		loc.Line, _ = strconv.Atoi(matches[2])
	case target == schemas.TargetAnsible && len(matches) == 3:
		loc.Line, _ = strconv.Atoi(matches[1])
		loc.Column, _ = strconv.Atoi(matches[2])
	case len(matches) == 2:
		loc.Line, _ = strconv.Atoi(matches[1])
	}
	return loc
}

// errorSummary picks the most informative slice of output: the trailing
// block starting at the last "Error"-ish line if there is one, else the
// whole text trimmed.
func errorSummary(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "error") || strings.HasPrefix(lower, "fatal") ||
			strings.Contains(trimmed, "Error:") || strings.HasPrefix(trimmed, "UNREACHABLE!") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	return strings.TrimSpace(output)
}

// readSnippet returns up to snippetRadius lines either side of the failing
// line, or "" when the file cannot be read. Classification never fails on
// a missing artifact.
func readSnippet(path string, line int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if scanner.Err() != nil || len(lines) == 0 {
		return ""
	}

	start := line - 1 - snippetRadius
	if start < 0 {
		start = 0
	}
	end := line + snippetRadius
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
