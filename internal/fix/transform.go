// File: internal/fix/transform.go
package fix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

// Code transforms synthesize a candidate fix from the original content and
// the detected error. Each one is a pure function from text to text; a
// transform that has nothing to do returns the input unchanged, which the
// fixer then rejects as a non-change.

var (
	controlKeywordRegex = regexp.MustCompile(`^\s*(if|elif|else|for|while|def|class|try|except|finally|with)\b`)
	attributeAccessRegex = regexp.MustCompile(`(\w+)\.\w+`)
	keyedAccessRegex     = regexp.MustCompile(`(\w+)\[(['"][^\]]+['"])\]`)
	indexAccessRegex     = regexp.MustCompile(`(\w+)\[(\w+)\]`)
)

// transformForKind routes to the transform matching the error shape.
// Unknown shapes return the content unchanged.
func transformForKind(detected schemas.DetectedError, content string) string {
	line := detected.Location.Line
	text := detected.ExceptionType + ": " + detected.Message

	switch detected.Kind {
	case schemas.ErrorKindSyntax:
		if strings.Contains(text, "unexpected indent") || strings.Contains(text, "IndentationError") {
			return reindentLine(content, line)
		}
		return repairSyntax(content, line)
	case schemas.ErrorKindRuntime:
		switch {
		case strings.Contains(text, "'NoneType' object"):
			return insertNilGuard(content, line)
		case strings.Contains(text, "KeyError"):
			return useSafeLookup(content, line)
		case strings.Contains(text, "IndexError") || strings.Contains(text, "index out of range"):
			return insertBoundsCheck(content, line)
		}
	case schemas.ErrorKindNetwork:
		return wrapWithRetry(content, line)
	}
	return content
}

// repairSyntax applies the two mechanical repairs that cover most one-line
// syntax faults: a missing trailing colon on a control-flow line, and
// unbalanced brackets anywhere in the artifact.
func repairSyntax(content string, line int) string {
	lines := strings.Split(content, "\n")
	if line >= 1 && line <= len(lines) {
		offending := lines[line-1]
		trimmed := strings.TrimRight(offending, " \t")
		if controlKeywordRegex.MatchString(offending) && !strings.HasSuffix(trimmed, ":") && trimmed != "" {
			lines[line-1] = trimmed + ":"
			return strings.Join(lines, "\n")
		}
	}
	return appendMissingClosers(content)
}

// appendMissingClosers counts unbalanced brackets over the whole text and
// appends the closers in reverse open order. Quoted strings are skipped so
// bracket characters inside literals do not distort the count.
func appendMissingClosers(content string) string {
	var stack []rune
	var quote rune
	escaped := false

	for _, r := range content {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) == 0 {
		return content
	}

	closers := map[rune]string{'(': ")", '[': "]", '{': "}"}
	var sb strings.Builder
	sb.WriteString(content)
	for i := len(stack) - 1; i >= 0; i-- {
		sb.WriteString(closers[stack[i]])
	}
	return sb.String()
}

// reindentLine dedents an unexpectedly indented line to the level implied
// by the previous line: same indent, or one level deeper when the previous
// line opens a block.
func reindentLine(content string, line int) string {
	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines) {
		return content
	}

	idx := line - 1
	body := strings.TrimLeft(lines[idx], " \t")
	indent := ""
	if idx > 0 {
		prev := lines[idx-1]
		indent = prev[:len(prev)-len(strings.TrimLeft(prev, " \t"))]
		if strings.HasSuffix(strings.TrimRight(prev, " \t"), ":") {
			indent += "    "
		}
	}
	lines[idx] = indent + body
	return strings.Join(lines, "\n")
}

// insertNilGuard wraps the offending line in a None check on the first
// dereferenced name, preserving indentation.
func insertNilGuard(content string, line int) string {
	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines) {
		return content
	}

	idx := line - 1
	offending := lines[idx]
	matches := attributeAccessRegex.FindStringSubmatch(offending)
	if matches == nil {
		return content
	}

	indent := offending[:len(offending)-len(strings.TrimLeft(offending, " \t"))]
	guard := fmt.Sprintf("%sif %s is not None:", indent, matches[1])
	lines[idx] = indent + "    " + strings.TrimLeft(offending, " \t")
	lines = append(lines[:idx], append([]string{guard}, lines[idx:]...)...)
	return strings.Join(lines, "\n")
}

// useSafeLookup rewrites quoted-key indexed access on the offending line
// into a .get() call, which returns a default instead of raising.
func useSafeLookup(content string, line int) string {
	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines) {
		return content
	}
	idx := line - 1
	replaced := keyedAccessRegex.ReplaceAllString(lines[idx], "$1.get($2)")
	if replaced == lines[idx] {
		return content
	}
	lines[idx] = replaced
	return strings.Join(lines, "\n")
}

// insertBoundsCheck guards an indexed sequence access with a length check.
func insertBoundsCheck(content string, line int) string {
	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines) {
		return content
	}

	idx := line - 1
	offending := lines[idx]
	matches := indexAccessRegex.FindStringSubmatch(offending)
	if matches == nil {
		return content
	}

	indent := offending[:len(offending)-len(strings.TrimLeft(offending, " \t"))]
	guard := fmt.Sprintf("%sif %s < len(%s):", indent, matches[2], matches[1])
	lines[idx] = indent + "    " + strings.TrimLeft(offending, " \t")
	lines = append(lines[:idx], append([]string{guard}, lines[idx:]...)...)
	return strings.Join(lines, "\n")
}

// wrapWithRetry wraps the offending line in a three-attempt loop with
// exponential sleep, for faults that look transient.
func wrapWithRetry(content string, line int) string {
	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines) {
		return content
	}

	idx := line - 1
	offending := lines[idx]
	body := strings.TrimLeft(offending, " \t")
	if body == "" {
		return content
	}
	indent := offending[:len(offending)-len(body)]

	wrapped := []string{
		indent + "for _attempt in range(3):",
		indent + "    try:",
		indent + "        " + body,
		indent + "        break",
		indent + "    except Exception:",
		indent + "        if _attempt == 2:",
		indent + "            raise",
		indent + "        time.sleep(2 ** _attempt)",
	}

	out := append([]string{}, lines[:idx]...)
	out = append(out, wrapped...)
	out = append(out, lines[idx+1:]...)
	return strings.Join(out, "\n")
}
