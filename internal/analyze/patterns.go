// File: internal/analyze/patterns.go
package analyze

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

// FixPattern maps (error kind, message regex) to a fix template. Capture
// groups from the regex are substituted into the description and command
// templates via {1}, {2}, ... placeholders. Patterns are evaluated in
// declaration order and every match contributes a suggestion.
type FixPattern struct {
	Kind        schemas.ErrorKind
	Regexp      *regexp.Regexp
	Description string
	Reasoning   string
	FixKind     schemas.FixKind
	Command     string
	Confidence  schemas.Confidence
	Priority    int
}

// DefaultFixPatterns is the stock pattern-to-suggestion table. It is data:
// swap it wholesale via NewAnalyzerWithTable without touching the matching
// algorithm.
var DefaultFixPatterns = []FixPattern{
	{
		Kind:        schemas.ErrorKindDependency,
		Regexp:      regexp.MustCompile(`No module named '([^']+)'`),
		Description: "Install missing Python package '{1}'",
		Reasoning:   "The interpreter could not import '{1}', which usually means the package is not installed in the active environment.",
		FixKind:     schemas.FixKindCommand,
		Command:     "pip install {1}",
		Confidence:  schemas.ConfidenceHigh,
		Priority:    1,
	},
	{
		Kind:        schemas.ErrorKindDependency,
		Regexp:      regexp.MustCompile(`cannot import name '([^']+)' from '([^']+)'`),
		Description: "Upgrade package '{2}' which no longer exports '{1}'",
		Reasoning:   "A missing symbol inside an importable package points at a version mismatch rather than a missing install.",
		FixKind:     schemas.FixKindCommand,
		Command:     "pip install --upgrade {2}",
		Confidence:  schemas.ConfidenceMedium,
		Priority:    2,
	},
	{
		Kind:        schemas.ErrorKindDependency,
		Regexp:      regexp.MustCompile(`(?:^|\s)([\w.-]+): command not found`),
		Description: "Install missing command '{1}'",
		Reasoning:   "The shell could not resolve '{1}' on PATH; the owning package is probably not installed.",
		FixKind:     schemas.FixKindCommand,
		Command:     "apt-get install -y {1}",
		Confidence:  schemas.ConfidenceMedium,
		Priority:    3,
	},
	{
		Kind:        schemas.ErrorKindRuntime,
		Regexp:      regexp.MustCompile(`KeyError: '([^']+)'`),
		Description: "Use a safe lookup for dictionary key '{1}'",
		Reasoning:   "Indexed access on a missing key raises; a .get() style lookup with a default does not.",
		FixKind:     schemas.FixKindCodeChange,
		Confidence:  schemas.ConfidenceMedium,
		Priority:    4,
	},
	{
		Kind:        schemas.ErrorKindRuntime,
		Regexp:      regexp.MustCompile(`'NoneType' object (?:has no attribute|is not)`),
		Description: "Guard the failing line against a nil value",
		Reasoning:   "Something upstream returned no value; a guard before the dereference keeps the script alive long enough to surface the real cause.",
		FixKind:     schemas.FixKindCodeChange,
		Confidence:  schemas.ConfidenceMedium,
		Priority:    4,
	},
	{
		Kind:        schemas.ErrorKindRuntime,
		Regexp:      regexp.MustCompile(`(?:IndexError|list index out of range)`),
		Description: "Bounds-check the sequence access on the failing line",
		Reasoning:   "The index exceeds the sequence length at least some of the time.",
		FixKind:     schemas.FixKindCodeChange,
		Confidence:  schemas.ConfidenceLow,
		Priority:    5,
	},
	{
		Kind:        schemas.ErrorKindSyntax,
		Regexp:      regexp.MustCompile(`(?:unexpected indent|IndentationError)`),
		Description: "Re-indent the artifact with a consistent convention",
		Reasoning:   "Mixed or stray indentation is mechanical to normalize.",
		FixKind:     schemas.FixKindCodeChange,
		Confidence:  schemas.ConfidenceMedium,
		Priority:    4,
	},
	{
		Kind:        schemas.ErrorKindSyntax,
		Regexp:      regexp.MustCompile(`(?:invalid syntax|SyntaxError|unexpected EOF while parsing)`),
		Description: "Apply a mechanical syntax repair to the failing line",
		Reasoning:   "Missing colons and unbalanced brackets account for most one-line syntax faults and are safe to patch mechanically.",
		FixKind:     schemas.FixKindCodeChange,
		Confidence:  schemas.ConfidenceMedium,
		Priority:    4,
	},
	{
		Kind:        schemas.ErrorKindNetwork,
		Regexp:      regexp.MustCompile(`(?i)(?:connection refused|connection reset|timed out|temporarily unavailable)`),
		Description: "Retry the original operation; the failure looks transient",
		Reasoning:   "Connection-level failures frequently clear on their own; a bounded retry is the cheapest first move.",
		FixKind:     schemas.FixKindRetryOnly,
		Confidence:  schemas.ConfidenceMedium,
		Priority:    3,
	},
	{
		Kind:        schemas.ErrorKindConfiguration,
		Regexp:      regexp.MustCompile(`(?:FileNotFoundError|No such file or directory)[:\s]*'?([^'\n]*)'?`),
		Description: "Create or correct the path referenced by the failing operation",
		Reasoning:   "The artifact references a file or directory that does not exist at runtime.",
		FixKind:     schemas.FixKindConfig,
		Confidence:  schemas.ConfidenceLow,
		Priority:    6,
	},
	{
		Kind:        schemas.ErrorKindPermission,
		Regexp:      regexp.MustCompile(`(?i)permission denied`),
		Description: "Adjust ownership or mode of the target resource",
		Reasoning:   "The process identity lacks access; this usually needs an operator decision rather than an automatic change.",
		FixKind:     schemas.FixKindConfig,
		Confidence:  schemas.ConfidenceLow,
		Priority:    7,
	},
	{
		Kind:        schemas.ErrorKindResource,
		Regexp:      regexp.MustCompile(`(?i)(?:no space left on device|cannot allocate memory)`),
		Description: "Free disk or memory on the host before retrying",
		Reasoning:   "Resource exhaustion cannot be fixed inside the artifact.",
		FixKind:     schemas.FixKindConfig,
		Confidence:  schemas.ConfidenceLow,
		Priority:    7,
	},
}

// expand substitutes {1}, {2}, ... placeholders with regex capture groups.
func expand(template string, groups []string) string {
	out := template
	for i := 1; i < len(groups); i++ {
		out = strings.ReplaceAll(out, "{"+strconv.Itoa(i)+"}", groups[i])
	}
	return out
}
