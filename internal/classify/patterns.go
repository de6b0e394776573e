// File: internal/classify/patterns.go
package classify

import (
	"regexp"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

// Pattern couples one error kind with a compiled matcher. Patterns for a
// target are evaluated strictly in declaration order and the first match
// wins, so more specific kinds (a missing dependency) must be declared
// before generic ones (a runtime fault).
type Pattern struct {
	Kind   schemas.ErrorKind
	Regexp *regexp.Regexp
}

// DefaultTable is the swappable classification table, keyed by target.
// The data below covers the stock tooling of each environment; callers may
// install their own table via NewClassifierWithTable.
var DefaultTable = map[schemas.TargetKind][]Pattern{
	schemas.TargetPython: {
		{schemas.ErrorKindDependency, regexp.MustCompile(`(?m)ModuleNotFoundError|ImportError|No module named`)},
		{schemas.ErrorKindSyntax, regexp.MustCompile(`(?m)SyntaxError|IndentationError|unexpected indent|invalid syntax|unexpected EOF while parsing`)},
		{schemas.ErrorKindNetwork, regexp.MustCompile(`(?m)ConnectionError|ConnectionRefusedError|TimeoutError|socket\.gaierror|Connection refused`)},
		{schemas.ErrorKindPermission, regexp.MustCompile(`(?m)PermissionError|Permission denied`)},
		{schemas.ErrorKindResource, regexp.MustCompile(`(?m)MemoryError|No space left on device|Too many open files|RecursionError`)},
		{schemas.ErrorKindConfiguration, regexp.MustCompile(`(?m)FileNotFoundError|EnvironmentError|configuration|\.env`)},
		{schemas.ErrorKindRuntime, regexp.MustCompile(`(?m)TypeError|ValueError|KeyError|IndexError|AttributeError|NameError|ZeroDivisionError|RuntimeError`)},
	},
	schemas.TargetTerraform: {
		{schemas.ErrorKindDependency, regexp.MustCompile(`(?m)Could not load plugin|Failed to install provider|Module not installed|Failed to query available provider packages|Required plugins are not installed`)},
		{schemas.ErrorKindSyntax, regexp.MustCompile(`(?m)Invalid block definition|Argument or block definition required|Unclosed configuration block|Invalid expression|Invalid character`)},
		{schemas.ErrorKindResource, regexp.MustCompile(`(?m)Error acquiring the state lock|QuotaExceeded|LimitExceeded|Throttling`)},
		{schemas.ErrorKindPermission, regexp.MustCompile(`(?m)AccessDenied|UnauthorizedOperation|Insufficient permissions|status code: 403`)},
		{schemas.ErrorKindNetwork, regexp.MustCompile(`(?m)connection refused|no such host|timeout while waiting|TLS handshake timeout`)},
		{schemas.ErrorKindConfiguration, regexp.MustCompile(`(?m)Missing required argument|Unsupported argument|Invalid provider configuration|Invalid value for|Reference to undeclared`)},
	},
	schemas.TargetAnsible: {
		{schemas.ErrorKindSyntax, regexp.MustCompile(`(?m)Syntax Error while loading YAML|did not find expected|mapping values are not allowed|could not find expected`)},
		{schemas.ErrorKindDependency, regexp.MustCompile(`(?m)couldn't resolve module|The module \S+ was not found|No module named|Failed to import the required Python library`)},
		{schemas.ErrorKindNetwork, regexp.MustCompile(`(?m)UNREACHABLE!|Failed to connect to the host|Connection timed out|Could not resolve hostname`)},
		{schemas.ErrorKindPermission, regexp.MustCompile(`(?m)Permission denied|Missing sudo password|privilege escalation`)},
		{schemas.ErrorKindConfiguration, regexp.MustCompile(`(?m)undefined variable|'[^']+' is undefined|Invalid options|is not a valid attribute`)},
	},
	schemas.TargetShell: {
		{schemas.ErrorKindSyntax, regexp.MustCompile(`(?m)syntax error near unexpected token|unexpected end of file|syntax error: `)},
		{schemas.ErrorKindDependency, regexp.MustCompile(`(?m)command not found`)},
		{schemas.ErrorKindPermission, regexp.MustCompile(`(?m)Permission denied|Operation not permitted|cannot execute`)},
		{schemas.ErrorKindResource, regexp.MustCompile(`(?m)No space left on device|Cannot allocate memory|Argument list too long`)},
		{schemas.ErrorKindNetwork, regexp.MustCompile(`(?m)Connection refused|Could not resolve host|Network is unreachable`)},
		{schemas.ErrorKindConfiguration, regexp.MustCompile(`(?m)unbound variable|bad substitution|No such file or directory`)},
	},
}

// sentinels are substrings that mark a failure even when the process exited
// zero. Tools like infra planners print "Error:" and still exit cleanly in
// some wrapper setups.
var sentinels = map[schemas.TargetKind][]string{
	schemas.TargetPython:    {"Traceback (most recent call last)"},
	schemas.TargetTerraform: {"Error:"},
	schemas.TargetAnsible:   {"fatal:", "UNREACHABLE!", "ERROR!"},
	schemas.TargetShell:     {"error:"},
}

// linePatterns extract a line number from tool output, per target syntax.
var linePatterns = map[schemas.TargetKind]*regexp.Regexp{
	schemas.TargetPython:    regexp.MustCompile(`line (\d+)`),
	schemas.TargetTerraform: regexp.MustCompile(`on (\S+\.tf(?:\.json)?) line (\d+)`),
	schemas.TargetAnsible:   regexp.MustCompile(`line (\d+), column (\d+)`),
	schemas.TargetShell:     regexp.MustCompile(`line (\d+)`),
}
