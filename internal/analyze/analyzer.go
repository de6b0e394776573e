// File: internal/analyze/analyzer.go
package analyze

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

// SourceAnalyzer inspects artifact source text for known anti-patterns.
// Implementations are optional per target; absence simply skips the
// source-analysis stage.
type SourceAnalyzer interface {
	FindAntiPatterns(source string) []schemas.FixSuggestion
}

// rootCauseByKind is the fallback cause table used when no heuristic
// identified anything more specific. Pure lookup, no inference.
var rootCauseByKind = map[schemas.ErrorKind]string{
	schemas.ErrorKindSyntax:        "Malformed source code",
	schemas.ErrorKindLogic:         "The program logic produced an incorrect result",
	schemas.ErrorKindDependency:    "A required dependency is missing or incompatible",
	schemas.ErrorKindRuntime:       "An unexpected condition occurred at runtime",
	schemas.ErrorKindConfiguration: "The environment or configuration is incorrect",
	schemas.ErrorKindNetwork:       "A network resource was unreachable",
	schemas.ErrorKindPermission:    "Insufficient permissions for the attempted operation",
	schemas.ErrorKindResource:      "A system resource was exhausted",
	schemas.ErrorKindUnknown:       "The failure could not be attributed to a known cause",
}

// packageRenames maps import names to the package that actually provides
// them on the index; installing the import name verbatim would fail.
var packageRenames = map[string]string{
	"PIL":     "Pillow",
	"cv2":     "opencv-python",
	"sklearn": "scikit-learn",
	"yaml":    "PyYAML",
	"bs4":     "beautifulsoup4",
}

var (
	moduleNameRegex = regexp.MustCompile(`No module named '([^']+)'`)
	lockIDRegex     = regexp.MustCompile(`ID:\s+([a-f0-9-]+)`)
	undefinedVarRegex = regexp.MustCompile(`'([^']+)' is undefined`)
)

// Analyzer turns a DetectedError into a ranked AnalysisResult. It never
// returns an error: missing signal degrades to an Unknown root cause and an
// empty suggestion list with the review flag set.
type Analyzer struct {
	logger *zap.Logger
	table  []FixPattern
	source map[schemas.TargetKind]SourceAnalyzer
}

// NewAnalyzer creates an analyzer over the stock fix-pattern table.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return NewAnalyzerWithTable(logger, DefaultFixPatterns)
}

// NewAnalyzerWithTable creates an analyzer with a caller-supplied table.
func NewAnalyzerWithTable(logger *zap.Logger, table []FixPattern) *Analyzer {
	return &Analyzer{
		logger: logger.Named("analyzer"),
		table:  table,
		source: make(map[schemas.TargetKind]SourceAnalyzer),
	}
}

// RegisterSourceAnalyzer attaches a source-level anti-pattern scanner for
// one target kind.
func (a *Analyzer) RegisterSourceAnalyzer(target schemas.TargetKind, sa SourceAnalyzer) {
	a.source[target] = sa
}

// Analyze runs the four-stage pipeline: pattern table, target heuristics,
// source analysis, review decision — then ranks the accumulated
// suggestions by (priority, confidence), stable on discovery order.
func (a *Analyzer) Analyze(detected schemas.DetectedError) schemas.AnalysisResult {
	result := schemas.AnalysisResult{
		RootCauseConfidence: schemas.ConfidenceLow,
	}

	matchText := detected.Message
	if detected.ExceptionType != "" && !strings.Contains(matchText, detected.ExceptionType) {
		matchText = detected.ExceptionType + ": " + matchText
	}

	// Stage 1: every matching pattern contributes one suggestion.
	for _, p := range a.table {
		if p.Kind != detected.Kind {
			continue
		}
		groups := p.Regexp.FindStringSubmatch(matchText)
		if groups == nil {
			continue
		}
		result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
			Description:    expand(p.Description, groups),
			Reasoning:      expand(p.Reasoning, groups),
			Confidence:     p.Confidence,
			Kind:           p.FixKind,
			Command:        expand(p.Command, groups),
			TargetLocation: detected.Location,
			Priority:       p.Priority,
		})
	}

	// Stage 2: target-specific heuristics refine root cause and add
	// higher-precision suggestions.
	switch detected.Target {
	case schemas.TargetPython:
		a.analyzePython(detected, &result)
	case schemas.TargetTerraform:
		a.analyzeTerraform(detected, &result)
	case schemas.TargetAnsible:
		a.analyzeAnsible(detected, &result)
	case schemas.TargetShell:
		a.analyzeShell(detected, &result)
	}

	// Stage 3: structural source inspection, when a snippet and an
	// analyzer for the target both exist.
	if sa, ok := a.source[detected.Target]; ok && detected.SourceSnippet != "" {
		for _, s := range sa.FindAntiPatterns(detected.SourceSnippet) {
			if s.TargetLocation.File == "" {
				s.TargetLocation = detected.Location
			}
			result.Suggestions = append(result.Suggestions, s)
		}
	}

	// Stage 4: decide whether a human needs to look. Review is a hint,
	// never a block: low-confidence suggestions are still returned.
	if len(result.Suggestions) == 0 {
		result.RequiresHumanReview = true
		result.Notes = append(result.Notes, "no automated fix is known for this error")
	} else if allLowConfidence(result.Suggestions) {
		result.RequiresHumanReview = true
		result.Notes = append(result.Notes, "all candidate fixes are low confidence")
	}

	SortSuggestions(result.Suggestions)

	if result.RootCause == "" {
		result.RootCause = rootCauseByKind[detected.Kind]
	}

	a.logger.Debug("analysis complete",
		zap.String("kind", string(detected.Kind)),
		zap.Int("suggestions", len(result.Suggestions)),
		zap.Bool("requires_review", result.RequiresHumanReview))
	return result
}

// analyzePython adds interpreter-specific suggestions. A missing module is
// the one case with an essentially certain cause and fix.
func (a *Analyzer) analyzePython(detected schemas.DetectedError, result *schemas.AnalysisResult) {
	text := detected.ExceptionType + ": " + detected.Message

	if groups := moduleNameRegex.FindStringSubmatch(text); groups != nil {
		module := groups[1]
		pkg := module
		if renamed, ok := packageRenames[strings.Split(module, ".")[0]]; ok {
			pkg = renamed
		}
		result.RootCause = fmt.Sprintf("Missing Python package: %s", pkg)
		result.RootCauseConfidence = schemas.ConfidenceHigh
		if pkg != module {
			result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
				Description:    fmt.Sprintf("Install '%s', the package that provides the '%s' import", pkg, module),
				Reasoning:      fmt.Sprintf("'%s' is published under the name '%s'; installing the import name verbatim fails.", module, pkg),
				Confidence:     schemas.ConfidenceHigh,
				Kind:           schemas.FixKindCommand,
				Command:        "pip install " + pkg,
				TargetLocation: detected.Location,
				Priority:       0,
			})
		}
		return
	}

	switch {
	case strings.Contains(text, "KeyError"):
		result.RootCause = "A dictionary was accessed with a key it does not contain"
		result.RootCauseConfidence = schemas.ConfidenceMedium
	case strings.Contains(text, "'NoneType' object"):
		result.RootCause = "A value expected to be set was None at the point of use"
		result.RootCauseConfidence = schemas.ConfidenceMedium
	case strings.Contains(text, "ZeroDivisionError"):
		result.RootCause = "A divisor evaluated to zero"
		result.RootCauseConfidence = schemas.ConfidenceHigh
		result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
			Description:    "Guard the division against a zero divisor",
			Reasoning:      "The divisor is zero for at least one input; a guard preserves the remaining computation.",
			Confidence:     schemas.ConfidenceMedium,
			Kind:           schemas.FixKindCodeChange,
			TargetLocation: detected.Location,
			Priority:       4,
		})
	}
}

// analyzeTerraform mirrors the infra tool's own remediation advice: init
// for provider problems, fmt for layout problems, force-unlock for a held
// state lock.
func (a *Analyzer) analyzeTerraform(detected schemas.DetectedError, result *schemas.AnalysisResult) {
	switch detected.Kind {
	case schemas.ErrorKindDependency:
		result.RootCause = "Terraform providers or modules are not initialized"
		result.RootCauseConfidence = schemas.ConfidenceHigh
		result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
			Description:    "Initialize the working directory",
			Reasoning:      "Provider and module install failures are resolved by re-running init.",
			Confidence:     schemas.ConfidenceHigh,
			Kind:           schemas.FixKindCommand,
			Command:        "terraform init",
			TargetLocation: detected.Location,
			Priority:       0,
		})
	case schemas.ErrorKindSyntax:
		result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
			Description:    "Normalize configuration formatting",
			Reasoning:      "fmt rewrites the file into canonical layout, which clears a class of block-structure complaints.",
			Confidence:     schemas.ConfidenceMedium,
			Kind:           schemas.FixKindCommand,
			Command:        "terraform fmt " + detected.Location.File,
			TargetLocation: detected.Location,
			Priority:       2,
		})
	case schemas.ErrorKindResource:
		if strings.Contains(detected.Message, "state lock") || strings.Contains(detected.Stderr, "state lock") {
			cmd := "terraform force-unlock -force"
			if groups := lockIDRegex.FindStringSubmatch(detected.Message + "\n" + detected.Stderr); groups != nil {
				cmd = cmd + " " + groups[1]
			}
			result.RootCause = "The state lock is held by another (possibly dead) process"
			result.RootCauseConfidence = schemas.ConfidenceMedium
			result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
				Description:    "Release the stale state lock",
				Reasoning:      "A crashed run can leave the lock held forever; forcing it off is the documented recovery.",
				Confidence:     schemas.ConfidenceMedium,
				Kind:           schemas.FixKindCommand,
				Command:        cmd,
				TargetLocation: detected.Location,
				Priority:       1,
			})
		}
	case schemas.ErrorKindNetwork:
		result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
			Description:    "Retry the plan/apply; the registry or backend was unreachable",
			Reasoning:      "Registry and backend outages are usually transient.",
			Confidence:     schemas.ConfidenceMedium,
			Kind:           schemas.FixKindRetryOnly,
			TargetLocation: detected.Location,
			Priority:       2,
		})
	}
}

// analyzeAnsible covers the playbook tool's most common failure shapes.
func (a *Analyzer) analyzeAnsible(detected schemas.DetectedError, result *schemas.AnalysisResult) {
	switch detected.Kind {
	case schemas.ErrorKindNetwork:
		result.RootCause = "A managed host was unreachable"
		result.RootCauseConfidence = schemas.ConfidenceMedium
		result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
			Description:    "Retry the play; host connectivity failures are often transient",
			Reasoning:      "SSH connect failures clear when the host finishes booting or the network settles.",
			Confidence:     schemas.ConfidenceMedium,
			Kind:           schemas.FixKindRetryOnly,
			TargetLocation: detected.Location,
			Priority:       2,
		})
	case schemas.ErrorKindConfiguration:
		if groups := undefinedVarRegex.FindStringSubmatch(detected.Message); groups != nil {
			result.RootCause = fmt.Sprintf("Playbook variable '%s' is undefined", groups[1])
			result.RootCauseConfidence = schemas.ConfidenceHigh
			result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
				Description:    fmt.Sprintf("Define '%s' in the inventory or pass it with --extra-vars", groups[1]),
				Reasoning:      "Template rendering names the missing variable exactly.",
				Confidence:     schemas.ConfidenceMedium,
				Kind:           schemas.FixKindConfig,
				TargetLocation: detected.Location,
				Priority:       2,
			})
		}
	case schemas.ErrorKindPermission:
		result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
			Description:    "Run the play with privilege escalation (become) and a sudo password",
			Reasoning:      "The task needs rights the remote user does not have.",
			Confidence:     schemas.ConfidenceLow,
			Kind:           schemas.FixKindConfig,
			TargetLocation: detected.Location,
			Priority:       5,
		})
	}
}

// analyzeShell covers shell-script failures the generic table cannot name
// precisely.
func (a *Analyzer) analyzeShell(detected schemas.DetectedError, result *schemas.AnalysisResult) {
	switch detected.Kind {
	case schemas.ErrorKindDependency:
		result.RootCause = "A command invoked by the script is not installed"
		result.RootCauseConfidence = schemas.ConfidenceHigh
	case schemas.ErrorKindConfiguration:
		if strings.Contains(detected.Message, "unbound variable") {
			result.RootCause = "The script references a variable that was never set"
			result.RootCauseConfidence = schemas.ConfidenceHigh
			result.Suggestions = append(result.Suggestions, schemas.FixSuggestion{
				Description:    "Give the variable a default with ${VAR:-default} or export it before running",
				Reasoning:      "Under set -u an unset expansion aborts the script.",
				Confidence:     schemas.ConfidenceLow,
				Kind:           schemas.FixKindCodeChange,
				TargetLocation: detected.Location,
				Priority:       5,
			})
		}
	}
}

// SortSuggestions orders candidates by ascending priority, then by
// descending confidence. The sort is stable so equal-ranked suggestions
// keep their discovery order.
func SortSuggestions(suggestions []schemas.FixSuggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		si, sj := suggestions[i], suggestions[j]
		if si.Priority != sj.Priority {
			return si.Priority < sj.Priority
		}
		return si.Confidence.Rank() < sj.Confidence.Rank()
	})
}

func allLowConfidence(suggestions []schemas.FixSuggestion) bool {
	for _, s := range suggestions {
		if s.Confidence == schemas.ConfidenceHigh || s.Confidence == schemas.ConfidenceMedium {
			return false
		}
	}
	return true
}
