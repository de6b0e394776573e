// File: internal/heal/interfaces.go
package heal

import (
	"context"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/validate"
)

// Analyzer defines the contract for the component that turns a detected
// error into ranked fix suggestions.
type Analyzer interface {
	Analyze(detected schemas.DetectedError) schemas.AnalysisResult
}

// Applier defines the contract for the component that applies a single
// suggestion and can undo it.
type Applier interface {
	// Apply executes one suggestion under the safety policy. Failures are
	// reported through the result, never panics.
	Apply(ctx context.Context, suggestion schemas.FixSuggestion, detected schemas.DetectedError) schemas.FixResult
	// Rollback restores the pre-fix state and reports whether it succeeded.
	Rollback(result schemas.FixResult) bool
}

// Checker defines the contract for post-fix verification.
type Checker interface {
	Validate(ctx context.Context, fixResult schemas.FixResult, detected schemas.DetectedError, level validate.Level, rerun validate.RerunFunc) schemas.ValidationResult
}

// Recorder receives every audit event of a session. A failing recorder is
// logged and does not interrupt healing.
type Recorder interface {
	Record(event schemas.HealingEvent) error
}
