// File: api/schemas/events.go
package schemas

import "time"

// EventType enumerates the audit-trail record types emitted during a
// healing session.
type EventType string

const (
	EventErrorDetected              EventType = "error_detected"
	EventAnalysisComplete           EventType = "analysis_complete"
	EventFixGenerated               EventType = "fix_generated"
	EventFixApplied                 EventType = "fix_applied"
	EventFixValidated               EventType = "fix_validated"
	EventFixFailed                  EventType = "fix_failed"
	EventRollbackPerformed          EventType = "rollback_performed"
	EventRetryAttempted             EventType = "retry_attempted"
	EventHealingComplete            EventType = "healing_complete"
	EventManualInterventionRequired EventType = "manual_intervention_required"
)

// Severity grades an audit event for human triage.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// HealingEvent is one append-only audit record. Events are immutable once
// written and are never deleted, only rotated externally.
type HealingEvent struct {
	IncidentID     string            `json:"incident_id"`
	Type           EventType         `json:"event_type"`
	Timestamp      time.Time         `json:"timestamp"`
	Severity       Severity          `json:"severity"`
	Target         TargetKind        `json:"environment,omitempty"`
	ErrorKind      ErrorKind         `json:"error_type,omitempty"`
	FilePath       string            `json:"file_path,omitempty"`
	LineNumber     int               `json:"line_number,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	FixDescription string            `json:"fix_description,omitempty"`
	FixReasoning   string            `json:"fix_reasoning,omitempty"`
	Confidence     Confidence        `json:"confidence,omitempty"`
	AttemptNumber  int               `json:"attempt_number,omitempty"`
	MaxAttempts    int               `json:"max_attempts,omitempty"`
	Success        *bool             `json:"success,omitempty"`
	WillRetry      *bool             `json:"will_retry,omitempty"`
	DurationMS     int64             `json:"duration_ms,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SessionState tracks where a healing session is in its state machine.
type SessionState string

const (
	StateCreated        SessionState = "created"
	StateAnalyzing      SessionState = "analyzing"
	StateAttempting     SessionState = "attempting"
	StateValidating     SessionState = "validating"
	StateSuccess        SessionState = "success"
	StateRolledBack     SessionState = "rolled_back"
	StateManualRequired SessionState = "manual_required"
	StateDisabled       SessionState = "disabled"
)

// FinalResult is the terminal disposition of a session.
type FinalResult string

const (
	FinalSuccess        FinalResult = "success"
	FinalFailed         FinalResult = "failed"
	FinalManualRequired FinalResult = "manual_required"
	FinalDisabled       FinalResult = "disabled"
)

// Attempt records one (fix, validation) round inside a session, in the
// order suggestions were tried.
type Attempt struct {
	Number     int               `json:"number"`
	Suggestion FixSuggestion     `json:"suggestion"`
	Fix        *FixResult        `json:"fix,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	RolledBack bool              `json:"rolled_back"`
}

// HealingSession is the full lifecycle of one incident. It carries exactly
// one DetectedError and at most one AnalysisResult.
type HealingSession struct {
	IncidentID    string         `json:"incident_id"`
	State         SessionState   `json:"state"`
	Error         DetectedError  `json:"error"`
	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	Attempts      []Attempt      `json:"attempts"`
	FinalResult   FinalResult    `json:"final_result,omitempty"`
	TotalAttempts int            `json:"total_attempts"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
}

// Succeeded reports whether the session closed with a validated fix.
func (s *HealingSession) Succeeded() bool {
	return s.FinalResult == FinalSuccess
}
