// File: internal/heal/orchestrator.go

// Package heal drives the remediation state machine: detect, analyze,
// attempt fixes in ranked order with rollback and exponential backoff, and
// leave a full audit trail behind.
package heal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/analyze"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
	"github.com/xkilldash9x/mend-cli/internal/targets"
	"github.com/xkilldash9x/mend-cli/internal/validate"
)

// Options tunes one healing session. Zero value means the configured
// defaults.
type Options struct {
	// Level overrides the configured validation level for this session.
	Level *validate.Level
	// Rerun re-invokes the original operation during thorough validation.
	Rerun validate.RerunFunc
}

// Orchestrator owns the session lifecycle. Safe for concurrent use; fix
// attempts against the same artifact are serialized by path.
type Orchestrator struct {
	logger     *zap.Logger
	cfg        *config.Config
	classifier *classify.Classifier
	analyzer   Analyzer
	fixer      Applier
	validator  Checker
	recorder   Recorder
	adapters   targets.Registry

	locks *pathLocker
	// sleep is swapped out in tests so backoff does not wall-clock wait.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	sessions map[string]*schemas.HealingSession
}

// New wires the orchestrator from its collaborators.
func New(logger *zap.Logger, cfg *config.Config, classifier *classify.Classifier, analyzer Analyzer, fixer Applier, validator Checker, recorder Recorder, adapters targets.Registry) *Orchestrator {
	return &Orchestrator{
		logger:     logger.Named("orchestrator"),
		cfg:        cfg,
		classifier: classifier,
		analyzer:   analyzer,
		fixer:      fixer,
		validator:  validator,
		recorder:   recorder,
		adapters:   adapters,
		locks:      newPathLocker(),
		sleep:      sleepContext,
		sessions:   make(map[string]*schemas.HealingSession),
	}
}

// Session returns a snapshot of one session by incident ID.
func (o *Orchestrator) Session(incidentID string) (*schemas.HealingSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[incidentID]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// Heal runs the full state machine for one detected error and returns the
// completed session. When healing is disabled the session terminates
// immediately and nothing is recorded.
func (o *Orchestrator) Heal(ctx context.Context, detected schemas.DetectedError, opts Options) *schemas.HealingSession {
	session := &schemas.HealingSession{
		IncidentID: uuid.NewString(),
		State:      schemas.StateCreated,
		Error:      detected,
		StartedAt:  time.Now().UTC(),
	}

	if !o.cfg.Healing.Enabled {
		session.State = schemas.StateDisabled
		session.FinalResult = schemas.FinalDisabled
		session.CompletedAt = time.Now().UTC()
		return session
	}

	o.mu.Lock()
	o.sessions[session.IncidentID] = session
	o.mu.Unlock()

	o.logger.Info("healing session started",
		zap.String("incident_id", session.IncidentID),
		zap.String("error_kind", string(detected.Kind)),
		zap.String("target", string(detected.Target)),
		zap.String("file", detected.Location.File))

	o.record(o.newEvent(session, schemas.EventErrorDetected, schemas.SeverityError))

	session.State = schemas.StateAnalyzing
	analysis := o.analyzer.Analyze(detected)
	o.mergeAdapterFix(detected, &analysis)
	session.Analysis = &analysis

	analysisEvent := o.newEvent(session, schemas.EventAnalysisComplete, schemas.SeverityInfo)
	analysisEvent.Metadata = map[string]string{
		"root_cause":  analysis.RootCause,
		"suggestions": strconv.Itoa(len(analysis.Suggestions)),
	}
	o.record(analysisEvent)

	if len(analysis.Suggestions) == 0 {
		return o.abort(session, "no automated fix available", schemas.FinalManualRequired)
	}

	level := validate.ParseLevel(o.cfg.Healing.ValidationLevel)
	if opts.Level != nil {
		level = *opts.Level
	}

	budget := len(analysis.Suggestions)
	if o.cfg.Healing.MaxAttempts < budget {
		budget = o.cfg.Healing.MaxAttempts
	}

	delay := time.Duration(o.cfg.Healing.InitialDelaySeconds * float64(time.Second))
	maxDelay := time.Duration(o.cfg.Healing.MaxDelaySeconds * float64(time.Second))

	for attemptNum := 1; attemptNum <= budget; attemptNum++ {
		suggestion := analysis.Suggestions[attemptNum-1]
		done := o.attempt(ctx, session, suggestion, attemptNum, budget, level, opts.Rerun)
		if done {
			return session
		}

		if attemptNum < budget {
			retryEvent := o.newEvent(session, schemas.EventRetryAttempted, schemas.SeverityInfo)
			retryEvent.AttemptNumber = attemptNum
			retryEvent.MaxAttempts = budget
			o.record(retryEvent)

			if err := o.sleep(ctx, delay); err != nil {
				o.logger.Warn("healing interrupted during backoff",
					zap.String("incident_id", session.IncidentID),
					zap.Error(err))
				return o.abort(session, "healing interrupted: "+err.Error(), schemas.FinalFailed)
			}
			delay = time.Duration(float64(delay) * o.cfg.Healing.BackoffMultiplier)
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}

	return o.abort(session, "all fix attempts exhausted", schemas.FinalFailed)
}

// attempt runs one apply-validate-rollback cycle. It returns true when the
// session reached a successful terminal state.
func (o *Orchestrator) attempt(ctx context.Context, session *schemas.HealingSession, suggestion schemas.FixSuggestion, attemptNum, budget int, level validate.Level, rerun validate.RerunFunc) bool {
	session.State = schemas.StateAttempting
	session.TotalAttempts = attemptNum
	attempt := schemas.Attempt{Number: attemptNum, Suggestion: suggestion}

	generated := o.newEvent(session, schemas.EventFixGenerated, schemas.SeverityInfo)
	generated.FixDescription = suggestion.Description
	generated.FixReasoning = suggestion.Reasoning
	generated.Confidence = suggestion.Confidence
	generated.AttemptNumber = attemptNum
	generated.MaxAttempts = budget
	o.record(generated)

	// Lock on the same path the fixer will write to: the suggestion's
	// target when it names one, else the detected error's file.
	lockPath := suggestion.TargetLocation.File
	if lockPath == "" {
		lockPath = session.Error.Location.File
	}
	release := o.locks.acquire(lockPath)
	defer release()

	fixResult := o.fixer.Apply(ctx, suggestion, session.Error)
	attempt.Fix = &fixResult
	willRetry := attemptNum < budget

	if !fixResult.Success {
		o.recordFixFailed(session, suggestion, attemptNum, budget, fixResult.ErrorMessage, willRetry)
		session.Attempts = append(session.Attempts, attempt)
		return false
	}

	applied := o.newEvent(session, schemas.EventFixApplied, schemas.SeverityInfo)
	applied.FixDescription = suggestion.Description
	applied.AttemptNumber = attemptNum
	applied.MaxAttempts = budget
	yes := true
	applied.Success = &yes
	o.record(applied)

	session.State = schemas.StateValidating
	validation := o.validator.Validate(ctx, fixResult, session.Error, level, rerun)
	attempt.Validation = &validation

	if validation.Success {
		validated := o.newEvent(session, schemas.EventFixValidated, schemas.SeverityInfo)
		validated.AttemptNumber = attemptNum
		validated.MaxAttempts = budget
		ok := true
		validated.Success = &ok
		o.record(validated)

		session.Attempts = append(session.Attempts, attempt)
		o.finish(session, schemas.StateSuccess, schemas.FinalSuccess, true)
		return true
	}

	if o.cfg.Healing.RollbackOnFailure && fixResult.Rollback != nil && !fixResult.DryRun {
		attempt.RolledBack = o.fixer.Rollback(fixResult)
		session.State = schemas.StateRolledBack

		rollback := o.newEvent(session, schemas.EventRollbackPerformed, schemas.SeverityWarning)
		rollback.AttemptNumber = attemptNum
		rollback.MaxAttempts = budget
		rollback.Success = &attempt.RolledBack
		rollback.FilePath = fixResult.Rollback.TargetPath
		o.record(rollback)
	}

	reason := "validation failed"
	if len(validation.NewErrors) > 0 {
		reason += ": " + validation.NewErrors[0]
	}
	o.recordFixFailed(session, suggestion, attemptNum, budget, reason, willRetry)
	session.Attempts = append(session.Attempts, attempt)
	return false
}

// mergeAdapterFix lets the target adapter volunteer one extra suggestion
// and re-ranks the combined list. Duplicates of an analyzer suggestion are
// dropped.
func (o *Orchestrator) mergeAdapterFix(detected schemas.DetectedError, analysis *schemas.AnalysisResult) {
	adapter := o.adapters.Get(detected.Target)
	if adapter == nil {
		return
	}
	extra := adapter.GenerateFix(detected)
	if extra == nil {
		return
	}
	for _, existing := range analysis.Suggestions {
		if existing.Description == extra.Description && existing.Command == extra.Command {
			return
		}
	}
	analysis.Suggestions = append(analysis.Suggestions, *extra)
	analyze.SortSuggestions(analysis.Suggestions)
}

// abort ends a session without a validated fix. An operator is paged
// either way; final separates "nothing to try" (manual_required) from
// "tried everything and lost" (failed).
func (o *Orchestrator) abort(session *schemas.HealingSession, reason string, final schemas.FinalResult) *schemas.HealingSession {
	manual := o.newEvent(session, schemas.EventManualInterventionRequired, schemas.SeverityCritical)
	manual.ErrorMessage = reason
	o.record(manual)
	o.finish(session, schemas.StateManualRequired, final, false)
	return session
}

func (o *Orchestrator) finish(session *schemas.HealingSession, state schemas.SessionState, final schemas.FinalResult, success bool) {
	session.State = state
	session.FinalResult = final
	session.CompletedAt = time.Now().UTC()

	complete := o.newEvent(session, schemas.EventHealingComplete, schemas.SeverityInfo)
	complete.Success = &success
	complete.AttemptNumber = session.TotalAttempts
	complete.MaxAttempts = o.cfg.Healing.MaxAttempts
	complete.DurationMS = session.CompletedAt.Sub(session.StartedAt).Milliseconds()
	o.record(complete)

	// Completed sessions leave the active table; the caller keeps the
	// returned value and the audit trail keeps the history.
	o.mu.Lock()
	delete(o.sessions, session.IncidentID)
	o.mu.Unlock()

	o.logger.Info("healing session finished",
		zap.String("incident_id", session.IncidentID),
		zap.String("final_result", string(final)),
		zap.Int("attempts", session.TotalAttempts))
}

func (o *Orchestrator) recordFixFailed(session *schemas.HealingSession, suggestion schemas.FixSuggestion, attemptNum, budget int, reason string, willRetry bool) {
	failed := o.newEvent(session, schemas.EventFixFailed, schemas.SeverityWarning)
	failed.FixDescription = suggestion.Description
	failed.ErrorMessage = reason
	failed.AttemptNumber = attemptNum
	failed.MaxAttempts = budget
	no := false
	failed.Success = &no
	failed.WillRetry = &willRetry
	o.record(failed)
}

// newEvent seeds an event with the session's identity and error context.
func (o *Orchestrator) newEvent(session *schemas.HealingSession, eventType schemas.EventType, severity schemas.Severity) schemas.HealingEvent {
	return schemas.HealingEvent{
		IncidentID:   session.IncidentID,
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		Severity:     severity,
		Target:       session.Error.Target,
		ErrorKind:    session.Error.Kind,
		FilePath:     session.Error.Location.File,
		LineNumber:   session.Error.Location.Line,
		ErrorMessage: session.Error.Message,
	}
}

func (o *Orchestrator) record(event schemas.HealingEvent) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(event); err != nil {
		o.logger.Warn("failed to record audit event",
			zap.String("incident_id", event.IncidentID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// String-ish helper for logging unexpected fault types in entry points.
func faultType(err error) string {
	return fmt.Sprintf("%T", err)
}
