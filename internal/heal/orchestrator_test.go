// File: internal/heal/orchestrator_test.go
package heal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
	"github.com/xkilldash9x/mend-cli/internal/validate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Test doubles --

type fakeAnalyzer struct {
	result schemas.AnalysisResult
}

func (f fakeAnalyzer) Analyze(schemas.DetectedError) schemas.AnalysisResult { return f.result }

type fakeApplier struct {
	mu         sync.Mutex
	applies    int
	rollbacks  int
	applyFails bool
}

func (f *fakeApplier) Apply(_ context.Context, _ schemas.FixSuggestion, _ schemas.DetectedError) schemas.FixResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies++
	if f.applyFails {
		return schemas.FixResult{ErrorMessage: "apply failed"}
	}
	return schemas.FixResult{
		Success:  true,
		Rollback: &schemas.RollbackInfo{TargetPath: "/tmp/artifact", OriginalContent: "original"},
	}
}

func (f *fakeApplier) Rollback(schemas.FixResult) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	return true
}

type fakeChecker struct {
	mu     sync.Mutex
	calls  int
	passOn int // validation passes on this call number; 0 never passes
}

func (f *fakeChecker) Validate(_ context.Context, _ schemas.FixResult, _ schemas.DetectedError, _ validate.Level, _ validate.RerunFunc) schemas.ValidationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	ok := f.passOn > 0 && f.calls == f.passOn
	return schemas.ValidationResult{Success: ok, SyntaxValid: true}
}

type memRecorder struct {
	mu     sync.Mutex
	events []schemas.HealingEvent
}

func (r *memRecorder) Record(event schemas.HealingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memRecorder) byType(t schemas.EventType) []schemas.HealingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schemas.HealingEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func suggestions(n int) []schemas.FixSuggestion {
	out := make([]schemas.FixSuggestion, n)
	for i := range out {
		out[i] = schemas.FixSuggestion{
			Description: "candidate",
			Kind:        schemas.FixKindCodeChange,
			Confidence:  schemas.ConfidenceMedium,
			Priority:    i,
		}
	}
	return out
}

type fixture struct {
	orch     *Orchestrator
	cfg      *config.Config
	applier  *fakeApplier
	checker  *fakeChecker
	recorder *memRecorder
	delays   *[]time.Duration
}

func newFixture(t *testing.T, analysis schemas.AnalysisResult, checker *fakeChecker) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	logger := zap.NewNop()
	applier := &fakeApplier{}
	recorder := &memRecorder{}

	orch := New(logger, cfg, classify.NewClassifier(logger),
		fakeAnalyzer{result: analysis}, applier, checker, recorder, nil)

	delays := &[]time.Duration{}
	orch.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}

	return &fixture{orch: orch, cfg: cfg, applier: applier, checker: checker, recorder: recorder, delays: delays}
}

func sampleError() schemas.DetectedError {
	return schemas.DetectedError{
		Kind:    schemas.ErrorKindRuntime,
		Target:  schemas.TargetPython,
		Message: "KeyError: 'name'",
	}
}

// -- Tests --

func TestHealDisabledEmitsNothing(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(2)}, &fakeChecker{passOn: 1})
	fx.cfg.Healing.Enabled = false

	session := fx.orch.Heal(context.Background(), sampleError(), Options{})

	assert.Equal(t, schemas.StateDisabled, session.State)
	assert.Equal(t, schemas.FinalDisabled, session.FinalResult)
	assert.Empty(t, fx.recorder.events, "disabled healing must emit zero events")
	assert.Zero(t, fx.applier.applies)
}

func TestHealFirstAttemptSucceeds(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(3)}, &fakeChecker{passOn: 1})

	session := fx.orch.Heal(context.Background(), sampleError(), Options{})

	assert.Equal(t, schemas.FinalSuccess, session.FinalResult)
	assert.Equal(t, schemas.StateSuccess, session.State)
	assert.Equal(t, 1, session.TotalAttempts)
	assert.Equal(t, 1, fx.applier.applies)
	assert.Zero(t, fx.applier.rollbacks)

	completes := fx.recorder.byType(schemas.EventHealingComplete)
	require.Len(t, completes, 1)
	require.NotNil(t, completes[0].Success)
	assert.True(t, *completes[0].Success)
}

// Five candidates, a budget of three, validation passing on the third
// try: exactly three attempts run and the two failures roll back.
func TestHealThirdAttemptSucceeds(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(5)}, &fakeChecker{passOn: 3})

	session := fx.orch.Heal(context.Background(), sampleError(), Options{})

	assert.Equal(t, schemas.FinalSuccess, session.FinalResult)
	assert.Equal(t, 3, session.TotalAttempts)
	assert.Equal(t, 3, fx.applier.applies)
	assert.Equal(t, 2, fx.applier.rollbacks)
	assert.Len(t, fx.recorder.byType(schemas.EventRollbackPerformed), 2)
	assert.Len(t, fx.recorder.byType(schemas.EventFixValidated), 1,
		"validation is only announced when it passes; failures surface as fix_failed")
	assert.Len(t, session.Attempts, 3)
	assert.True(t, session.Attempts[0].RolledBack)
	assert.True(t, session.Attempts[1].RolledBack)
	assert.False(t, session.Attempts[2].RolledBack)
}

// The attempt budget is min(candidates, max_attempts) in both directions.
func TestHealRetryBudget(t *testing.T) {
	t.Parallel()

	t.Run("candidates exceed max attempts", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(5)}, &fakeChecker{})
		fx.cfg.Healing.MaxAttempts = 3

		session := fx.orch.Heal(context.Background(), sampleError(), Options{})
		assert.Equal(t, schemas.FinalFailed, session.FinalResult)
		assert.Equal(t, 3, fx.applier.applies)
	})

	t.Run("fewer candidates than max attempts", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(2)}, &fakeChecker{})
		fx.cfg.Healing.MaxAttempts = 5

		session := fx.orch.Heal(context.Background(), sampleError(), Options{})
		assert.Equal(t, schemas.FinalFailed, session.FinalResult)
		assert.Equal(t, 2, fx.applier.applies)
	})
}

// Exhaustion produces exactly one manual-intervention event, recorded
// before the terminal completion event, and closes the session as failed.
func TestHealExhaustionEventOrder(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(3)}, &fakeChecker{})

	session := fx.orch.Heal(context.Background(), sampleError(), Options{})

	assert.Equal(t, schemas.FinalFailed, session.FinalResult,
		"running out of suggestions is a failure; manual_required is reserved for having none")
	assert.Equal(t, schemas.StateManualRequired, session.State)

	manuals := fx.recorder.byType(schemas.EventManualInterventionRequired)
	require.Len(t, manuals, 1)

	events := fx.recorder.events
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, schemas.EventHealingComplete, last.Type)
	require.NotNil(t, last.Success)
	assert.False(t, *last.Success)
	assert.Equal(t, schemas.EventManualInterventionRequired, events[len(events)-2].Type)
}

func TestHealNoSuggestionsRequiresManual(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{RequiresHumanReview: true}, &fakeChecker{})

	session := fx.orch.Heal(context.Background(), sampleError(), Options{})

	assert.Equal(t, schemas.FinalManualRequired, session.FinalResult)
	assert.Zero(t, fx.applier.applies)
	assert.Empty(t, fx.recorder.byType(schemas.EventFixGenerated))
	assert.Len(t, fx.recorder.byType(schemas.EventManualInterventionRequired), 1)
}

// Backoff delays grow by the configured multiplier and respect the cap.
func TestHealBackoffGrowth(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(4)}, &fakeChecker{})
	fx.cfg.Healing.MaxAttempts = 4
	fx.cfg.Healing.InitialDelaySeconds = 1
	fx.cfg.Healing.BackoffMultiplier = 2
	fx.cfg.Healing.MaxDelaySeconds = 3

	fx.orch.Heal(context.Background(), sampleError(), Options{})

	require.Len(t, *fx.delays, 3, "a backoff sleep between each pair of attempts")
	assert.Equal(t, 1*time.Second, (*fx.delays)[0])
	assert.Equal(t, 2*time.Second, (*fx.delays)[1])
	assert.Equal(t, 3*time.Second, (*fx.delays)[2], "delay is capped at max_delay_seconds")
}

func TestHealCancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(3)}, &fakeChecker{})
	fx.orch.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	session := fx.orch.Heal(context.Background(), sampleError(), Options{})

	assert.Equal(t, schemas.FinalFailed, session.FinalResult)
	assert.Equal(t, 1, fx.applier.applies, "no further attempts after cancellation")
}

func TestHealFailedApplySkipsValidation(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(2)}, &fakeChecker{passOn: 1})
	fx.applier.applyFails = true

	session := fx.orch.Heal(context.Background(), sampleError(), Options{})

	assert.Equal(t, schemas.FinalFailed, session.FinalResult)
	assert.Zero(t, fx.checker.calls)
	assert.Zero(t, fx.applier.rollbacks, "nothing applied means nothing to roll back")
	assert.Len(t, fx.recorder.byType(schemas.EventFixFailed), 2)
}

// visibilityRecorder notes, for every event, whether the session was
// visible in the active table at the moment the event was emitted.
type visibilityRecorder struct {
	orch *Orchestrator

	mu           sync.Mutex
	activeDuring map[schemas.EventType]bool
}

func (r *visibilityRecorder) Record(event schemas.HealingEvent) error {
	_, active := r.orch.Session(event.IncidentID)
	r.mu.Lock()
	r.activeDuring[event.Type] = active
	r.mu.Unlock()
	return nil
}

// A session is queryable while it runs and archived once it completes.
func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	cfg := config.NewDefaultConfig()
	logger := zap.NewNop()
	recorder := &visibilityRecorder{activeDuring: make(map[schemas.EventType]bool)}

	orch := New(logger, cfg, classify.NewClassifier(logger),
		fakeAnalyzer{result: schemas.AnalysisResult{Suggestions: suggestions(1)}},
		&fakeApplier{}, &fakeChecker{passOn: 1}, recorder, nil)
	recorder.orch = orch

	session := orch.Heal(context.Background(), sampleError(), Options{})
	require.Equal(t, schemas.FinalSuccess, session.FinalResult)

	assert.True(t, recorder.activeDuring[schemas.EventErrorDetected],
		"session is visible in the active table while healing runs")

	_, ok := orch.Session(session.IncidentID)
	assert.False(t, ok, "completed session is removed from the active table")

	_, ok = orch.Session("no-such-incident")
	assert.False(t, ok)
}

// overlapApplier tracks how many fix applications run at once.
type overlapApplier struct {
	mu        sync.Mutex
	active    int
	maxActive int
}

func (a *overlapApplier) Apply(context.Context, schemas.FixSuggestion, schemas.DetectedError) schemas.FixResult {
	a.mu.Lock()
	a.active++
	if a.active > a.maxActive {
		a.maxActive = a.active
	}
	a.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	a.mu.Lock()
	a.active--
	a.mu.Unlock()
	return schemas.FixResult{Success: true, Rollback: &schemas.RollbackInfo{TargetPath: "/tmp/shared.py"}}
}

func (a *overlapApplier) Rollback(schemas.FixResult) bool { return true }

type passChecker struct{}

func (passChecker) Validate(context.Context, schemas.FixResult, schemas.DetectedError, validate.Level, validate.RerunFunc) schemas.ValidationResult {
	return schemas.ValidationResult{Success: true, SyntaxValid: true}
}

// Concurrent sessions against the same artifact serialize their fix
// attempts even when the suggestion carries no target location of its own.
func TestHealSerializesSameArtifact(t *testing.T) {
	t.Parallel()
	cfg := config.NewDefaultConfig()
	logger := zap.NewNop()
	applier := &overlapApplier{}

	orch := New(logger, cfg, classify.NewClassifier(logger),
		fakeAnalyzer{result: schemas.AnalysisResult{Suggestions: suggestions(1)}},
		applier, passChecker{}, &memRecorder{}, nil)

	detected := sampleError()
	detected.Location = schemas.Location{File: "/tmp/shared.py", Line: 3}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := orch.Heal(context.Background(), detected, Options{})
			assert.Equal(t, schemas.FinalSuccess, session.FinalResult)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applier.maxActive,
		"fix application against one artifact never overlaps")
}

func TestGuardHealsAndRetriesOnce(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(1)}, &fakeChecker{passOn: 1})

	var calls int
	fn := func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("KeyError: 'name'")
		}
		return nil
	}

	err := fx.orch.Guard(context.Background(), schemas.TargetPython, fn)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls, "original call plus one retry after healing")
}

func TestGuardReturnsOriginalErrorOnFailedHealing(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(1)}, &fakeChecker{})

	original := errors.New("KeyError: 'name'")
	var calls int
	fn := func(ctx context.Context) error {
		calls++
		return original
	}

	err := fx.orch.Guard(context.Background(), schemas.TargetPython, fn)
	assert.Equal(t, original, err)
	assert.Equal(t, 1, calls, "no retry when healing fails")
}

func TestGuardPassesThroughSuccess(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{}, &fakeChecker{})

	err := fx.orch.Guard(context.Background(), schemas.TargetPython, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
	assert.Empty(t, fx.recorder.events)
}

func TestHealFromOutputCleanRun(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{}, &fakeChecker{})

	session := fx.orch.HealFromOutput(context.Background(),
		schemas.TargetPython, "app.py", "all fine\n", "", 0)
	assert.Nil(t, session)
	assert.Empty(t, fx.recorder.events)
}

func TestHealFromOutputFailure(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, schemas.AnalysisResult{Suggestions: suggestions(1)}, &fakeChecker{passOn: 1})

	session := fx.orch.HealFromOutput(context.Background(),
		schemas.TargetPython, "app.py", "",
		"Traceback (most recent call last):\n  File \"app.py\", line 1\nModuleNotFoundError: No module named 'requests'\n", 1)

	require.NotNil(t, session)
	assert.Equal(t, schemas.FinalSuccess, session.FinalResult)
	assert.Equal(t, schemas.ErrorKindDependency, session.Error.Kind)
}
