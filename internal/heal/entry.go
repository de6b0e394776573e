// File: internal/heal/entry.go
package heal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
)

// defaultRunTimeout bounds a script execution kicked off by RunScript.
const defaultRunTimeout = 10 * time.Minute

// ErrNoAdapter is returned when no adapter is registered for a target.
var ErrNoAdapter = errors.New("no adapter registered for target")

// Guard runs fn and, if it fails, heals the failure and re-invokes fn
// exactly once. The original error is returned when healing does not
// succeed, so callers see the same failure they would without guarding.
func (o *Orchestrator) Guard(ctx context.Context, target schemas.TargetKind, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}

	detected := o.classifier.FromFault(target, classify.Fault{
		FaultType: faultType(err),
		Message:   err.Error(),
	})

	session := o.Heal(ctx, detected, Options{Rerun: fn})
	if !session.Succeeded() {
		return err
	}

	if retryErr := fn(ctx); retryErr != nil {
		o.logger.Warn("guarded operation failed again after healing",
			zap.String("incident_id", session.IncidentID),
			zap.Error(retryErr))
		return retryErr
	}
	return nil
}

// GuardFunc wraps a callable so every invocation is guarded. This is the
// reusable form of Guard for callbacks registered once and invoked many
// times.
func (o *Orchestrator) GuardFunc(target schemas.TargetKind, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return o.Guard(ctx, target, fn)
	}
}

// RunScript executes an artifact through its adapter, healing any failure
// it produces. The artifact's syntax is probed first so a file that cannot
// even parse is healed before anything runs. A clean first run returns a
// nil session.
func (o *Orchestrator) RunScript(ctx context.Context, target schemas.TargetKind, artifactPath string, args []string) (*schemas.HealingSession, error) {
	adapter := o.adapters.Get(target)
	if adapter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, target)
	}

	if valid, msg := adapter.CheckSyntax(artifactPath); !valid {
		detected := o.classifier.FromFault(target, classify.Fault{
			FaultType: "SyntaxError",
			Message:   msg,
			Location:  schemas.Location{File: artifactPath},
		})
		detected.Kind = schemas.ErrorKindSyntax

		session := o.Heal(ctx, detected, Options{})
		if !session.Succeeded() {
			return session, fmt.Errorf("syntax error in %s: %s", artifactPath, msg)
		}
	}

	exitCode, stdout, stderr, err := adapter.Execute(ctx, artifactPath, args, defaultRunTimeout)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", artifactPath, err)
	}

	detected := adapter.ParseError(artifactPath, stdout, stderr, exitCode)
	if detected == nil {
		return nil, nil
	}

	rerun := func(ctx context.Context) error {
		code, out, errOut, runErr := adapter.Execute(ctx, artifactPath, args, defaultRunTimeout)
		if runErr != nil {
			return runErr
		}
		if still := adapter.ParseError(artifactPath, out, errOut, code); still != nil {
			return errors.New(still.Message)
		}
		return nil
	}

	session := o.Heal(ctx, *detected, Options{Rerun: rerun})
	if !session.Succeeded() {
		return session, fmt.Errorf("run failed and could not be healed: %s", detected.Message)
	}

	if runErr := rerun(ctx); runErr != nil {
		return session, fmt.Errorf("run still failing after healing: %w", runErr)
	}
	return session, nil
}

// HealFromOutput ingests output captured elsewhere (CI logs, a pasted
// terminal session) and heals whatever failure it describes. A nil session
// means the output carried no detectable error.
func (o *Orchestrator) HealFromOutput(ctx context.Context, target schemas.TargetKind, artifactPath, stdout, stderr string, exitCode int) *schemas.HealingSession {
	detected := o.classifier.FromOutput(target, artifactPath, stdout, stderr, exitCode)
	if detected == nil {
		return nil
	}
	return o.Heal(ctx, *detected, Options{})
}
