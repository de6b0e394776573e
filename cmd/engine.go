// File: cmd/engine.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/analyze"
	"github.com/xkilldash9x/mend-cli/internal/analyze/pysource"
	"github.com/xkilldash9x/mend-cli/internal/audit"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
	"github.com/xkilldash9x/mend-cli/internal/fix"
	"github.com/xkilldash9x/mend-cli/internal/heal"
	"github.com/xkilldash9x/mend-cli/internal/targets"
	"github.com/xkilldash9x/mend-cli/internal/validate"
)

// engine bundles the wired healing pipeline for the CLI commands.
type engine struct {
	orchestrator *heal.Orchestrator
	classifier   *classify.Classifier
	adapters     targets.Registry
	trail        *audit.Trail
}

// buildEngine assembles the real pipeline from configuration. Commands
// call this once; tests construct their collaborators directly.
func buildEngine(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*engine, error) {
	classifier := classify.NewClassifier(logger)

	analyzer := analyze.NewAnalyzer(logger)
	analyzer.RegisterSourceAnalyzer(schemas.TargetPython, pysource.NewAnalyzer(logger))

	adapters := targets.NewRegistry(logger, cfg, classifier)

	fixer := fix.NewFixer(logger, cfg)
	for kind, adapter := range adapters {
		fixer.RegisterSyntaxChecker(kind, adapter)
	}

	validator := validate.NewValidator(logger, cfg, adapters)

	trail, err := audit.NewTrail(logger, cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}

	if cfg.Audit.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			trail.Close()
			return nil, fmt.Errorf("failed to connect to audit database: %w", err)
		}
		sink, err := audit.NewPostgresSink(ctx, pool, logger)
		if err != nil {
			pool.Close()
			trail.Close()
			return nil, fmt.Errorf("failed to initialize audit database sink: %w", err)
		}
		trail.AddSink(sink)
	}

	orchestrator := heal.New(logger, cfg, classifier, analyzer, fixer, validator, trail, adapters)

	return &engine{
		orchestrator: orchestrator,
		classifier:   classifier,
		adapters:     adapters,
		trail:        trail,
	}, nil
}

func (e *engine) Close() error {
	return e.trail.Close()
}
