// File: internal/targets/python.go
package targets

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/analyze/pysource"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

// PythonAdapter runs dynamic scripts under the configured interpreter.
// Syntax probing is done in-process, so no interpreter is needed just to
// reject a malformed candidate.
type PythonAdapter struct {
	logger     *zap.Logger
	cfg        config.PythonConfig
	classifier *classify.Classifier
	source     *pysource.Analyzer
}

func NewPythonAdapter(logger *zap.Logger, cfg config.PythonConfig, classifier *classify.Classifier) *PythonAdapter {
	return &PythonAdapter{
		logger:     logger.Named("target-python"),
		cfg:        cfg,
		classifier: classifier,
		source:     pysource.NewAnalyzer(logger),
	}
}

func (a *PythonAdapter) Kind() schemas.TargetKind { return schemas.TargetPython }

func (a *PythonAdapter) Execute(ctx context.Context, artifactPath string, args []string, timeout time.Duration) (int, string, string, error) {
	interpreter := a.cfg.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	cmdArgs := append([]string{artifactPath}, args...)
	return runCommand(ctx, timeout, "", interpreter, cmdArgs...)
}

func (a *PythonAdapter) CheckSyntax(artifactPath string) (bool, string) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return false, "cannot read artifact: " + err.Error()
	}
	return a.source.CheckSyntax(data)
}

func (a *PythonAdapter) ParseError(artifactPath, stdout, stderr string, exitCode int) *schemas.DetectedError {
	return a.classifier.FromOutput(schemas.TargetPython, artifactPath, stdout, stderr, exitCode)
}

func (a *PythonAdapter) GenerateFix(detected schemas.DetectedError) *schemas.FixSuggestion {
	if detected.Kind != schemas.ErrorKindDependency {
		return nil
	}
	// "pip install -r requirements.txt" recovers multi-package drift that
	// the single-module pattern fix cannot.
	if strings.Contains(detected.Message, "No module named") {
		return &schemas.FixSuggestion{
			Description:    "Reinstall the script's declared dependencies",
			Reasoning:      "When one import is missing, the rest of the requirements file is often stale too.",
			Confidence:     schemas.ConfidenceLow,
			Kind:           schemas.FixKindCommand,
			Command:        "pip install -r requirements.txt",
			TargetLocation: detected.Location,
			Priority:       6,
		}
	}
	return nil
}
