// File: internal/targets/terraform.go
package targets

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

// syntaxCheckTimeout bounds adapter-level syntax probes that shell out to
// the environment's own tooling.
const syntaxCheckTimeout = 60 * time.Second

// TerraformAdapter drives the infra-as-code tool. Operations run in the
// artifact's directory, which is how the tool itself scopes its state.
type TerraformAdapter struct {
	logger     *zap.Logger
	cfg        config.TerraformConfig
	classifier *classify.Classifier
}

func NewTerraformAdapter(logger *zap.Logger, cfg config.TerraformConfig, classifier *classify.Classifier) *TerraformAdapter {
	return &TerraformAdapter{
		logger:     logger.Named("target-terraform"),
		cfg:        cfg,
		classifier: classifier,
	}
}

func (a *TerraformAdapter) Kind() schemas.TargetKind { return schemas.TargetTerraform }

func (a *TerraformAdapter) binary() string {
	if a.cfg.Binary != "" {
		return a.cfg.Binary
	}
	return "terraform"
}

func (a *TerraformAdapter) Execute(ctx context.Context, artifactPath string, args []string, timeout time.Duration) (int, string, string, error) {
	if len(args) == 0 {
		args = []string{"plan", "-no-color"}
	}
	return runCommand(ctx, timeout, filepath.Dir(artifactPath), a.binary(), args...)
}

// CheckSyntax validates the artifact's working directory. A missing binary
// counts as passing with a note; an unavailable tool must not wedge the
// whole pipeline.
func (a *TerraformAdapter) CheckSyntax(artifactPath string) (bool, string) {
	if !toolAvailable(a.binary()) {
		return true, "terraform binary not available; syntax check skipped"
	}
	exitCode, stdout, stderr, err := runCommand(context.Background(), syntaxCheckTimeout,
		filepath.Dir(artifactPath), a.binary(), "validate", "-no-color")
	if err != nil {
		return false, err.Error()
	}
	if exitCode != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = strings.TrimSpace(stdout)
		}
		return false, msg
	}
	return true, ""
}

func (a *TerraformAdapter) ParseError(artifactPath, stdout, stderr string, exitCode int) *schemas.DetectedError {
	return a.classifier.FromOutput(schemas.TargetTerraform, artifactPath, stdout, stderr, exitCode)
}

// GenerateFix mirrors the tool's own remediation advice per error kind.
func (a *TerraformAdapter) GenerateFix(detected schemas.DetectedError) *schemas.FixSuggestion {
	switch detected.Kind {
	case schemas.ErrorKindDependency:
		return &schemas.FixSuggestion{
			Description:    "Run terraform init to install providers and modules",
			Reasoning:      "Provider and module resolution failures clear after init.",
			Confidence:     schemas.ConfidenceHigh,
			Kind:           schemas.FixKindCommand,
			Command:        "terraform init",
			TargetLocation: detected.Location,
			Priority:       0,
		}
	case schemas.ErrorKindSyntax:
		return &schemas.FixSuggestion{
			Description:    "Run terraform fmt over the failing configuration",
			Reasoning:      "Canonical formatting clears block-layout complaints.",
			Confidence:     schemas.ConfidenceMedium,
			Kind:           schemas.FixKindCommand,
			Command:        "terraform fmt " + detected.Location.File,
			TargetLocation: detected.Location,
			Priority:       2,
		}
	case schemas.ErrorKindResource:
		if strings.Contains(detected.Message, "state lock") {
			return &schemas.FixSuggestion{
				Description:    "Force-unlock the state",
				Reasoning:      "A crashed run leaves the lock held; forcing it off is the documented recovery.",
				Confidence:     schemas.ConfidenceMedium,
				Kind:           schemas.FixKindCommand,
				Command:        "terraform force-unlock -force",
				TargetLocation: detected.Location,
				Priority:       1,
			}
		}
	}
	return nil
}
