// File: internal/targets/ansible.go
package targets

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

// AnsibleAdapter drives the automation-playbook tool.
type AnsibleAdapter struct {
	logger     *zap.Logger
	cfg        config.AnsibleConfig
	classifier *classify.Classifier
}

func NewAnsibleAdapter(logger *zap.Logger, cfg config.AnsibleConfig, classifier *classify.Classifier) *AnsibleAdapter {
	return &AnsibleAdapter{
		logger:     logger.Named("target-ansible"),
		cfg:        cfg,
		classifier: classifier,
	}
}

func (a *AnsibleAdapter) Kind() schemas.TargetKind { return schemas.TargetAnsible }

func (a *AnsibleAdapter) binary() string {
	if a.cfg.Binary != "" {
		return a.cfg.Binary
	}
	return "ansible-playbook"
}

func (a *AnsibleAdapter) Execute(ctx context.Context, artifactPath string, args []string, timeout time.Duration) (int, string, string, error) {
	cmdArgs := []string{artifactPath}
	if a.cfg.CheckModeFirst {
		cmdArgs = append(cmdArgs, "--check")
	}
	if a.cfg.DiffMode {
		cmdArgs = append(cmdArgs, "--diff")
	}
	cmdArgs = append(cmdArgs, args...)
	return runCommand(ctx, timeout, "", a.binary(), cmdArgs...)
}

func (a *AnsibleAdapter) CheckSyntax(artifactPath string) (bool, string) {
	if !toolAvailable(a.binary()) {
		return true, "ansible-playbook binary not available; syntax check skipped"
	}
	exitCode, stdout, stderr, err := runCommand(context.Background(), syntaxCheckTimeout,
		"", a.binary(), "--syntax-check", artifactPath)
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

func (a *AnsibleAdapter) ParseError(artifactPath, stdout, stderr string, exitCode int) *schemas.DetectedError {
	return a.classifier.FromOutput(schemas.TargetAnsible, artifactPath, stdout, stderr, exitCode)
}

func (a *AnsibleAdapter) GenerateFix(detected schemas.DetectedError) *schemas.FixSuggestion {
	switch detected.Kind {
	case schemas.ErrorKindNetwork:
		return &schemas.FixSuggestion{
			Description:    "Retry the play once the unreachable host settles",
			Reasoning:      "Host connectivity failures during provisioning are usually transient.",
			Confidence:     schemas.ConfidenceMedium,
			Kind:           schemas.FixKindRetryOnly,
			TargetLocation: detected.Location,
			Priority:       2,
		}
	case schemas.ErrorKindDependency:
		if strings.Contains(detected.Message, "No module named") {
			return &schemas.FixSuggestion{
				Description:    "Install the Python library the module depends on",
				Reasoning:      "Ansible modules import their Python dependencies on the controller.",
				Confidence:     schemas.ConfidenceMedium,
				Kind:           schemas.FixKindCommand,
				Command:        "pip install ansible",
				TargetLocation: detected.Location,
				Priority:       3,
			}
		}
	}
	return nil
}
