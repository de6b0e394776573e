// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is constructed once
// at startup and handed to each component explicitly; there is no process
// global.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Healing    HealingConfig    `mapstructure:"healing" yaml:"healing"`
	Safety     SafetyConfig     `mapstructure:"safety" yaml:"safety"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
	Audit      AuditConfig      `mapstructure:"audit" yaml:"audit"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Targets    TargetsConfig    `mapstructure:"targets" yaml:"targets"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// HealingConfig tunes the retry loop of the remediation engine.
type HealingConfig struct {
	Enabled             bool    `mapstructure:"enabled" yaml:"enabled"`
	MaxAttempts         int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffMultiplier   float64 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	InitialDelaySeconds float64 `mapstructure:"initial_delay_seconds" yaml:"initial_delay_seconds"`
	MaxDelaySeconds     float64 `mapstructure:"max_delay_seconds" yaml:"max_delay_seconds"`
	RollbackOnFailure   bool    `mapstructure:"rollback_on_failure" yaml:"rollback_on_failure"`
	// ValidationLevel is one of "quick", "standard", "thorough".
	ValidationLevel string `mapstructure:"validation_level" yaml:"validation_level"`
}

// SafetyConfig gates every mutating action the fixer may take.
type SafetyConfig struct {
	DryRun                  bool     `mapstructure:"dry_run" yaml:"dry_run"`
	BackupBeforeFix         bool     `mapstructure:"backup_before_fix" yaml:"backup_before_fix"`
	SandboxExecution        bool     `mapstructure:"sandbox_execution" yaml:"sandbox_execution"`
	MaxFileSizeKB           int      `mapstructure:"max_file_size_kb" yaml:"max_file_size_kb"`
	ProtectedPaths          []string `mapstructure:"protected_paths" yaml:"protected_paths"`
	AllowedExternalCommands []string `mapstructure:"allowed_external_commands" yaml:"allowed_external_commands"`
	// CommandsPerMinute bounds how fast command-kind fixes may spawn
	// external processes across all sessions.
	CommandsPerMinute int `mapstructure:"commands_per_minute" yaml:"commands_per_minute"`
}

// ValidationConfig controls post-fix verification.
type ValidationConfig struct {
	TestTimeoutSeconds int `mapstructure:"test_timeout_seconds" yaml:"test_timeout_seconds"`
	// TestCommands and LintCommands map a target kind to a command
	// template; "{file}" is substituted with the artifact path.
	TestCommands map[string]string `mapstructure:"test_commands" yaml:"test_commands"`
	LintCommands map[string]string `mapstructure:"lint_commands" yaml:"lint_commands"`
}

// AuditConfig locates the append-only changelog and its text mirror.
type AuditConfig struct {
	Directory     string `mapstructure:"directory" yaml:"directory"`
	ChangelogFile string `mapstructure:"changelog_file" yaml:"changelog_file"`
	MaxLogSizeMB  int    `mapstructure:"max_log_size_mb" yaml:"max_log_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups" yaml:"max_backups"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
	// PostgresDSN, when set, mirrors every event into a database table.
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// WatchConfig configures the log-tailing trigger.
type WatchConfig struct {
	LogPath string `mapstructure:"log_path" yaml:"log_path"`
	// Target names the environment the watched application belongs to.
	Target string `mapstructure:"target" yaml:"target"`
	// FlushMillis is how long a burst of error lines may go quiet before
	// it is treated as complete.
	FlushMillis int `mapstructure:"flush_millis" yaml:"flush_millis"`
}

// TargetsConfig carries per-environment adapter settings.
type TargetsConfig struct {
	Python    PythonConfig    `mapstructure:"python" yaml:"python"`
	Terraform TerraformConfig `mapstructure:"terraform" yaml:"terraform"`
	Ansible   AnsibleConfig   `mapstructure:"ansible" yaml:"ansible"`
	Shell     ShellConfig     `mapstructure:"shell" yaml:"shell"`
}

// PythonConfig tunes the dynamic-script adapter.
type PythonConfig struct {
	Interpreter string `mapstructure:"interpreter" yaml:"interpreter"`
	PipTimeout  int    `mapstructure:"pip_timeout" yaml:"pip_timeout"`
	LintCommand string `mapstructure:"lint_command" yaml:"lint_command"`
}

// TerraformConfig tunes the infra-as-code adapter.
type TerraformConfig struct {
	Binary          string `mapstructure:"binary" yaml:"binary"`
	AutoInit        bool   `mapstructure:"auto_init" yaml:"auto_init"`
	PlanBeforeApply bool   `mapstructure:"plan_before_apply" yaml:"plan_before_apply"`
}

// AnsibleConfig tunes the automation-playbook adapter.
type AnsibleConfig struct {
	Binary         string `mapstructure:"binary" yaml:"binary"`
	CheckModeFirst bool   `mapstructure:"check_mode_first" yaml:"check_mode_first"`
	DiffMode       bool   `mapstructure:"diff_mode" yaml:"diff_mode"`
}

// ShellConfig tunes the shell-script adapter.
type ShellConfig struct {
	Shell      string `mapstructure:"shell" yaml:"shell"`
	StrictMode bool   `mapstructure:"strict_mode" yaml:"strict_mode"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mend")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// Healing defaults
	v.SetDefault("healing.enabled", true)
	v.SetDefault("healing.max_attempts", 3)
	v.SetDefault("healing.backoff_multiplier", 2.0)
	v.SetDefault("healing.initial_delay_seconds", 1.0)
	v.SetDefault("healing.max_delay_seconds", 60.0)
	v.SetDefault("healing.rollback_on_failure", true)
	v.SetDefault("healing.validation_level", "standard")

	// Safety defaults
	v.SetDefault("safety.dry_run", false)
	v.SetDefault("safety.backup_before_fix", true)
	v.SetDefault("safety.sandbox_execution", false)
	v.SetDefault("safety.max_file_size_kb", 10240)
	v.SetDefault("safety.protected_paths", []string{"/etc", "/usr", "/bin", "/sbin", "/var", "/root"})
	v.SetDefault("safety.allowed_external_commands", []string{"pip", "npm", "terraform", "ansible", "apt-get", "yum"})
	v.SetDefault("safety.commands_per_minute", 30)

	// Validation defaults
	v.SetDefault("validation.test_timeout_seconds", 300)
	v.SetDefault("validation.test_commands", map[string]string{
		"python": "python3 -m pytest {file}",
		"bash":   "bash {file}",
	})
	v.SetDefault("validation.lint_commands", map[string]string{
		"python":    "flake8 {file}",
		"terraform": "terraform fmt -check {file}",
	})

	// Audit defaults
	v.SetDefault("audit.directory", "./mend_logs")
	v.SetDefault("audit.changelog_file", "healing_changelog.json")
	v.SetDefault("audit.max_log_size_mb", 100)
	v.SetDefault("audit.max_backups", 5)
	v.SetDefault("audit.retention_days", 30)

	// Watch defaults
	v.SetDefault("watch.target", "python")
	v.SetDefault("watch.flush_millis", 200)

	// Target defaults
	v.SetDefault("targets.python.interpreter", "python3")
	v.SetDefault("targets.python.pip_timeout", 60)
	v.SetDefault("targets.python.lint_command", "flake8")
	v.SetDefault("targets.terraform.binary", "terraform")
	v.SetDefault("targets.terraform.auto_init", true)
	v.SetDefault("targets.terraform.plan_before_apply", true)
	v.SetDefault("targets.ansible.binary", "ansible-playbook")
	v.SetDefault("targets.ansible.check_mode_first", true)
	v.SetDefault("targets.ansible.diff_mode", true)
	v.SetDefault("targets.shell.shell", "/bin/bash")
	v.SetDefault("targets.shell.strict_mode", true)
}

// NewDefaultConfig builds a Config populated purely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults always unmarshal; this is unreachable short of a
		// programming error in SetDefaults.
		panic(fmt.Sprintf("default config failed to unmarshal: %v", err))
	}
	return cfg
}

// NewConfigFromViper unmarshals and normalizes a Config from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize expands user-relative paths and validates numeric bounds.
func (c *Config) normalize() error {
	dir, err := homedir.Expand(c.Audit.Directory)
	if err != nil {
		return fmt.Errorf("invalid audit directory %q: %w", c.Audit.Directory, err)
	}
	c.Audit.Directory = dir

	if c.Logger.LogFile != "" {
		lf, err := homedir.Expand(c.Logger.LogFile)
		if err != nil {
			return fmt.Errorf("invalid log file %q: %w", c.Logger.LogFile, err)
		}
		c.Logger.LogFile = lf
	}

	if c.Healing.MaxAttempts < 1 {
		return fmt.Errorf("healing.max_attempts must be >= 1, got %d", c.Healing.MaxAttempts)
	}
	if c.Healing.BackoffMultiplier < 1.0 {
		return fmt.Errorf("healing.backoff_multiplier must be >= 1.0, got %v", c.Healing.BackoffMultiplier)
	}
	return nil
}

// IsPathProtected reports whether a path resolves under any configured
// protected prefix. The check runs on the absolute, cleaned path so that
// relative traversal cannot sidestep it.
func (c *Config) IsPathProtected(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		// If the path cannot even be resolved, refuse to touch it.
		return true
	}
	for _, prefix := range c.Safety.ProtectedPaths {
		if abs == prefix || strings.HasPrefix(abs, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsCommandAllowed reports whether the first token of a command line is in
// the external-command allow-list.
func (c *Config) IsCommandAllowed(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	for _, allowed := range c.Safety.AllowedExternalCommands {
		if fields[0] == allowed {
			return true
		}
	}
	return false
}
