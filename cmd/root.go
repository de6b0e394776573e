// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/internal/config"
	"github.com/xkilldash9x/mend-cli/internal/observability"
)

// appCfg is populated once by the root command's PersistentPreRunE and
// read by every subcommand.
var appCfg *config.Config

// NewRootCommand builds a fresh root command tree. A new instance per
// execution keeps flag state from leaking between runs and tests.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "mend",
		Short:   "Mend detects, diagnoses, and repairs failures in scripts and infrastructure runs.",
		Version: Version,
		// SilenceUsage keeps cobra from dumping help text after a runtime
		// failure; usage errors still print it.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This function runs before any command, setting up config and logging.
			if err := initializeConfig(cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				// Initialize a fallback logger so the failure is at least visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "mend"})
				return fmt.Errorf("failed to load config: %w", err)
			}
			appCfg = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting mend", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "preview fixes without touching anything")
	_ = viper.BindPFlag("safety.dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newHealCmd(),
		newRunCmd(),
		newWatchCmd(),
		newStatsCmd(),
	)
	return rootCmd
}

// Execute runs a fresh root command under the given context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Use the logger if available, otherwise fall back to stderr.
		if logger := observability.GetLogger(); logger != nil && logger != zap.NewNop() {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(cfgFile string) error {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mend"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	config.SetDefaults(v)

	v.SetEnvPrefix("MEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}
	return nil
}
