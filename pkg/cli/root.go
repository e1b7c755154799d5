// Package cli builds the dynalock command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nimburion/dynalock/pkg/config"
	"github.com/nimburion/dynalock/pkg/observability/logger"
)

const defaultEnvFile = ".env"

// Options configures the root command.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

type globalFlags struct {
	configFile string
	envFile    string
	secretFile string
}

// NewRootCommand creates the dynalock CLI with hold, provision, healthcheck,
// config and version subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "dynalock"
	}
	opts.EnvPrefix = resolveEnvPrefix(opts.EnvPrefix)

	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(flags.envFile)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&flags.envFile, "env-file", "", "dotenv file loaded before reading the environment (default .env when present)")
	pf.StringVar(&flags.secretFile, "secret-file", "", fmt.Sprintf("path to secrets file (sets %s_SECRETS_FILE)", opts.EnvPrefix))
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")

	loadConfig := func(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
		cfg, _, log, err := LoadConfigAndLogger(flags.configFile, opts.EnvPrefix, flags.secretFile, cmd.Flags())
		return cfg, log, err
	}

	rootCmd.AddCommand(
		newHoldCommand(loadConfig),
		newProvisionCommand(loadConfig),
		newHealthcheckCommand(loadConfig),
		newConfigCommand(opts, flags),
		newVersionCommand(opts.Name),
	)
	return rootCmd
}

// LoadConfigAndLogger loads configuration and builds the logger it describes.
// The returned loader exposes the merged settings for display.
func LoadConfigAndLogger(cfgPath, envPrefix, secretFilePath string, flags *pflag.FlagSet) (*config.Config, *config.ViperLoader, logger.Logger, error) {
	envPrefix = resolveEnvPrefix(envPrefix)
	if err := applySecretFileFlag(envPrefix, secretFilePath); err != nil {
		return nil, nil, nil, err
	}

	loader := config.NewViperLoader(cfgPath, envPrefix)
	if flags != nil {
		loader.WithFlag("observability.log_level", flags.Lookup("log-level")).
			WithFlag("observability.log_format", flags.Lookup("log-format"))
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	level, _ := logger.ParseLogLevel(cfg.Observability.LogLevel)
	format, _ := logger.ParseLogFormat(cfg.Observability.LogFormat)
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log.Debug("configuration loaded",
		"service", cfg.Service.Name,
		"store", cfg.Store.Type,
		"ttl", cfg.Lock.TTL,
		"heartbeat_interval", cfg.Lock.HeartbeatInterval,
	)
	return cfg, loader, log, nil
}

// Execute runs the command with SIGINT/SIGTERM cancelling its context and
// exits non-zero on failure.
func Execute(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvFile loads an explicit dotenv file, or .env when one exists.
// Variables already present in the environment are not overridden.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return nil
		}
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return errors.New("secret file " + secretFilePath + " must not be a directory")
	}
	return os.Setenv(envPrefix+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return config.DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}
