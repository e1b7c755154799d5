package cli

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/dynalock/pkg/config"
	"github.com/nimburion/dynalock/pkg/health"
	"github.com/nimburion/dynalock/pkg/lock"
	"github.com/nimburion/dynalock/pkg/observability/logger"
	"github.com/nimburion/dynalock/pkg/observability/tracing"
	"github.com/nimburion/dynalock/pkg/store"
	"github.com/nimburion/dynalock/pkg/version"
)

const defaultHealthcheckTimeout = 5 * time.Second

type configLoader func(cmd *cobra.Command) (*config.Config, logger.Logger, error)

func newProvisionCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the lease table or namespace for the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			leases, err := store.NewLeaseStore(cmd.Context(), cfg.Store, log)
			if err != nil {
				return fmt.Errorf("connect %s store: %w", cfg.Store.Type, err)
			}
			defer leases.Close()

			if err := leases.EnsureNamespace(cmd.Context()); err != nil {
				return fmt.Errorf("provision %s store: %w", cfg.Store.Type, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s lease namespace ready\n", cfg.Store.Type)
			return nil
		},
	}
}

func newHealthcheckCommand(loadConfig configLoader) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the configured lease store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			leases, err := store.NewLeaseStore(ctx, cfg.Store, log)
			if err != nil {
				return fmt.Errorf("connect %s store: %w", cfg.Store.Type, err)
			}
			defer leases.Close()

			registry := health.NewRegistry()
			registry.Register(health.NewAdapterChecker("lock-store", leases, timeout))
			result := registry.Check(ctx)
			for _, check := range result.Checks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", check.Name, check.Status)
				if check.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", check.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if !result.IsHealthy() {
				return fmt.Errorf("%s store is unhealthy", cfg.Store.Type)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultHealthcheckTimeout, "overall health check timeout")
	return cmd
}

func newConfigCommand(opts Options, flags *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, _, err := LoadConfigAndLogger(flags.configFile, opts.EnvPrefix, flags.secretFile, cmd.Flags()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, loader, _, err := LoadConfigAndLogger(flags.configFile, opts.EnvPrefix, flags.secretFile, cmd.Flags())
			if err != nil {
				return err
			}
			settings := loader.AllSettings()
			if !showSecrets {
				settings = redactSettingsMap(settings, loader.SecretSettings())
			}
			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	return configCmd
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			writeVersion(cmd.OutOrStdout(), version.Current(name))
		},
	}
}

func writeVersion(w io.Writer, info version.Info) {
	fmt.Fprintf(w, "Service:    %s\n", info.Service)
	fmt.Fprintf(w, "Version:    %s\n", info.Version)
	fmt.Fprintf(w, "Commit:     %s\n", info.Commit)
	fmt.Fprintf(w, "Build Time: %s\n", info.BuildTime)
	fmt.Fprintf(w, "Go:         %s\n", info.GoVersion)
}

// newProvider connects the configured store and wraps it in a lock provider.
func newProvider(ctx context.Context, cfg *config.Config, log logger.Logger) (*lock.Provider, error) {
	leases, err := store.NewLeaseStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("connect %s store: %w", cfg.Store.Type, err)
	}
	provider, err := lock.NewProvider(leases, log, cfg.LockConfig())
	if err != nil {
		_ = leases.Close()
		return nil, err
	}
	return provider, nil
}

func setupTracing(ctx context.Context, cfg *config.Config) (*tracing.TracerProvider, error) {
	return tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
}

func formatSettings(settings map[string]any) (string, error) {
	if settings == nil {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func redactSettingsMap(settings, secrets map[string]any) map[string]any {
	if len(settings) == 0 || len(secrets) == 0 {
		return settings
	}
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		mask, ok := secrets[key]
		if !ok {
			out[key] = value
			continue
		}
		out[key] = redactSettingValue(value, mask)
	}
	return out
}

func redactSettingValue(value, mask any) any {
	if maskMap, ok := mask.(map[string]any); ok {
		valueMap, ok := value.(map[string]any)
		if !ok {
			return redactLeaf(value, len(maskMap) > 0)
		}
		return redactSettingsMap(valueMap, maskMap)
	}
	return redactLeaf(value, shouldRedactSetting(mask))
}

// redactLeaf masks non-empty values; an unset secret stays visibly empty.
func redactLeaf(value any, redact bool) any {
	if !redact || value == nil {
		return value
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return value
	}
	return "***"
}

func shouldRedactSetting(mask any) bool {
	if mask == nil {
		return false
	}
	switch value := mask.(type) {
	case string:
		return strings.TrimSpace(value) != ""
	case bool:
		return value
	case []any:
		return len(value) > 0
	default:
		return !reflect.ValueOf(mask).IsZero()
	}
}
