package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix prefixes every environment variable the loader reads.
const DefaultEnvPrefix = "DYNALOCK"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      map[string]*pflag.Flag

	settings map[string]any
	secrets  map[string]any
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "DYNALOCK")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
		flags:      map[string]*pflag.Flag{},
	}
}

// WithFlag binds a command-line flag to a config key. A flag only wins over
// env and file values when it was set explicitly.
func (l *ViperLoader) WithFlag(key string, flag *pflag.Flag) *ViperLoader {
	if l == nil || flag == nil || strings.TrimSpace(key) == "" {
		return l
	}
	l.flags[key] = flag
	return l
}

// Load loads configuration with precedence: flags > ENV > secrets file > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	secrets, err := l.mergeSecrets(v)
	if err != nil {
		return nil, err
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	for key, flag := range l.flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	l.settings = v.AllSettings()
	l.secrets = secrets
	return &cfg, nil
}

// Validate validates the configuration
func (l *ViperLoader) Validate(cfg *Config) error {
	return cfg.Validate()
}

// AllSettings returns the merged settings tree of the last successful Load.
func (l *ViperLoader) AllSettings() map[string]any {
	if l == nil {
		return nil
	}
	return l.settings
}

// SecretSettings returns the keys that must be masked when settings are
// printed: everything read from the secrets file plus the credential keys.
func (l *ViperLoader) SecretSettings() map[string]any {
	mask := SensitiveSettings()
	if l != nil {
		mergeMask(mask, l.secrets)
	}
	return mask
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Lock
	v.BindEnv("lock.ttl", l.prefixedEnv("LOCK_TTL"))
	v.BindEnv("lock.heartbeat_interval", l.prefixedEnv("LOCK_HEARTBEAT_INTERVAL"))
	v.BindEnv("lock.jitter_margin", l.prefixedEnv("LOCK_JITTER_MARGIN"))

	// Store
	v.BindEnv("store.type", l.prefixedEnv("STORE_TYPE"))
	v.BindEnv("store.dynamodb.region", l.prefixedEnv("DYNAMODB_REGION"), "AWS_REGION")
	v.BindEnv("store.dynamodb.endpoint", l.prefixedEnv("DYNAMODB_ENDPOINT"))
	v.BindEnv("store.dynamodb.access_key_id", l.prefixedEnv("DYNAMODB_ACCESS_KEY_ID"))
	v.BindEnv("store.dynamodb.secret_access_key", l.prefixedEnv("DYNAMODB_SECRET_ACCESS_KEY"))
	v.BindEnv("store.dynamodb.session_token", l.prefixedEnv("DYNAMODB_SESSION_TOKEN"))
	v.BindEnv("store.dynamodb.table", l.prefixedEnv("DYNAMODB_TABLE"))
	v.BindEnv("store.dynamodb.operation_timeout", l.prefixedEnv("DYNAMODB_OPERATION_TIMEOUT"))
	v.BindEnv("store.dynamodb.provision_attempts", l.prefixedEnv("DYNAMODB_PROVISION_ATTEMPTS"))
	v.BindEnv("store.dynamodb.provision_interval", l.prefixedEnv("DYNAMODB_PROVISION_INTERVAL"))
	v.BindEnv("store.redis.url", l.prefixedEnv("REDIS_URL"))
	v.BindEnv("store.redis.prefix", l.prefixedEnv("REDIS_PREFIX"))
	v.BindEnv("store.redis.max_conns", l.prefixedEnv("REDIS_MAX_CONNS"))
	v.BindEnv("store.redis.operation_timeout", l.prefixedEnv("REDIS_OPERATION_TIMEOUT"))
	v.BindEnv("store.postgres.url", l.prefixedEnv("POSTGRES_URL"))
	v.BindEnv("store.postgres.table", l.prefixedEnv("POSTGRES_TABLE"))
	v.BindEnv("store.postgres.max_open_conns", l.prefixedEnv("POSTGRES_MAX_OPEN_CONNS"))
	v.BindEnv("store.postgres.max_idle_conns", l.prefixedEnv("POSTGRES_MAX_IDLE_CONNS"))
	v.BindEnv("store.postgres.conn_max_lifetime", l.prefixedEnv("POSTGRES_CONN_MAX_LIFETIME"))
	v.BindEnv("store.postgres.conn_max_idle_time", l.prefixedEnv("POSTGRES_CONN_MAX_IDLE_TIME"))
	v.BindEnv("store.postgres.query_timeout", l.prefixedEnv("POSTGRES_QUERY_TIMEOUT"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	v.BindEnv("management.addr", l.prefixedEnv("MGMT_ADDR"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))
	v.BindEnv("management.shutdown_timeout", l.prefixedEnv("MGMT_SHUTDOWN_TIMEOUT"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("lock.ttl", cfg.Lock.TTL)
	v.SetDefault("lock.heartbeat_interval", cfg.Lock.HeartbeatInterval)
	v.SetDefault("lock.jitter_margin", cfg.Lock.JitterMargin)

	v.SetDefault("store.type", cfg.Store.Type)
	v.SetDefault("store.dynamodb.region", cfg.Store.DynamoDB.Region)
	v.SetDefault("store.dynamodb.endpoint", cfg.Store.DynamoDB.Endpoint)
	v.SetDefault("store.dynamodb.access_key_id", cfg.Store.DynamoDB.AccessKeyID)
	v.SetDefault("store.dynamodb.secret_access_key", cfg.Store.DynamoDB.SecretAccessKey)
	v.SetDefault("store.dynamodb.session_token", cfg.Store.DynamoDB.SessionToken)
	v.SetDefault("store.dynamodb.table", cfg.Store.DynamoDB.Table)
	v.SetDefault("store.dynamodb.operation_timeout", cfg.Store.DynamoDB.OperationTimeout)
	v.SetDefault("store.dynamodb.provision_attempts", cfg.Store.DynamoDB.ProvisionAttempts)
	v.SetDefault("store.dynamodb.provision_interval", cfg.Store.DynamoDB.ProvisionInterval)
	v.SetDefault("store.redis.url", cfg.Store.Redis.URL)
	v.SetDefault("store.redis.prefix", cfg.Store.Redis.Prefix)
	v.SetDefault("store.redis.max_conns", cfg.Store.Redis.MaxConns)
	v.SetDefault("store.redis.operation_timeout", cfg.Store.Redis.OperationTimeout)
	v.SetDefault("store.postgres.url", cfg.Store.Postgres.URL)
	v.SetDefault("store.postgres.table", cfg.Store.Postgres.Table)
	v.SetDefault("store.postgres.max_open_conns", cfg.Store.Postgres.MaxOpenConns)
	v.SetDefault("store.postgres.max_idle_conns", cfg.Store.Postgres.MaxIdleConns)
	v.SetDefault("store.postgres.conn_max_lifetime", cfg.Store.Postgres.ConnMaxLifetime)
	v.SetDefault("store.postgres.conn_max_idle_time", cfg.Store.Postgres.ConnMaxIdleTime)
	v.SetDefault("store.postgres.query_timeout", cfg.Store.Postgres.QueryTimeout)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.addr", cfg.Management.Addr)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)
	v.SetDefault("management.shutdown_timeout", cfg.Management.ShutdownTimeout)
}
