package config

import "time"

// Store backend constants
const (
	// StoreTypeMemory keeps leases in process; useful for tests and single-node runs
	StoreTypeMemory = "memory"
	// StoreTypeDynamoDB represents AWS DynamoDB
	StoreTypeDynamoDB = "dynamodb"
	// StoreTypeRedis represents Redis
	StoreTypeRedis = "redis"
	// StoreTypePostgres represents PostgreSQL
	StoreTypePostgres = "postgres"
)

// Config is the root configuration of a dynalock node.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Lock          LockConfig          `mapstructure:"lock"`
	Store         StoreConfig         `mapstructure:"store"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Management    ManagementConfig    `mapstructure:"management"`
}

// ServiceConfig identifies the process in logs and traces.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LockConfig holds lease timing.
type LockConfig struct {
	TTL               time.Duration `mapstructure:"ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	JitterMargin      time.Duration `mapstructure:"jitter_margin"`
}

// StoreConfig selects and configures the lease store backend.
type StoreConfig struct {
	Type     string         `mapstructure:"type"` // memory, dynamodb, redis, postgres
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// DynamoDBConfig configures the DynamoDB lease table.
type DynamoDBConfig struct {
	Region            string        `mapstructure:"region"`
	Endpoint          string        `mapstructure:"endpoint"`
	AccessKeyID       string        `mapstructure:"access_key_id"`
	SecretAccessKey   string        `mapstructure:"secret_access_key"`
	SessionToken      string        `mapstructure:"session_token"`
	Table             string        `mapstructure:"table"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"`
	ProvisionAttempts int           `mapstructure:"provision_attempts"`
	ProvisionInterval time.Duration `mapstructure:"provision_interval"`
}

// RedisConfig configures Redis lease hashes.
type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	Prefix           string        `mapstructure:"prefix"`
	MaxConns         int           `mapstructure:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// PostgresConfig configures the PostgreSQL lease table.
type PostgresConfig struct {
	URL             string        `mapstructure:"url"`
	Table           string        `mapstructure:"table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// ObservabilityConfig configures logging and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level"`
	LogFormat         string  `mapstructure:"log_format"` // json, text
	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint"`
}

// ManagementConfig configures the optional health, metrics and lock listing endpoints.
type ManagementConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "dynalock",
			Environment: "development",
		},
		Lock: LockConfig{
			TTL:               30 * time.Second,
			HeartbeatInterval: 10 * time.Second,
			JitterMargin:      time.Second,
		},
		Store: StoreConfig{
			Type: StoreTypeDynamoDB,
			DynamoDB: DynamoDBConfig{
				Region:            "us-east-1",
				Table:             "dynalock_leases",
				OperationTimeout:  5 * time.Second,
				ProvisionAttempts: 10,
				ProvisionInterval: time.Second,
			},
			Redis: RedisConfig{
				Prefix:           "dynalock:lease",
				MaxConns:         10,
				OperationTimeout: 3 * time.Second,
			},
			Postgres: PostgresConfig{
				Table:           "dynalock_leases",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
				QueryTimeout:    3 * time.Second,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 1.0,
			TracingEndpoint:   "localhost:4317",
		},
		Management: ManagementConfig{
			Addr:            ":9090",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// SensitiveSettings marks the keys that are always masked when settings are printed.
func SensitiveSettings() map[string]any {
	return map[string]any{
		"store": map[string]any{
			"dynamodb": map[string]any{
				"access_key_id":     true,
				"secret_access_key": true,
				"session_token":     true,
			},
			"redis": map[string]any{
				"url": true,
			},
			"postgres": map[string]any{
				"url": true,
			},
		},
	}
}
