package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/nimburion/dynalock/pkg/lock"
	"github.com/nimburion/dynalock/pkg/observability/logger"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DynamoDB table names allow dots and dashes as well.
var validDynamoTableName = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,255}$`)

// LockConfig converts the lock section into provider timing.
func (c *Config) LockConfig() lock.Config {
	return lock.Config{
		TTL:               c.Lock.TTL,
		HeartbeatInterval: c.Lock.HeartbeatInterval,
		JitterMargin:      c.Lock.JitterMargin,
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))

	if strings.TrimSpace(c.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	if err := c.LockConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lock: %w", err))
	}

	errs = append(errs, c.Store.validate()...)

	if _, err := logger.ParseLogLevel(c.Observability.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("observability.log_level: %w", err))
	}
	if _, err := logger.ParseLogFormat(c.Observability.LogFormat); err != nil {
		errs = append(errs, fmt.Errorf("observability.log_format: %w", err))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be between 0 and 1, got %v", c.Observability.TracingSampleRate))
	}
	if c.Observability.TracingEnabled && strings.TrimSpace(c.Observability.TracingEndpoint) == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}

	if c.Management.Enabled {
		if _, _, err := net.SplitHostPort(c.Management.Addr); err != nil {
			errs = append(errs, fmt.Errorf("management.addr %q is invalid: %w", c.Management.Addr, err))
		}
		if c.Management.ReadTimeout <= 0 || c.Management.WriteTimeout <= 0 {
			errs = append(errs, errors.New("management read and write timeouts must be > 0"))
		}
	}

	return errors.Join(errs...)
}

func (s StoreConfig) validate() []error {
	var errs []error
	switch s.Type {
	case StoreTypeMemory:
	case StoreTypeDynamoDB:
		if strings.TrimSpace(s.DynamoDB.Region) == "" {
			errs = append(errs, errors.New("store.dynamodb.region is required for DynamoDB"))
		}
		if !validDynamoTableName.MatchString(s.DynamoDB.Table) {
			errs = append(errs, fmt.Errorf("invalid store.dynamodb.table %q", s.DynamoDB.Table))
		}
		if s.DynamoDB.ProvisionAttempts <= 0 {
			errs = append(errs, errors.New("store.dynamodb.provision_attempts must be > 0"))
		}
		if s.DynamoDB.ProvisionInterval <= 0 {
			errs = append(errs, errors.New("store.dynamodb.provision_interval must be > 0"))
		}
		if (s.DynamoDB.AccessKeyID == "") != (s.DynamoDB.SecretAccessKey == "") {
			errs = append(errs, errors.New("store.dynamodb.access_key_id and secret_access_key must be set together"))
		}
	case StoreTypeRedis:
		if strings.TrimSpace(s.Redis.URL) == "" {
			errs = append(errs, errors.New("store.redis.url is required for Redis"))
		}
	case StoreTypePostgres:
		if strings.TrimSpace(s.Postgres.URL) == "" {
			errs = append(errs, errors.New("store.postgres.url is required for PostgreSQL"))
		}
		if !validTableName.MatchString(s.Postgres.Table) {
			errs = append(errs, fmt.Errorf("invalid store.postgres.table %q", s.Postgres.Table))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store.type: %s (must be one of: %v)", s.Type,
			[]string{StoreTypeMemory, StoreTypeDynamoDB, StoreTypeRedis, StoreTypePostgres}))
	}
	return errs
}
