package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/dynalock/pkg/observability/logger"
)

const (
	defaultMaxConns         = 10
	defaultOperationTimeout = 3 * time.Second
)

// Adapter owns a pooled Redis client.
type Adapter struct {
	client *redis.Client
	logger logger.Logger
	config Config
}

// Config holds Redis connection configuration
type Config struct {
	URL              string
	MaxConns         int
	OperationTimeout time.Duration
}

func (c *Config) normalize() {
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultOperationTimeout
	}
}

// NewAdapter parses the URL, configures the pool and pings the server.
func NewAdapter(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.normalize()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.MaxConns
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = cfg.OperationTimeout
	opts.WriteTimeout = cfg.OperationTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Redis connection established",
		"max_conns", cfg.MaxConns,
		"operation_timeout", cfg.OperationTimeout,
	)

	return &Adapter{
		client: client,
		logger: log,
		config: cfg,
	}, nil
}

// Client returns the underlying *redis.Client for direct access when needed
func (a *Adapter) Client() *redis.Client {
	return a.client
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// HealthCheck pings with a short timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := a.client.Ping(ctx).Err(); err != nil {
		a.logger.Error("Redis health check failed", "error", err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	if err := a.client.Close(); err != nil {
		a.logger.Error("failed to close Redis connection", "error", err)
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	a.logger.Debug("Redis connection closed")
	return nil
}

func (a *Adapter) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.OperationTimeout)
}
