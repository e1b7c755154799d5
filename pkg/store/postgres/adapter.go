package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nimburion/dynalock/pkg/observability/logger"
)

const defaultQueryTimeout = 3 * time.Second

// Adapter provides PostgreSQL connectivity with connection pooling
type Adapter struct {
	db     *sql.DB
	logger logger.Logger
	config Config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

func (c *Config) normalize() {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = defaultQueryTimeout
	}
}

// NewAdapter opens a pooled connection and verifies it with a ping.
func NewAdapter(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.normalize()

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("PostgreSQL connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"query_timeout", cfg.QueryTimeout,
	)
	return newAdapterWithDB(db, cfg, log)
}

func newAdapterWithDB(db *sql.DB, cfg Config, log logger.Logger) (*Adapter, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	cfg.normalize()
	return &Adapter{db: db, logger: log, config: cfg}, nil
}

// DB returns the underlying *sql.DB for direct access when needed
func (a *Adapter) DB() *sql.DB {
	return a.db
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// HealthCheck pings with a short timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Error("PostgreSQL health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close PostgreSQL connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	a.logger.Debug("PostgreSQL connection closed")
	return nil
}

// ExecContext runs query bounded by the configured query timeout unless the
// caller already set a deadline.
func (a *Adapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	return a.db.ExecContext(queryCtx, query, args...)
}

func (a *Adapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}
