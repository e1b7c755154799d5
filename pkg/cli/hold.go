package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nimburion/dynalock/pkg/config"
	"github.com/nimburion/dynalock/pkg/health"
	"github.com/nimburion/dynalock/pkg/lock"
	"github.com/nimburion/dynalock/pkg/management"
	"github.com/nimburion/dynalock/pkg/observability/logger"
	"github.com/nimburion/dynalock/pkg/observability/metrics"
)

const (
	defaultRetryInterval = time.Second
	releaseTimeout       = 5 * time.Second
)

type holdOptions struct {
	retryInterval  time.Duration
	holdFor        time.Duration
	managementAddr string
}

func newHoldCommand(loadConfig configLoader) *cobra.Command {
	opts := holdOptions{}
	cmd := &cobra.Command{
		Use:   "hold <lock-id>",
		Short: "Acquire a lock, keep it renewed until interrupted, then release it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.managementAddr != "" {
				cfg.Management.Enabled = true
				cfg.Management.Addr = opts.managementAddr
			}
			return runHold(cmd.Context(), cfg, log, args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&opts.retryInterval, "retry-interval", defaultRetryInterval, "pause between acquire attempts while the lock is taken")
	cmd.Flags().DurationVar(&opts.holdFor, "hold-for", 0, "release after this long (0 holds until interrupted)")
	cmd.Flags().StringVar(&opts.managementAddr, "management-addr", "", "serve /healthz, /metrics and /locks on this address")
	return cmd
}

func runHold(ctx context.Context, cfg *config.Config, log logger.Logger, lockID string, opts holdOptions, out io.Writer) (err error) {
	if opts.retryInterval <= 0 {
		opts.retryInterval = defaultRetryInterval
	}

	tracer, err := setupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if shutdownErr := tracer.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			log.Warn("tracer shutdown failed", "error", shutdownErr)
		}
	}()

	provider, err := newProvider(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, provider.Close())
	}()

	if err := provider.Start(ctx); err != nil {
		return err
	}

	if cfg.Management.Enabled {
		srv, err := newManagementServer(cfg, log, provider)
		if err != nil {
			return err
		}
		mgmtCtx, stopMgmt := context.WithCancel(ctx)
		mgmtDone := make(chan error, 1)
		go func() { mgmtDone <- srv.Start(mgmtCtx) }()
		defer func() {
			stopMgmt()
			if mgmtErr := <-mgmtDone; mgmtErr != nil {
				log.Warn("management server stopped with error", "error", mgmtErr)
			}
		}()
	}

	if err := acquireWithRetry(ctx, provider, lockID, opts.retryInterval, log); err != nil {
		return err
	}
	fmt.Fprintf(out, "acquired %s as %s\n", lockID, provider.NodeID())

	waitHold(ctx, opts.holdFor)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := provider.ReleaseLock(releaseCtx, lockID); err != nil {
		return err
	}
	fmt.Fprintf(out, "released %s\n", lockID)
	return nil
}

// acquireWithRetry retries AcquireLock at most once per interval until the
// lock is taken or ctx ends. Store faults are logged and retried.
func acquireWithRetry(ctx context.Context, provider *lock.Provider, lockID string, interval time.Duration, log logger.Logger) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for lock %s: %w", lockID, ctx.Err())
		}
		acquired, err := provider.AcquireLock(ctx, lockID)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("waiting for lock %s: %w", lockID, ctx.Err())
			}
			log.Warn("acquire attempt failed, retrying", "lock_id", lockID, "attempt", attempt, "error", err)
			continue
		}
		if acquired {
			return nil
		}
		log.Debug("lock busy, retrying", "lock_id", lockID, "attempt", attempt)
	}
}

func waitHold(ctx context.Context, holdFor time.Duration) {
	if holdFor <= 0 {
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(holdFor)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func newManagementServer(cfg *config.Config, log logger.Logger, provider *lock.Provider) (*management.Server, error) {
	registry := health.NewRegistry()
	registry.Register(lock.NewProviderHealthChecker("", provider, 0))
	return management.NewServer(management.Config{
		Addr:            cfg.Management.Addr,
		ReadTimeout:     cfg.Management.ReadTimeout,
		WriteTimeout:    cfg.Management.WriteTimeout,
		ShutdownTimeout: cfg.Management.ShutdownTimeout,
	}, log, registry, metrics.NewRegistry(), provider)
}
