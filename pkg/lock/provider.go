// Package lock implements lease-based distributed mutual exclusion over a store
// with conditional writes.
//
// A Provider claims a lock ID by conditionally creating a lease record that names
// this node as owner. While the provider is started, a heartbeat loop keeps every
// held lease alive. A node that crashes simply stops renewing, and its leases
// become claimable once they expire.
package lock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/dynalock/pkg/observability/logger"
)

// Option customizes a Provider.
type Option func(*Provider)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithNodeID fixes the owner identity instead of generating one. Two providers
// sharing an identity can release and renew each other's leases, so this is
// meant for tests and diagnostics only.
func WithNodeID(id string) Option {
	return func(p *Provider) {
		if id = strings.TrimSpace(id); id != "" {
			p.nodeID = id
		}
	}
}

// Provider acquires, renews and releases leases on behalf of one process.
type Provider struct {
	store  Store
	log    logger.Logger
	config Config
	nodeID string
	now    func() time.Time
	held   *heldSet

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewProvider creates a provider with a fresh node identity.
func NewProvider(store Store, log logger.Logger, cfg Config, opts ...Option) (*Provider, error) {
	if store == nil {
		return nil, Error(ErrInvalidArgument, "store is required")
	}
	if log == nil {
		return nil, Error(ErrInvalidArgument, "logger is required")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		store:  store,
		config: cfg,
		nodeID: uuid.NewString(),
		now:    time.Now,
		held:   newHeldSet(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = log.With("node_id", p.nodeID)
	return p, nil
}

// NodeID returns the owner identity written into every lease.
func (p *Provider) NodeID() string {
	return p.nodeID
}

// Config returns the normalized timing configuration.
func (p *Provider) Config() Config {
	return p.config
}

// HeldLocks returns the sorted lock IDs this node believes it owns.
func (p *Provider) HeldLocks() []string {
	return p.held.ids()
}

// AcquireLock makes one attempt to claim id. It returns false without error
// when another node holds a live lease.
func (p *Provider) AcquireLock(ctx context.Context, id string) (bool, error) {
	if p == nil || p.store == nil {
		return false, Error(ErrNotInitialized, "lock provider is not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, Error(ErrInvalidArgument, "lock id is required")
	}

	ctx, span := startSpan(ctx, "acquire", id, p.nodeID)
	now := p.now()
	lease := Lease{
		ID:        id,
		Owner:     p.nodeID,
		ExpiresAt: now.Add(p.config.TTL),
	}

	err := p.store.CreateLease(ctx, lease, now.Add(-p.config.JitterMargin))
	switch {
	case err == nil:
		p.held.add(id)
		setLocksHeld(p.held.size())
		recordAcquire(statusAcquired)
		endSpan(span, statusAcquired, nil)
		p.log.Debug("lock acquired", "lock_id", id, "expires_at", lease.ExpiresAt)
		return true, nil
	case IsConflict(err):
		recordAcquire(statusContended)
		endSpan(span, statusContended, nil)
		p.log.Debug("lock held by another node", "lock_id", id)
		return false, nil
	default:
		recordAcquire(statusError)
		endSpan(span, statusError, err)
		return false, Wrap(ErrRetryable, "acquire lock failed", err)
	}
}

// ReleaseLock forgets id locally and deletes its lease if this node still owns it.
// Store failures are logged and swallowed: an unreleased lease expires on its own.
func (p *Provider) ReleaseLock(ctx context.Context, id string) error {
	if p == nil || p.store == nil {
		return Error(ErrNotInitialized, "lock provider is not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Error(ErrInvalidArgument, "lock id is required")
	}

	p.held.remove(id)
	setLocksHeld(p.held.size())

	ctx, span := startSpan(ctx, "release", id, p.nodeID)
	err := p.store.DeleteLease(ctx, id, p.nodeID)
	switch {
	case err == nil:
		recordRelease(statusReleased)
		endSpan(span, statusReleased, nil)
		p.log.Debug("lock released", "lock_id", id)
	case IsConflict(err):
		recordRelease(statusNotOwned)
		endSpan(span, statusNotOwned, nil)
		p.log.Debug("lock release skipped, lease not owned", "lock_id", id)
	default:
		recordRelease(statusError)
		endSpan(span, statusError, err)
		p.log.Warn("lock release failed, lease will expire", "lock_id", id, "error", err)
	}
	return nil
}

// Start provisions the store namespace and launches the heartbeat loop.
// It fails with ErrConflict when the loop is already running.
func (p *Provider) Start(ctx context.Context) error {
	if p == nil || p.store == nil {
		return Error(ErrNotInitialized, "lock provider is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return Error(ErrConflict, "lock provider already running")
	}

	if err := p.store.EnsureNamespace(ctx); err != nil {
		return Wrap(ErrRetryable, "ensure lock namespace failed", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.heartbeat(loopCtx)

	p.log.Info("lock provider started",
		"ttl", p.config.TTL,
		"heartbeat_interval", p.config.HeartbeatInterval,
		"jitter_margin", p.config.JitterMargin,
	)
	return nil
}

// Stop cancels the heartbeat loop and waits for it to exit. Held leases are
// not released; they expire unless released explicitly beforehand. If ctx ends
// before the loop exits, the provider still counts as running: Start keeps
// failing with ErrConflict until a later Stop observes the exit.
func (p *Provider) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()

	waitCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitCh:
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
		p.log.Info("lock provider stopped", "held_locks", p.held.size())
		return nil
	}
}

// Running reports whether the heartbeat loop is active.
func (p *Provider) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// HealthCheck verifies the backing store is reachable.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p == nil || p.store == nil {
		return Error(ErrNotInitialized, "lock provider is not initialized")
	}
	return p.store.HealthCheck(ctx)
}

// Close stops the provider and closes the store.
func (p *Provider) Close() error {
	if p == nil || p.store == nil {
		return nil
	}
	if err := p.Stop(context.Background()); err != nil {
		return err
	}
	return p.store.Close()
}
