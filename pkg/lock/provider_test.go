package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestProvider(t *testing.T, store Store, opts ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(store, &lockTestLogger{}, DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(nil, &lockTestLogger{}, DefaultConfig()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for nil store, got %v", err)
	}
	if _, err := NewProvider(newFakeStore(), nil, DefaultConfig()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for nil logger, got %v", err)
	}
	cfg := Config{TTL: 5 * time.Second, HeartbeatInterval: 5 * time.Second}
	if _, err := NewProvider(newFakeStore(), &lockTestLogger{}, cfg); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestNewProvider_UniqueNodeIDs(t *testing.T) {
	store := newFakeStore()
	a := newTestProvider(t, store)
	b := newTestProvider(t, store)
	if a.NodeID() == "" || a.NodeID() == b.NodeID() {
		t.Fatalf("node ids must be unique and non-empty: %q %q", a.NodeID(), b.NodeID())
	}
	fixed := newTestProvider(t, store, WithNodeID("  worker-7 "))
	if fixed.NodeID() != "worker-7" {
		t.Fatalf("expected trimmed node id, got %q", fixed.NodeID())
	}
}

func TestProvider_AcquireWritesLease(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(testEpoch)
	p := newTestProvider(t, store, WithClock(clock.Now))

	ok, err := p.AcquireLock(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}
	lease, found := store.get("job-1")
	if !found {
		t.Fatal("lease not written")
	}
	if lease.Owner != p.NodeID() {
		t.Errorf("owner = %q, want %q", lease.Owner, p.NodeID())
	}
	if want := testEpoch.Add(DefaultTTL); !lease.ExpiresAt.Equal(want) {
		t.Errorf("expires = %v, want %v", lease.ExpiresAt, want)
	}
	if got := p.HeldLocks(); len(got) != 1 || got[0] != "job-1" {
		t.Errorf("held = %v", got)
	}
}

func TestProvider_AcquireRejectsInvalidInput(t *testing.T) {
	p := newTestProvider(t, newFakeStore())
	if _, err := p.AcquireLock(context.Background(), "   "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := p.ReleaseLock(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	var nilProvider *Provider
	if _, err := nilProvider.AcquireLock(context.Background(), "x"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestProvider_AcquireStoreFaultIsRetryable(t *testing.T) {
	store := newFakeStore()
	store.createErr = Error(ErrRetryable, "throttled")
	p := newTestProvider(t, store)

	ok, err := p.AcquireLock(context.Background(), "job-1")
	if ok || !errors.Is(err, ErrRetryable) {
		t.Fatalf("AcquireLock = %v, %v; want false, ErrRetryable", ok, err)
	}
	if len(p.HeldLocks()) != 0 {
		t.Fatal("failed acquire must not touch the held-set")
	}
}

func TestProvider_ContendedThenReleased(t *testing.T) {
	store := newFakeStore()
	a := newTestProvider(t, store)
	b := newTestProvider(t, store)
	ctx := context.Background()

	if ok, err := a.AcquireLock(ctx, "job-1"); err != nil || !ok {
		t.Fatalf("A acquire = %v, %v", ok, err)
	}
	if ok, err := b.AcquireLock(ctx, "job-1"); err != nil || ok {
		t.Fatalf("B acquire while A holds = %v, %v; want false, nil", ok, err)
	}
	if len(b.HeldLocks()) != 0 {
		t.Fatal("B must not track a lock it failed to acquire")
	}
	if err := a.ReleaseLock(ctx, "job-1"); err != nil {
		t.Fatalf("A release: %v", err)
	}
	if ok, err := b.AcquireLock(ctx, "job-1"); err != nil || !ok {
		t.Fatalf("B acquire after release = %v, %v", ok, err)
	}
}

func TestProvider_ExpiredLeaseIsClaimable(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(testEpoch)
	a := newTestProvider(t, store, WithClock(clock.Now))
	b := newTestProvider(t, store, WithClock(clock.Now))
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if ok, err := a.AcquireLock(ctx, "job-2"); err != nil || !ok {
		t.Fatalf("A acquire = %v, %v", ok, err)
	}
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, found := store.get("job-2"); !found {
		t.Fatal("Stop must not release held leases")
	}

	clock.Advance(DefaultTTL + DefaultJitterMargin)
	if ok, _ := b.AcquireLock(ctx, "job-2"); ok {
		t.Fatal("lease must stay live until ttl plus jitter has strictly passed")
	}
	clock.Advance(time.Millisecond)
	if ok, err := b.AcquireLock(ctx, "job-2"); err != nil || !ok {
		t.Fatalf("B acquire after expiry = %v, %v", ok, err)
	}
	lease, _ := store.get("job-2")
	if lease.Owner != b.NodeID() {
		t.Fatalf("owner = %q, want B", lease.Owner)
	}
}

func TestProvider_ReacquireOwnLiveLeaseFails(t *testing.T) {
	p := newTestProvider(t, newFakeStore())
	ctx := context.Background()
	if ok, _ := p.AcquireLock(ctx, "job-1"); !ok {
		t.Fatal("first acquire should succeed")
	}
	if ok, err := p.AcquireLock(ctx, "job-1"); err != nil || ok {
		t.Fatalf("second acquire = %v, %v; want false, nil", ok, err)
	}
	if got := p.HeldLocks(); len(got) != 1 {
		t.Fatalf("held = %v", got)
	}
}

func TestProvider_ReleaseForeignLeaseIsNoop(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(testEpoch)
	a := newTestProvider(t, store, WithClock(clock.Now))
	b := newTestProvider(t, store, WithClock(clock.Now))
	ctx := context.Background()

	if ok, _ := a.AcquireLock(ctx, "job-1"); !ok {
		t.Fatal("A acquire should succeed")
	}
	clock.Advance(time.Hour)
	if ok, _ := b.AcquireLock(ctx, "job-1"); !ok {
		t.Fatal("B should claim the expired lease")
	}

	if err := a.ReleaseLock(ctx, "job-1"); err != nil {
		t.Fatalf("release of a lost lease must not fail: %v", err)
	}
	lease, found := store.get("job-1")
	if !found || lease.Owner != b.NodeID() {
		t.Fatalf("A's release removed B's record: %+v found=%v", lease, found)
	}
	if len(a.HeldLocks()) != 0 {
		t.Fatal("release must drop the id locally")
	}
	if err := a.ReleaseLock(ctx, "never-held"); err != nil {
		t.Fatalf("release of unknown id: %v", err)
	}
}

func TestProvider_ReleaseSwallowsStoreFaults(t *testing.T) {
	store := newFakeStore()
	log := &lockTestLogger{}
	p, err := NewProvider(store, log, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if ok, _ := p.AcquireLock(ctx, "job-1"); !ok {
		t.Fatal("acquire should succeed")
	}

	store.deleteErr = Error(ErrRetryable, "connection reset")
	if err := p.ReleaseLock(ctx, "job-1"); err != nil {
		t.Fatalf("release must swallow store faults, got %v", err)
	}
	if len(p.HeldLocks()) != 0 {
		t.Fatal("id must leave the held-set even when the delete fails")
	}
	if !log.has("warn lock release failed, lease will expire") {
		t.Fatalf("expected warning, got %v", log.entries)
	}
}

func TestProvider_StartTwiceConflicts(t *testing.T) {
	store := newFakeStore()
	p := newTestProvider(t, store)
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer p.Stop(ctx)

	if err := p.Start(ctx); !errors.Is(err, ErrConflict) {
		t.Fatalf("second start = %v, want ErrConflict", err)
	}
	if store.ensureCalls != 1 {
		t.Fatalf("namespace provisioned %d times", store.ensureCalls)
	}
}

func TestProvider_StartPropagatesProvisioningFailure(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = errors.New("access denied")
	p := newTestProvider(t, store)

	err := p.Start(context.Background())
	if !errors.Is(err, ErrRetryable) {
		t.Fatalf("start = %v, want ErrRetryable", err)
	}
	if p.Running() {
		t.Fatal("provider must not run after failed provisioning")
	}
	store.ensureErr = nil
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start after recovery: %v", err)
	}
	_ = p.Stop(context.Background())
}

func TestProvider_StopWithoutStartIsNoop(t *testing.T) {
	p := newTestProvider(t, newFakeStore())
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestProvider_StartStopStart(t *testing.T) {
	p := newTestProvider(t, newFakeStore())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.Start(ctx); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if !p.Running() {
			t.Fatal("expected running")
		}
		if err := p.Stop(ctx); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
		if p.Running() {
			t.Fatal("expected stopped")
		}
	}
}

func TestProvider_StopTimeoutKeepsProviderRunning(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})
	store.refreshGate = gate
	p, err := NewProvider(store, &lockTestLogger{}, fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ok, _ := p.AcquireLock(context.Background(), "job-1"); !ok {
		t.Fatal("acquire should succeed")
	}
	if !waitFor(time.Second, func() bool { return store.refreshes() >= 1 }) {
		t.Fatal("heartbeat never reached the store")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("stop = %v, want deadline exceeded", err)
	}
	if !p.Running() {
		t.Fatal("provider must stay running until the loop exits")
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrConflict) {
		t.Fatalf("start during pending stop = %v, want ErrConflict", err)
	}

	close(gate)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if p.Running() {
		t.Fatal("expected stopped after loop exit")
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	_ = p.Stop(context.Background())
}

func TestProvider_StartContextCancelDoesNotStopLoop(t *testing.T) {
	store := newFakeStore()
	p, err := NewProvider(store, &lockTestLogger{}, fastConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	defer p.Stop(context.Background())

	if ok, _ := p.AcquireLock(context.Background(), "job-1"); !ok {
		t.Fatal("acquire should succeed")
	}
	if !waitFor(time.Second, func() bool { return store.refreshes() >= 2 }) {
		t.Fatal("heartbeat stopped with the start context")
	}
}

func TestProvider_CloseStopsAndClosesStore(t *testing.T) {
	store := newFakeStore()
	p := newTestProvider(t, store)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if p.Running() || !store.closed {
		t.Fatalf("running=%v closed=%v", p.Running(), store.closed)
	}
}
