package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimburion/dynalock/pkg/observability/logger"
)

type lockTestLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *lockTestLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+" "+msg)
}

func (l *lockTestLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *lockTestLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *lockTestLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *lockTestLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l *lockTestLogger) With(...any) logger.Logger  { return l }

func (l *lockTestLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// fakeStore is an in-package Store with the same conditional semantics as the
// real backends plus fault injection.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]Lease

	ensureErr  error
	createErr  error
	refreshErr error
	deleteErr  error

	// refreshGate, when set, blocks RefreshLease until closed, ignoring ctx.
	refreshGate chan struct{}

	ensureCalls  int
	refreshCalls int
	closed       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]Lease{}}
}

func (s *fakeStore) EnsureNamespace(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCalls++
	return s.ensureErr
}

func (s *fakeStore) CreateLease(_ context.Context, lease Lease, staleBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if current, ok := s.records[lease.ID]; ok && !current.ExpiresAt.Before(staleBefore) {
		return Error(ErrConflict, fmt.Sprintf("lease %q is held", lease.ID))
	}
	s.records[lease.ID] = lease
	return nil
}

func (s *fakeStore) RefreshLease(_ context.Context, lease Lease) error {
	s.mu.Lock()
	s.refreshCalls++
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshErr != nil {
		return s.refreshErr
	}
	current, ok := s.records[lease.ID]
	if !ok || current.Owner != lease.Owner {
		return Error(ErrConflict, fmt.Sprintf("lease %q not owned", lease.ID))
	}
	s.records[lease.ID] = lease
	return nil
}

func (s *fakeStore) DeleteLease(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	current, ok := s.records[id]
	if !ok || current.Owner != owner {
		return Error(ErrConflict, fmt.Sprintf("lease %q not owned", id))
	}
	delete(s.records, id)
	return nil
}

func (s *fakeStore) HealthCheck(context.Context) error { return nil }

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) get(id string) (Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, ok := s.records[id]
	return lease, ok
}

func (s *fakeStore) put(lease Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[lease.ID] = lease
}

func (s *fakeStore) refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *fakeStore) setRefreshErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshErr = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fastConfig() Config {
	return Config{
		TTL:               300 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
		JitterMargin:      10 * time.Millisecond,
	}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
