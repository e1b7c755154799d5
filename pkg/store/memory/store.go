// Package memory is a process-local lock.Store. It gives single-node deployments
// and tests the same conditional semantics as the shared backends.
package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nimburion/dynalock/pkg/lock"
)

// Store keeps leases in a concurrent map. Every conditional write runs inside
// a single Compute call, so it is atomic per lock ID.
type Store struct {
	leases *xsync.MapOf[string, lock.Lease]
	closed atomic.Bool
}

var _ lock.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{leases: xsync.NewMapOf[string, lock.Lease]()}
}

func (s *Store) EnsureNamespace(context.Context) error {
	return s.checkOpen()
}

func (s *Store) CreateLease(ctx context.Context, lease lock.Lease, staleBefore time.Time) error {
	if err := s.checkCall(ctx); err != nil {
		return err
	}
	written := false
	s.leases.Compute(lease.ID, func(current lock.Lease, loaded bool) (lock.Lease, bool) {
		if loaded && !current.ExpiresAt.Before(staleBefore) {
			return current, false
		}
		written = true
		return lease, false
	})
	if !written {
		return lock.Error(lock.ErrConflict, "lease is held")
	}
	return nil
}

func (s *Store) RefreshLease(ctx context.Context, lease lock.Lease) error {
	if err := s.checkCall(ctx); err != nil {
		return err
	}
	written := false
	s.leases.Compute(lease.ID, func(current lock.Lease, loaded bool) (lock.Lease, bool) {
		if !loaded {
			return current, true
		}
		if current.Owner != lease.Owner {
			return current, false
		}
		written = true
		return lease, false
	})
	if !written {
		return lock.Error(lock.ErrConflict, "lease not owned")
	}
	return nil
}

func (s *Store) DeleteLease(ctx context.Context, id, owner string) error {
	if err := s.checkCall(ctx); err != nil {
		return err
	}
	deleted := false
	s.leases.Compute(id, func(current lock.Lease, loaded bool) (lock.Lease, bool) {
		if !loaded {
			return current, true
		}
		if current.Owner != owner {
			return current, false
		}
		deleted = true
		return current, true
	})
	if !deleted {
		return lock.Error(lock.ErrConflict, "lease not owned")
	}
	return nil
}

// Get returns the physical record for id, expired or not.
func (s *Store) Get(id string) (lock.Lease, bool) {
	return s.leases.Load(id)
}

// Put writes a record unconditionally. It exists to seed fixtures.
func (s *Store) Put(lease lock.Lease) {
	s.leases.Store(lease.ID, lease)
}

func (s *Store) HealthCheck(context.Context) error {
	return s.checkOpen()
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) checkCall(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return lock.Wrap(lock.ErrRetryable, "memory store call canceled", err)
	}
	return nil
}

func (s *Store) checkOpen() error {
	if s == nil || s.leases == nil {
		return lock.Error(lock.ErrNotInitialized, "memory store is not initialized")
	}
	if s.closed.Load() {
		return lock.Error(lock.ErrRetryable, "memory store is closed")
	}
	return nil
}
