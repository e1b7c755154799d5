package lock

import (
	"context"
	"time"
)

// Lease is the record a store keeps for one lock ID.
type Lease struct {
	ID        string
	Owner     string
	ExpiresAt time.Time
}

// Expired reports whether the lease should be treated as absent at now,
// allowing jitter for clock skew between nodes.
func (l Lease) Expired(now time.Time, jitter time.Duration) bool {
	return l.ExpiresAt.Before(now.Add(-jitter))
}

// Store is the set of atomic primitives a backing store must offer.
//
// Conditional failures are reported by wrapping ErrConflict. Any other failure
// wraps ErrRetryable.
type Store interface {
	// EnsureNamespace provisions the table, keyspace or schema holding leases.
	EnsureNamespace(ctx context.Context) error
	// CreateLease writes lease if no record exists for lease.ID or the existing
	// record expires strictly before staleBefore.
	CreateLease(ctx context.Context, lease Lease, staleBefore time.Time) error
	// RefreshLease overwrites the expiry of lease.ID if it is still owned by lease.Owner.
	RefreshLease(ctx context.Context, lease Lease) error
	// DeleteLease removes id if it is owned by owner.
	DeleteLease(ctx context.Context, id, owner string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// EpochMillis converts t to the integer representation stored by backends.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis is the inverse of EpochMillis.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
