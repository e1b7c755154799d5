package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nimburion/dynalock/pkg/lock"
	"github.com/nimburion/dynalock/pkg/observability/logger"
)

const (
	DefaultTable = "dynalock_leases"

	undefinedTable pq.ErrorCode = "42P01"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LeaseStore keeps one row per lock ID. Every mutation carries its condition
// in the WHERE clause and a zero row count means the condition failed.
type LeaseStore struct {
	adapter *Adapter
	table   string
	log     logger.Logger

	createQuery  string
	refreshQuery string
	deleteQuery  string
}

var _ lock.Store = (*LeaseStore)(nil)

func NewLeaseStore(adapter *Adapter, table string, log logger.Logger) (*LeaseStore, error) {
	if adapter == nil || adapter.db == nil {
		return nil, lock.Error(lock.ErrInvalidArgument, "postgres adapter is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, lock.Error(lock.ErrValidation, fmt.Sprintf("invalid postgres lease table name %q", table))
	}

	return &LeaseStore{
		adapter: adapter,
		table:   table,
		log:     log.With("store", "postgres", "table", table),
		createQuery: fmt.Sprintf(`INSERT INTO %s (id, lock_owner, expires) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET lock_owner = EXCLUDED.lock_owner, expires = EXCLUDED.expires
WHERE %s.expires < $4`, table, table),
		refreshQuery: fmt.Sprintf(`UPDATE %s SET expires = $3 WHERE id = $1 AND lock_owner = $2`, table),
		deleteQuery:  fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND lock_owner = $2`, table),
	}, nil
}

// Table returns the lease table name.
func (s *LeaseStore) Table() string {
	return s.table
}

func (s *LeaseStore) EnsureNamespace(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	lock_owner TEXT NOT NULL,
	expires BIGINT NOT NULL
)`, s.table)
	if _, err := s.adapter.ExecContext(ctx, query); err != nil {
		return lock.Wrap(lock.ErrRetryable, "create lease table failed", err)
	}
	return nil
}

func (s *LeaseStore) CreateLease(ctx context.Context, lease lock.Lease, staleBefore time.Time) error {
	return s.exec(ctx, "create", lease.ID, s.createQuery,
		lease.ID, lease.Owner, lock.EpochMillis(lease.ExpiresAt), lock.EpochMillis(staleBefore))
}

func (s *LeaseStore) RefreshLease(ctx context.Context, lease lock.Lease) error {
	return s.exec(ctx, "refresh", lease.ID, s.refreshQuery,
		lease.ID, lease.Owner, lock.EpochMillis(lease.ExpiresAt))
}

func (s *LeaseStore) DeleteLease(ctx context.Context, id, owner string) error {
	return s.exec(ctx, "delete", id, s.deleteQuery, id, owner)
}

func (s *LeaseStore) HealthCheck(ctx context.Context) error {
	return s.adapter.HealthCheck(ctx)
}

func (s *LeaseStore) Close() error {
	return s.adapter.Close()
}

func (s *LeaseStore) exec(ctx context.Context, op, id, query string, args ...any) error {
	result, err := s.adapter.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			s.log.Warn("lease table missing, run provision", "operation", op)
		}
		return lock.Wrap(lock.ErrRetryable, fmt.Sprintf("postgres %s lease %q failed", op, id), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return lock.Wrap(lock.ErrRetryable, fmt.Sprintf("postgres %s lease %q failed", op, id), err)
	}
	if affected == 0 {
		return lock.Error(lock.ErrConflict, fmt.Sprintf("lease %q condition failed on %s", id, op))
	}
	return nil
}
