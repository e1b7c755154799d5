package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/dynalock/pkg/lock"
	"github.com/nimburion/dynalock/pkg/observability/logger"
)

const (
	DefaultPrefix = "dynalock:lease"

	fieldOwner   = "lockOwner"
	fieldExpires = "expires"
)

var (
	// KEYS[1] lease key; ARGV owner, expires, stale bound.
	createScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "expires")
if current and tonumber(current) >= tonumber(ARGV[3]) then
  return 0
end
redis.call("HSET", KEYS[1], "lockOwner", ARGV[1], "expires", ARGV[2])
return 1
`)

	refreshScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "lockOwner") == ARGV[1] then
  redis.call("HSET", KEYS[1], "expires", ARGV[2])
  return 1
end
return 0
`)

	deleteScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "lockOwner") == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// LeaseStore keeps each lease in a hash and mutates it only through Lua
// scripts so every condition check and write runs atomically on the server.
type LeaseStore struct {
	adapter *Adapter
	prefix  string
	log     logger.Logger
}

var _ lock.Store = (*LeaseStore)(nil)

func NewLeaseStore(adapter *Adapter, prefix string, log logger.Logger) (*LeaseStore, error) {
	if adapter == nil || adapter.client == nil {
		return nil, lock.Error(lock.ErrInvalidArgument, "redis adapter is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &LeaseStore{
		adapter: adapter,
		prefix:  prefix,
		log:     log.With("store", "redis", "prefix", prefix),
	}, nil
}

// Key returns the hash key holding the lease for id.
func (s *LeaseStore) Key(id string) string {
	return s.prefix + ":" + id
}

// EnsureNamespace only verifies connectivity; Redis needs no schema.
func (s *LeaseStore) EnsureNamespace(ctx context.Context) error {
	opCtx, cancel := s.adapter.operationContext(ctx)
	defer cancel()
	if err := s.adapter.Ping(opCtx); err != nil {
		return lock.Wrap(lock.ErrRetryable, "redis ping failed", err)
	}
	return nil
}

func (s *LeaseStore) CreateLease(ctx context.Context, lease lock.Lease, staleBefore time.Time) error {
	return s.run(ctx, "create", lease.ID, createScript,
		lease.Owner, millis(lease.ExpiresAt), millis(staleBefore))
}

func (s *LeaseStore) RefreshLease(ctx context.Context, lease lock.Lease) error {
	return s.run(ctx, "refresh", lease.ID, refreshScript, lease.Owner, millis(lease.ExpiresAt))
}

func (s *LeaseStore) DeleteLease(ctx context.Context, id, owner string) error {
	return s.run(ctx, "delete", id, deleteScript, owner)
}

// Lease reads the stored record for id; ok is false when none exists.
func (s *LeaseStore) Lease(ctx context.Context, id string) (lease lock.Lease, ok bool, err error) {
	opCtx, cancel := s.adapter.operationContext(ctx)
	defer cancel()
	fields, err := s.adapter.client.HGetAll(opCtx, s.Key(id)).Result()
	if err != nil {
		return lock.Lease{}, false, lock.Wrap(lock.ErrRetryable, "redis read lease failed", err)
	}
	if len(fields) == 0 {
		return lock.Lease{}, false, nil
	}
	expires, err := strconv.ParseInt(fields[fieldExpires], 10, 64)
	if err != nil {
		return lock.Lease{}, false, fmt.Errorf("lease %q has malformed expiry: %w", id, err)
	}
	return lock.Lease{ID: id, Owner: fields[fieldOwner], ExpiresAt: lock.FromEpochMillis(expires)}, true, nil
}

func (s *LeaseStore) HealthCheck(ctx context.Context) error {
	return s.adapter.HealthCheck(ctx)
}

func (s *LeaseStore) Close() error {
	return s.adapter.Close()
}

func (s *LeaseStore) run(ctx context.Context, op, id string, script *redis.Script, args ...any) error {
	opCtx, cancel := s.adapter.operationContext(ctx)
	defer cancel()

	result, err := script.Run(opCtx, s.adapter.client, []string{s.Key(id)}, args...).Int64()
	if err != nil {
		return lock.Wrap(lock.ErrRetryable, fmt.Sprintf("redis %s lease %q failed", op, id), err)
	}
	if result == 0 {
		return lock.Error(lock.ErrConflict, fmt.Sprintf("lease %q condition failed on %s", id, op))
	}
	return nil
}

func millis(t time.Time) int64 {
	return lock.EpochMillis(t)
}
