package redis

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/dynalock/pkg/lock"
)

// Property: only the owner can remove or extend a lease.
func TestProperty_OwnerGuardedMutations(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("foreign refresh and delete leave the record unchanged", prop.ForAll(
		func(id, owner, other string, ttlSeconds int) bool {
			if owner == other {
				return true
			}
			original := lock.Lease{ID: id, Owner: owner, ExpiresAt: epoch.Add(time.Duration(ttlSeconds) * time.Second)}
			if err := store.CreateLease(ctx, original, epoch.Add(24*time.Hour)); err != nil {
				return false
			}
			_ = store.RefreshLease(ctx, lock.Lease{ID: id, Owner: other, ExpiresAt: epoch.Add(48 * time.Hour)})
			_ = store.DeleteLease(ctx, id, other)

			got, ok, err := store.Lease(ctx, id)
			return err == nil && ok && got.Owner == owner && got.ExpiresAt.Equal(original.ExpiresAt)
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.IntRange(1, 3600),
	))

	properties.TestingRun(t)
}
