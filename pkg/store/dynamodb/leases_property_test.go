package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/dynalock/pkg/lock"
)

// Property: Close prevents subsequent operations
func TestProperty_ClosePreventsHealthCheck(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 20
	properties := gopter.NewProperties(params)

	properties.Property("closed adapter always fails healthcheck", prop.ForAll(
		func() bool {
			a := &Adapter{closed: true, logger: &mockLogger{}}
			return a.HealthCheck(context.Background()) != nil
		},
	))

	properties.TestingRun(t)
}

// Property: a failed condition is always a conflict and never retryable.
func TestProperty_ConditionFailureIsConflict(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("conditional check failure maps to ErrConflict", prop.ForAll(
		func(id, owner string) bool {
			client := &fakeDynamoClient{putErr: &types.ConditionalCheckFailedException{}}
			s, err := NewLeaseStore(NewAdapterWithClient(client, time.Second, nil), LeaseStoreConfig{}, nil)
			if err != nil {
				return false
			}
			err = s.RefreshLease(context.Background(), lock.Lease{ID: id, Owner: owner, ExpiresAt: time.Now()})
			return errors.Is(err, lock.ErrConflict) && !errors.Is(err, lock.ErrRetryable)
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
