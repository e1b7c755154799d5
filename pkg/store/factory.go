// Package store selects and builds the lease store backend named in configuration.
package store

import (
	"context"
	"fmt"

	"github.com/nimburion/dynalock/pkg/config"
	"github.com/nimburion/dynalock/pkg/lock"
	"github.com/nimburion/dynalock/pkg/observability/logger"
	"github.com/nimburion/dynalock/pkg/store/dynamodb"
	"github.com/nimburion/dynalock/pkg/store/memory"
	"github.com/nimburion/dynalock/pkg/store/postgres"
	"github.com/nimburion/dynalock/pkg/store/redis"
)

// NewLeaseStore connects to the configured backend and wraps it as a lock.Store.
// The namespace is not provisioned here; Provider.Start does that.
func NewLeaseStore(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (lock.Store, error) {
	if log == nil {
		log = logger.NewNop()
	}

	switch cfg.Type {
	case config.StoreTypeMemory:
		return memory.New(), nil
	case config.StoreTypeDynamoDB:
		adapter, err := dynamodb.NewAdapter(ctx, dynamodb.Config{
			Region:           cfg.DynamoDB.Region,
			Endpoint:         cfg.DynamoDB.Endpoint,
			AccessKeyID:      cfg.DynamoDB.AccessKeyID,
			SecretAccessKey:  cfg.DynamoDB.SecretAccessKey,
			SessionToken:     cfg.DynamoDB.SessionToken,
			OperationTimeout: cfg.DynamoDB.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		leases, err := dynamodb.NewLeaseStore(adapter, dynamodb.LeaseStoreConfig{
			Table:             cfg.DynamoDB.Table,
			ProvisionAttempts: cfg.DynamoDB.ProvisionAttempts,
			ProvisionInterval: cfg.DynamoDB.ProvisionInterval,
		}, log)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return leases, nil
	case config.StoreTypeRedis:
		adapter, err := redis.NewAdapter(ctx, redis.Config{
			URL:              cfg.Redis.URL,
			MaxConns:         cfg.Redis.MaxConns,
			OperationTimeout: cfg.Redis.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		leases, err := redis.NewLeaseStore(adapter, cfg.Redis.Prefix, log)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return leases, nil
	case config.StoreTypePostgres:
		adapter, err := postgres.NewAdapter(ctx, postgres.Config{
			URL:             cfg.Postgres.URL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			QueryTimeout:    cfg.Postgres.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		leases, err := postgres.NewLeaseStore(adapter, cfg.Postgres.Table, log)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return leases, nil
	default:
		return nil, fmt.Errorf("unsupported store.type %q (supported: memory, dynamodb, redis, postgres)", cfg.Type)
	}
}
