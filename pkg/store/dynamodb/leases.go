package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/dynalock/pkg/lock"
	"github.com/nimburion/dynalock/pkg/observability/logger"
)

const (
	DefaultTable             = "dynalock_leases"
	DefaultProvisionAttempts = 10
	DefaultProvisionInterval = time.Second

	attrID      = "id"
	attrOwner   = "lockOwner"
	attrExpires = "expires"
)

// LeaseStoreConfig names the lease table and bounds the wait for it to become active.
type LeaseStoreConfig struct {
	Table             string
	ProvisionAttempts int
	ProvisionInterval time.Duration
}

func (c *LeaseStoreConfig) normalize() {
	c.Table = strings.TrimSpace(c.Table)
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.ProvisionAttempts <= 0 {
		c.ProvisionAttempts = DefaultProvisionAttempts
	}
	if c.ProvisionInterval <= 0 {
		c.ProvisionInterval = DefaultProvisionInterval
	}
}

// LeaseStore keeps one item per lock ID and relies on condition expressions
// for every mutation.
type LeaseStore struct {
	adapter *Adapter
	config  LeaseStoreConfig
	log     logger.Logger
}

var _ lock.Store = (*LeaseStore)(nil)

func NewLeaseStore(adapter *Adapter, cfg LeaseStoreConfig, log logger.Logger) (*LeaseStore, error) {
	if adapter == nil {
		return nil, lock.Error(lock.ErrInvalidArgument, "dynamodb adapter is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	cfg.normalize()
	return &LeaseStore{
		adapter: adapter,
		config:  cfg,
		log:     log.With("store", "dynamodb", "table", cfg.Table),
	}, nil
}

// Table returns the lease table name.
func (s *LeaseStore) Table() string {
	return s.config.Table
}

// EnsureNamespace creates the lease table when missing and waits a bounded
// time for it to become active. Not reaching ACTIVE in time is only logged.
func (s *LeaseStore) EnsureNamespace(ctx context.Context) error {
	out, err := s.adapter.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.config.Table)})
	if err == nil {
		if out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			return nil
		}
		return s.waitActive(ctx)
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return lock.Wrap(lock.ErrRetryable, "describe lease table failed", err)
	}

	if err := s.createTable(ctx); err != nil {
		return err
	}
	return s.waitActive(ctx)
}

func (s *LeaseStore) createTable(ctx context.Context) error {
	_, err := s.adapter.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.config.Table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			s.log.Debug("lease table created concurrently by another node")
			return nil
		}
		return lock.Wrap(lock.ErrRetryable, "create lease table failed", err)
	}
	s.log.Info("lease table created")
	return nil
}

func (s *LeaseStore) waitActive(ctx context.Context) error {
	waiter := dynamodb.NewTableExistsWaiter(s.adapter, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = s.config.ProvisionInterval
		o.MaxDelay = s.config.ProvisionInterval
	})
	maxWait := time.Duration(s.config.ProvisionAttempts) * s.config.ProvisionInterval

	err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.config.Table)}, maxWait)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return lock.Wrap(lock.ErrRetryable, "wait for lease table canceled", ctx.Err())
	case ErrorCode(err) != "":
		return lock.Wrap(lock.ErrRetryable, "wait for lease table failed", err)
	default:
		s.log.Warn("lease table not active yet, continuing", "max_wait", maxWait, "error", err)
		return nil
	}
}

func (s *LeaseStore) CreateLease(ctx context.Context, lease lock.Lease, staleBefore time.Time) error {
	_, err := s.adapter.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.Table),
		Item:                leaseItem(lease),
		ConditionExpression: aws.String("attribute_not_exists(#id) OR #expires < :stale"),
		ExpressionAttributeNames: map[string]string{
			"#id":      attrID,
			"#expires": attrExpires,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":stale": millis(staleBefore),
		},
	})
	return s.classify("create", lease.ID, err)
}

func (s *LeaseStore) RefreshLease(ctx context.Context, lease lock.Lease) error {
	_, err := s.adapter.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.Table),
		Item:                leaseItem(lease),
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": attrOwner,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: lease.Owner},
		},
	})
	return s.classify("refresh", lease.ID, err)
}

func (s *LeaseStore) DeleteLease(ctx context.Context, id, owner string) error {
	_, err := s.adapter.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.Table),
		Key: map[string]types.AttributeValue{
			attrID: &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": attrOwner,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	return s.classify("delete", id, err)
}

func (s *LeaseStore) HealthCheck(ctx context.Context) error {
	return s.adapter.HealthCheck(ctx)
}

func (s *LeaseStore) Close() error {
	return s.adapter.Close()
}

func (s *LeaseStore) classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return lock.Error(lock.ErrConflict, fmt.Sprintf("lease %q condition failed on %s", id, op))
	}
	if IsThrottlingError(err) {
		s.log.Warn("dynamodb request throttled", "operation", op, "lock_id", id, "code", ErrorCode(err))
	}
	return lock.Wrap(lock.ErrRetryable, fmt.Sprintf("dynamodb %s lease %q failed", op, id), err)
}

func leaseItem(lease lock.Lease) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrID:      &types.AttributeValueMemberS{Value: lease.ID},
		attrOwner:   &types.AttributeValueMemberS{Value: lease.Owner},
		attrExpires: millis(lease.ExpiresAt),
	}
}

func millis(t time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(lock.EpochMillis(t), 10)}
}
