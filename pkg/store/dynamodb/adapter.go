package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/nimburion/dynalock/pkg/observability/logger"
)

const defaultOperationTimeout = 5 * time.Second

// API is the part of the DynamoDB client the lease store relies on.
type API interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Adapter provides DynamoDB connectivity with a per-operation timeout.
type Adapter struct {
	client  API
	logger  logger.Logger
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
}

// Config holds DynamoDB adapter configuration.
type Config struct {
	Region           string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	OperationTimeout time.Duration
}

// NewAdapter builds an AWS SDK v2 client, honouring a custom endpoint for
// LocalStack or DynamoDB Local, and verifies connectivity.
func NewAdapter(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	adapter := NewAdapterWithClient(dynamodb.NewFromConfig(awsCfg, opts...), cfg.OperationTimeout, log)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()
	if err := adapter.Ping(pingCtx); err != nil {
		return nil, err
	}

	log.Info("DynamoDB adapter initialized", "region", cfg.Region, "endpoint", cfg.Endpoint)
	return adapter, nil
}

// NewAdapterWithClient wraps an existing client.
func NewAdapterWithClient(client API, timeout time.Duration, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{client: client, logger: log, timeout: timeout}
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.checkOpen(); err != nil {
		return err
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err := a.client.ListTables(opCtx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	if err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("DynamoDB health check failed", "error", err)
		return fmt.Errorf("dynamodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Adapter) PutItem(ctx context.Context, input *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.client.PutItem(opCtx, input, optFns...)
}

func (a *Adapter) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.client.DeleteItem(opCtx, input, optFns...)
}

// DescribeTable also satisfies dynamodb.DescribeTableAPIClient, so the adapter
// can drive the SDK table waiters.
func (a *Adapter) DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.client.DescribeTable(opCtx, input, optFns...)
}

func (a *Adapter) CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.client.CreateTable(opCtx, input, optFns...)
}

func (a *Adapter) checkOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return fmt.Errorf("dynamodb adapter is closed")
	}
	return nil
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

// IsThrottlingError reports whether err is DynamoDB pushing back on request rate.
func IsThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	var pte *types.ProvisionedThroughputExceededException
	if errors.As(err, &pte) {
		return true
	}
	var rle *types.RequestLimitExceeded
	if errors.As(err, &rle) {
		return true
	}
	return ErrorCode(err) == "ThrottlingException"
}

// ErrorCode returns the service error code carried by err, or "" when err did
// not come from the API.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
