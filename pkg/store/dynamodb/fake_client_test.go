package dynamodb

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/dynalock/pkg/observability/logger"
)

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Debug(string, ...any) {}
func (m *mockLogger) Info(string, ...any)  {}
func (m *mockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(string, ...any)      {}
func (m *mockLogger) With(...any) logger.Logger { return m }

func (m *mockLogger) warned(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.warns {
		if w == msg {
			return true
		}
	}
	return false
}

// fakeDynamoClient records requests and replays scripted responses.
type fakeDynamoClient struct {
	mu sync.Mutex

	listErr   error
	putErr    error
	deleteErr error
	createErr error

	// describe results are consumed in order; the last one repeats.
	describe []describeResult

	puts      []*dynamodb.PutItemInput
	deletes   []*dynamodb.DeleteItemInput
	creates   []*dynamodb.CreateTableInput
	describes int
}

type describeResult struct {
	status types.TableStatus
	err    error
}

func (f *fakeDynamoClient) ListTables(context.Context, *dynamodb.ListTablesInput, ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &dynamodb.ListTablesOutput{}, nil
}

func (f *fakeDynamoClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, in)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamoClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.describes
	f.describes++
	if len(f.describe) == 0 {
		return nil, &types.ResourceNotFoundException{Message: in.TableName}
	}
	if idx >= len(f.describe) {
		idx = len(f.describe) - 1
	}
	result := f.describe[idx]
	if result.err != nil {
		return nil, result.err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: in.TableName, TableStatus: result.status},
	}, nil
}

func (f *fakeDynamoClient) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamoClient) describeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describes
}
