package health

import (
	"context"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

// Checkable is implemented by components that can verify their own connectivity.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker turns a Checkable into a Checker with a bounded timeout.
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a checker; a zero timeout means five seconds.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// Check runs the adapter's health check under the configured timeout.
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = err.Error()
	}
	return result
}

func (c *AdapterChecker) Name() string {
	return c.name
}
