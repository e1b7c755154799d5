package lock

import (
	"strings"
	"time"

	"github.com/nimburion/dynalock/pkg/health"
)

const defaultProviderHealthCheckName = "lock-store"

// NewProviderHealthChecker exposes the provider's store connectivity as a health check.
func NewProviderHealthChecker(name string, provider *Provider, timeout time.Duration) health.Checker {
	checkName := strings.TrimSpace(name)
	if checkName == "" {
		checkName = defaultProviderHealthCheckName
	}
	return health.NewAdapterChecker(checkName, provider, timeout)
}
