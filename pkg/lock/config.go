package lock

import (
	"fmt"
	"time"
)

const (
	DefaultTTL               = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultJitterMargin      = time.Second
)

// Config holds lease timing. All values are fixed at provider construction.
type Config struct {
	// TTL is how long a lease stays live without renewal.
	TTL time.Duration
	// HeartbeatInterval is the pause between renewal passes.
	HeartbeatInterval time.Duration
	// JitterMargin is the clock skew tolerated before a foreign lease counts as expired.
	JitterMargin time.Duration
}

// DefaultConfig returns three renewal attempts per TTL window.
func DefaultConfig() Config {
	return Config{
		TTL:               DefaultTTL,
		HeartbeatInterval: DefaultHeartbeatInterval,
		JitterMargin:      DefaultJitterMargin,
	}
}

func (c *Config) normalize() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.JitterMargin < 0 {
		c.JitterMargin = 0
	}
}

// Validate checks the timing contract: a renewal must land before the lease
// could be considered expired by another node.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return Error(ErrValidation, "ttl must be > 0")
	}
	if c.HeartbeatInterval <= 0 {
		return Error(ErrValidation, "heartbeat interval must be > 0")
	}
	if c.JitterMargin < 0 {
		return Error(ErrValidation, "jitter margin must be >= 0")
	}
	if c.HeartbeatInterval >= c.TTL-c.JitterMargin {
		return Error(ErrValidation, fmt.Sprintf(
			"heartbeat interval (%v) must be less than ttl (%v) minus jitter margin (%v)",
			c.HeartbeatInterval, c.TTL, c.JitterMargin,
		))
	}
	return nil
}
