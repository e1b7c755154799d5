package lock

import (
	"context"
	"time"
)

func (p *Provider) heartbeat(ctx context.Context) {
	defer p.wg.Done()

	timer := time.NewTimer(p.config.HeartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.renewAll(ctx)
		timer.Reset(p.config.HeartbeatInterval)
	}
}

// renewAll refreshes every lease in a snapshot of the held-set. One failing
// lease never prevents the others from being renewed.
func (p *Provider) renewAll(ctx context.Context) {
	for _, entry := range p.held.snapshot() {
		if ctx.Err() != nil {
			return
		}
		p.renew(ctx, entry)
	}
}

func (p *Provider) renew(ctx context.Context, entry heldEntry) {
	ctx, span := startSpan(ctx, "renew", entry.id, p.nodeID)
	lease := Lease{
		ID:        entry.id,
		Owner:     p.nodeID,
		ExpiresAt: p.now().Add(p.config.TTL),
	}

	err := p.store.RefreshLease(ctx, lease)
	switch {
	case err == nil:
		recordRenew(statusRenewed)
		endSpan(span, statusRenewed, nil)
	case IsConflict(err):
		recordRenew(statusLost)
		endSpan(span, statusLost, nil)
		if p.held.removeIfGeneration(entry.id, entry.generation) {
			setLocksHeld(p.held.size())
		}
		p.log.Warn("lease lost before renewal", "lock_id", entry.id)
	case ctx.Err() != nil:
		endSpan(span, statusError, ctx.Err())
	default:
		recordRenew(statusError)
		endSpan(span, statusError, err)
		p.log.Error("lease renewal failed", "lock_id", entry.id, "error", err)
	}
}
