package lock

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nimburion/dynalock/pkg/lock"

const (
	statusAcquired  = "acquired"
	statusContended = "contended"
	statusReleased  = "released"
	statusNotOwned  = "not_owned"
	statusRenewed   = "renewed"
	statusLost      = "lost"
	statusError     = "error"
)

var (
	lockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynalock_lock_acquire_total",
			Help: "Total number of lock acquire attempts",
		},
		[]string{"status"},
	)

	lockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynalock_lock_release_total",
			Help: "Total number of lock release attempts",
		},
		[]string{"status"},
	)

	lockRenewTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynalock_lock_renew_total",
			Help: "Total number of lease renewals issued by the heartbeat loop",
		},
		[]string{"status"},
	)

	locksHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dynalock_locks_held",
			Help: "Number of lock IDs currently in the local held-set",
		},
	)
)

func recordAcquire(status string) {
	lockAcquireTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func recordRelease(status string) {
	lockReleaseTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func recordRenew(status string) {
	lockRenewTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func setLocksHeld(n int) {
	locksHeld.Set(float64(n))
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func startSpan(ctx context.Context, operation, lockID, nodeID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "lock."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lock.id", lockID),
			attribute.String("lock.node_id", nodeID),
		),
	)
}

func endSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("lock.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
