package main

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the OpenTelemetry instruments for the sync service.
type metrics struct {
	openConnections     metric.Int64UpDownCounter
	presenceTransitions metric.Int64Counter
	sessionsStarted     metric.Int64Counter
	sessionsEnded       metric.Int64Counter
	sessionsExpired     metric.Int64Counter
	reconcileCycles     metric.Int64Counter
	reconcileFailures   metric.Int64Counter
	chatMessages        metric.Int64Counter
	ghostsPruned        metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("sync-service")
	m := &metrics{}
	m.openConnections, _ = meter.Int64UpDownCounter("sync_open_connections",
		metric.WithDescription("Currently open websocket connections"))
	m.presenceTransitions, _ = meter.Int64Counter("sync_presence_transitions_total",
		metric.WithDescription("Identity online/offline crossings"))
	m.sessionsStarted, _ = meter.Int64Counter("sync_sessions_started_total",
		metric.WithDescription("Sessions announced via start or sync"))
	m.sessionsEnded, _ = meter.Int64Counter("sync_sessions_ended_total",
		metric.WithDescription("Sessions removed by an owning end"))
	m.sessionsExpired, _ = meter.Int64Counter("sync_sessions_expired_total",
		metric.WithDescription("Sessions evicted by the expiry sweep"))
	m.reconcileCycles, _ = meter.Int64Counter("sync_reconcile_cycles_total",
		metric.WithDescription("Completed reconciliation merges"))
	m.reconcileFailures, _ = meter.Int64Counter("sync_reconcile_failures_total",
		metric.WithDescription("Reconciliation cycles skipped on fetch failure"))
	m.chatMessages, _ = meter.Int64Counter("sync_chat_messages_total",
		metric.WithDescription("User chat messages relayed"))
	m.ghostsPruned, _ = meter.Int64Counter("sync_ghost_connections_pruned_total",
		metric.WithDescription("Registry entries removed by the ghost sweep"))
	return m
}
