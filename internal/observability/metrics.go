// Package observability wires tracing (OpenTelemetry) and the domain-level
// Prometheus collectors used by the session store.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ConversationsCreated counts conversations inserted by start-or-resume
	// and by explicit channel thread creation.
	ConversationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_conversations_created_total",
		Help: "Conversations created.",
	})

	// ResolveConflicts counts start-or-resume calls that lost the insert race
	// and resolved to a conversation written by another caller.
	ResolveConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_resolve_conflicts_total",
		Help: "Start-or-resume inserts that resolved to an existing conversation.",
	})

	messagesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_messages_appended_total",
		Help: "Messages appended to the log, by role.",
	}, []string{"role"})

	auditEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_audit_entries_total",
		Help: "Audit entries recorded, by outcome of the audited action.",
	}, []string{"success"})

	// AuditFailures counts audit writes that could not be persisted.
	AuditFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_audit_failures_total",
		Help: "Audit entries that failed to persist.",
	})

	// PartialTurns counts turns whose inbound message was stored but whose
	// outbound message was not.
	PartialTurns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_partial_turns_total",
		Help: "Turns left with only the inbound message persisted.",
	})

	// TurnReplays counts turn submissions answered from a stored turn record.
	TurnReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_turn_replays_total",
		Help: "Turns replayed or resumed from a turn record.",
	})
)

func init() {
	prometheus.MustRegister(
		ConversationsCreated,
		ResolveConflicts,
		messagesAppended,
		auditEntries,
		AuditFailures,
		PartialTurns,
		TurnReplays,
	)
}

// MessageAppended records one stored message of the given role.
func MessageAppended(role string) { messagesAppended.WithLabelValues(role).Inc() }

// AuditRecorded records one stored audit entry.
func AuditRecorded(success bool) {
	auditEntries.WithLabelValues(strconv.FormatBool(success)).Inc()
}
