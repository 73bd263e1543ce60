package domain

import "time"

// AuditKind представляет тип события в журнале аудита
type AuditKind string

// Типы событий жизненного цикла саги
const (
	AuditRunStarted    AuditKind = "run_started"
	AuditPhaseStarted  AuditKind = "phase_started"
	AuditPhaseFinished AuditKind = "phase_finished"
	AuditPhaseFailed   AuditKind = "phase_failed"
	AuditEdgeCase      AuditKind = "edge_case"
	AuditCommitted     AuditKind = "committed"
	AuditRolledBack    AuditKind = "rolled_back"
	AuditRollbackError AuditKind = "rollback_failed"
	AuditRunFinished   AuditKind = "run_finished"
)

// AuditEvent представляет одну запись журнала аудита
type AuditEvent struct {
	RunID       string    `json:"run_id"`
	PrincipalID string    `json:"principal_id"`
	Phase       PhaseName `json:"phase,omitempty"`
	Kind        AuditKind `json:"kind"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}
