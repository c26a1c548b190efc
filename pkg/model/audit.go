package model

import "time"

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventTypeCloneCompleted AuditEventType = "clone_completed"
	EventTypeCloneRejected  AuditEventType = "clone_rejected"
	EventTypeCloneFailed    AuditEventType = "clone_failed"
)

// AuditEventFor maps a clone status to the audit event recorded for it.
func AuditEventFor(status CloneStatus) AuditEventType {
	switch status {
	case StatusCloned:
		return EventTypeCloneCompleted
	case StatusBackendError:
		return EventTypeCloneFailed
	default:
		return EventTypeCloneRejected
	}
}

// AuditRecord is a single line in the audit log (JSONL format).
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	RequestID  string         `json:"request_id,omitempty"`
	Backend    BackendType    `json:"backend,omitempty"`
	Request    CloneRequest   `json:"request"`
	Status     CloneStatus    `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
