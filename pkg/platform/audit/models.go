// Package audit captures structured audit events for identity and
// citizenship actions. Events are transport-agnostic; sinks (kafka, memory)
// fan out behind the Store/Publisher interfaces.
package audit

import "time"

// Action names recorded in the audit stream.
const (
	ActionVerificationStarted   = "verification.started"
	ActionVerificationResumed   = "verification.resumed"
	ActionStatusChanged         = "identity.status_changed"
	ActionReminderSent          = "identity.reminder_sent"
	ActionApprovalNotified      = "identity.approval_notified"
	ActionCitizenRegistered     = "citizenship.registered"
	ActionCitizenResigned       = "citizenship.resigned"
	ActionImpersonatedWriteDeny = "session.impersonated_write_denied"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	ActorID   string    `json:"actor_id,omitempty"`
	Device    string    `json:"device,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
