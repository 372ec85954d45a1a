package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block engine flows on audit
//   failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// ActorRole records the role at the time of the event.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	RequestID   string `json:"request_id,omitempty" db:"request_id"`
	CandidateID string `json:"candidate_id,omitempty" db:"candidate_id"`
	RoutingID   string `json:"routing_id,omitempty" db:"routing_id"`
	VendorID    string `json:"vendor_id,omitempty" db:"vendor_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAdminAction EventType = "admin_action"

	// Engine lifecycle events.
	EventTypeRequestCreated     EventType = "request_created"
	EventTypeCandidatesSelected EventType = "candidates_selected"
	EventTypeMatchRouted        EventType = "match_routed"
	EventTypeVendorDecision     EventType = "vendor_decision"
	EventTypeRequestClosed      EventType = "request_closed"
)
