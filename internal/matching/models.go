package matching

import "time"

// Matching models are tenant-scoped (workspace_id required everywhere).
// Budgets are expressed in minor units (e.g., cents) using int64.
//
// State invariants:
// - Request status only advances: pending -> matched -> routed -> fulfilled,
//   or closed once no candidates remain.
// - At most topK MatchCandidate rows are persisted per request.
// - A MatchRouting row leaves "routed" exactly once; it is never reopened.
// - A vendor's count of candidates in routed/accepted status never exceeds
//   its capacity limit.

// Request is a customer's need for a categorized service.
// Immutable after creation except for Status, which only this engine advances.
type Request struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// AgentID identifies the requesting customer account.
	AgentID string `json:"agent_id" db:"agent_id"`

	ServiceCategory string `json:"service_category" db:"service_category"`

	// BudgetMinor is optional; nil means the request carries no budget.
	BudgetMinor *int64 `json:"budget_minor,omitempty" db:"budget_minor"`

	Urgency Urgency `json:"urgency" db:"urgency"`

	// Location is optional (e.g., a region code like "TX").
	Location string `json:"location,omitempty" db:"location"`

	// Requirements is an opaque key/value bag supplied by the caller.
	// Stored as JSONB; the engine never interprets it.
	Requirements map[string]string `json:"requirements,omitempty" db:"requirements"`

	Status RequestStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusMatched   RequestStatus = "matched"
	RequestStatusRouted    RequestStatus = "routed"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusClosed    RequestStatus = "closed"
)

// terminalRequestStatus reports whether a request can no longer be routed.
func terminalRequestStatus(s RequestStatus) bool {
	return s == RequestStatusFulfilled || s == RequestStatusClosed
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	default:
		return false
	}
}

// MatchCandidate is a scored, ranked pairing of a request with an eligible
// vendor. Unique per (request_id, vendor_id).
type MatchCandidate struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	RequestID   string `json:"request_id" db:"request_id"`
	VendorID    string `json:"vendor_id" db:"vendor_id"`

	// MatchScore is clamped to [0, 100].
	MatchScore int `json:"match_score" db:"match_score"`

	// Rank is the candidate's position at selection time (0 = best). Reads
	// return candidates in rank order; the stored score alone cannot reproduce
	// the selection's priority tie-break.
	Rank int `json:"rank" db:"selection_rank"`

	// MatchReasons stays structured internally; display strings are rendered
	// only at the HTTP boundary.
	MatchReasons []Reason `json:"match_reasons" db:"match_reasons"`

	Status CandidateStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusRouted   CandidateStatus = "routed"
	CandidateStatusAccepted CandidateStatus = "accepted"
	CandidateStatusDeclined CandidateStatus = "declined"
)

// MatchRouting is one routing attempt: a candidate offered to its vendor.
// A request may accumulate several rows across fallback attempts.
type MatchRouting struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	MatchCandidateID string `json:"match_candidate_id" db:"match_candidate_id"`
	RequestID        string `json:"request_id" db:"request_id"`
	VendorID         string `json:"vendor_id" db:"vendor_id"`

	RoutingMethod RoutingMethod `json:"routing_method" db:"routing_method"`

	RoutedAt         time.Time  `json:"routed_at" db:"routed_at"`
	VendorResponseAt *time.Time `json:"vendor_response_at,omitempty" db:"vendor_response_at"`

	Status RoutingStatus `json:"status" db:"status"`
}

type RoutingMethod string

const (
	RoutingMethodAutomatic RoutingMethod = "automatic"
	RoutingMethodManual    RoutingMethod = "manual"
)

type RoutingStatus string

const (
	RoutingStatusRouted   RoutingStatus = "routed"
	RoutingStatusAccepted RoutingStatus = "accepted"
	RoutingStatusDeclined RoutingStatus = "declined"
)

// VendorDecision is an immutable, append-only record of a vendor response.
type VendorDecision struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	RoutingID string `json:"routing_id" db:"routing_id"`
	VendorID  string `json:"vendor_id" db:"vendor_id"`

	Decision Decision `json:"decision" db:"decision"`

	ResponseMessage string `json:"response_message,omitempty" db:"response_message"`

	// EstimatedDelivery is optional and only meaningful on accept.
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty" db:"estimated_delivery"`

	DecidedAt time.Time `json:"decided_at" db:"decided_at"`
}

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

func ValidDecision(d Decision) bool {
	return d == DecisionAccept || d == DecisionDecline
}
