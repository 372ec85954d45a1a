package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vendormatch-engine/internal/rules"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")

	// ErrConflict signals a lost conditional update: the routing was already
	// decided, the candidate is no longer pending, or the vendor is at
	// capacity.
	ErrConflict = errors.New("conflict")

	// ErrExhausted signals that no routable candidates remain and the request
	// has been closed. Reported, not fatal.
	ErrExhausted = errors.New("candidates exhausted")
)

// Repository is the persistence contract for the matching engine.
//
// The two mutating operations that close race windows (RouteCandidate,
// CompleteRouting) must be atomic: implementations back them with a single
// guarded statement or a transaction, never a read followed by a write.
type Repository interface {
	InsertRequest(ctx context.Context, req Request) error
	GetRequest(ctx context.Context, workspaceID, requestID string) (Request, error)
	SetRequestStatus(ctx context.Context, workspaceID, requestID string, status RequestStatus, now time.Time) error

	InsertCandidates(ctx context.Context, cands []MatchCandidate) error
	// ListCandidates returns candidates in selection-rank order, reproducing
	// the exact ordering the selector persisted (tie-breaks included).
	ListCandidates(ctx context.Context, workspaceID, requestID string) ([]MatchCandidate, error)
	GetCandidate(ctx context.Context, workspaceID, candidateID string) (MatchCandidate, error)
	// NextPendingCandidates returns the request's pending candidates in rank
	// order.
	NextPendingCandidates(ctx context.Context, workspaceID, requestID string) ([]MatchCandidate, error)

	// VendorInFlight counts the vendor's candidates in routed/accepted status.
	VendorInFlight(ctx context.Context, workspaceID, vendorID string) (int, error)

	// RouteCandidate atomically flips the candidate pending -> routed provided
	// the vendor stays under capacityLimit, inserts the routing row, and
	// advances the request status to routed. Returns ok=false without error
	// when the guard fails (candidate not pending, or capacity exhausted).
	RouteCandidate(ctx context.Context, routing MatchRouting, capacityLimit int, now time.Time) (bool, error)

	GetRouting(ctx context.Context, workspaceID, routingID string) (MatchRouting, error)

	// CompleteRouting atomically transitions the routing routed -> status,
	// records the decision row, updates the linked candidate, and (on accept)
	// marks the request fulfilled. Returns ok=false without error when the
	// routing was already decided.
	CompleteRouting(ctx context.Context, routingID string, status RoutingStatus, decision VendorDecision, now time.Time) (bool, error)

	ListRoutingsForRequest(ctx context.Context, workspaceID, requestID string) ([]MatchRouting, error)
	ListDecisionsForRouting(ctx context.Context, workspaceID, routingID string) ([]VendorDecision, error)

	// CloseStaleRequests closes pending/routed requests not updated since the
	// cutoff and returns how many rows changed.
	CloseStaleRequests(ctx context.Context, workspaceID string, before time.Time) (int, error)
}

// Notifier is the external vendor-facing collaborator boundary. Delivery is
// best-effort: routing state is the source of truth, not notification
// delivery.
type Notifier interface {
	NotifyRouted(ctx context.Context, offer Offer) error
}

// Offer is the provider-agnostic payload sent to a vendor when a candidate is
// routed to them.
type Offer struct {
	WorkspaceID string `json:"workspace_id"`
	RoutingID   string `json:"routing_id"`
	RequestID   string `json:"request_id"`
	CandidateID string `json:"match_candidate_id"`
	VendorID    string `json:"vendor_id"`

	ServiceCategory string `json:"service_category"`
	MatchScore      int    `json:"match_score"`

	// NotifyURL is the vendor's webhook endpoint, when known.
	NotifyURL string `json:"-"`

	RoutedAt time.Time `json:"routed_at"`
}

// CapacityGuard is an optional advisory fast path for per-vendor in-flight
// slots (e.g., Redis). The authoritative capacity check lives in the
// repository's guarded write; the guard only sheds load before it.
type CapacityGuard interface {
	Acquire(ctx context.Context, workspaceID, vendorID string, limit int) (bool, error)
	Release(ctx context.Context, workspaceID, vendorID string) error
}

// AuditLogger records internal-only engine events. Best-effort: audit
// failures never block the matching flow.
type AuditLogger interface {
	LogEngineEvent(ctx context.Context, e EngineEvent) error
}

type EngineEvent struct {
	WorkspaceID string
	Kind        string

	RequestID   string
	CandidateID string
	RoutingID   string
	VendorID    string

	Message string
}

// Engine event kinds.
const (
	EventRequestCreated     = "request_created"
	EventCandidatesSelected = "candidates_selected"
	EventMatchRouted        = "match_routed"
	EventVendorDecision     = "vendor_decision"
	EventRequestClosed      = "request_closed"
)

// Service implements the matching engine: candidate selection, routing with
// decline fallback, and decision recording. Handlers are stateless; all state
// lives in the repository.
type Service struct {
	repo  Repository
	rules rules.Repository

	notifier Notifier
	guard    CapacityGuard
	audit    AuditLogger

	log   *slog.Logger
	clock func() time.Time

	topK     int
	minScore int
}

// Options tunes optional service collaborators and knobs.
type Options struct {
	Notifier Notifier
	Guard    CapacityGuard
	Audit    AuditLogger
	Logger   *slog.Logger

	// TopK caps persisted candidates per request; 0 means the default of 5.
	TopK int
	// MinScore is the eligibility threshold; 0 means the default of 40.
	MinScore int
}

func NewService(repo Repository, ruleStore rules.Repository, opts Options) *Service {
	s := &Service{
		repo:     repo,
		rules:    ruleStore,
		notifier: opts.Notifier,
		guard:    opts.Guard,
		audit:    opts.Audit,
		log:      opts.Logger,
		clock:    time.Now,
		topK:     opts.TopK,
		minScore: opts.MinScore,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.topK <= 0 {
		s.topK = 5
	}
	if s.minScore <= 0 {
		s.minScore = MinEligibleScore
	}
	return s
}

type CreateRequestInput struct {
	AgentID         string
	ServiceCategory string
	BudgetMinor     *int64
	Urgency         Urgency
	Location        string
	Requirements    map[string]string
}

// CreateRequest persists a new request and immediately runs candidate
// selection. A request with no eligible vendors is closed right away: "no
// match found" is a status, not a failure.
func (s *Service) CreateRequest(ctx context.Context, workspaceID string, in CreateRequestInput) (Request, []MatchCandidate, error) {
	if workspaceID == "" || in.AgentID == "" || in.ServiceCategory == "" {
		return Request{}, nil, ErrInvalidArgument
	}
	if in.Urgency == "" {
		in.Urgency = UrgencyMedium
	}
	if !ValidUrgency(in.Urgency) {
		return Request{}, nil, ErrInvalidArgument
	}
	if in.BudgetMinor != nil && *in.BudgetMinor < 0 {
		return Request{}, nil, ErrInvalidArgument
	}

	now := s.clock().UTC()
	req := Request{
		ID:              uuid.NewString(),
		WorkspaceID:     workspaceID,
		AgentID:         in.AgentID,
		ServiceCategory: in.ServiceCategory,
		BudgetMinor:     in.BudgetMinor,
		Urgency:         in.Urgency,
		Location:        in.Location,
		Requirements:    in.Requirements,
		Status:          RequestStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.InsertRequest(ctx, req); err != nil {
		return Request{}, nil, fmt.Errorf("insert request: %w", err)
	}
	s.logEvent(ctx, EngineEvent{WorkspaceID: workspaceID, Kind: EventRequestCreated, RequestID: req.ID})

	stored, err := s.selectAndStore(ctx, req)
	if err != nil {
		return Request{}, nil, err
	}
	req.Status = RequestStatusMatched
	if len(stored) == 0 {
		req.Status = RequestStatusClosed
	}
	return req, stored, nil
}

// FindMatches returns the stored ranked candidates for a request, running
// selection first when none exist yet. Scoring is a snapshot at selection
// time; stored candidates are never re-scored.
func (s *Service) FindMatches(ctx context.Context, workspaceID, requestID string) ([]MatchCandidate, error) {
	if workspaceID == "" || requestID == "" {
		return nil, ErrInvalidArgument
	}
	req, err := s.repo.GetRequest(ctx, workspaceID, requestID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListCandidates(ctx, workspaceID, requestID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(existing) > 0 || req.Status != RequestStatusPending {
		return existing, nil
	}
	return s.selectAndStore(ctx, req)
}

// RequestStatusView is the full state of a request for status queries:
// candidates in rank order with their routing attempts and decisions nested.
type RequestStatusView struct {
	Request    Request         `json:"request"`
	Candidates []CandidateView `json:"candidates"`
}

type CandidateView struct {
	Candidate MatchCandidate `json:"candidate"`
	Routings  []RoutingView  `json:"routings,omitempty"`
}

type RoutingView struct {
	Routing   MatchRouting     `json:"routing"`
	Decisions []VendorDecision `json:"decisions,omitempty"`
}

func (s *Service) RequestStatus(ctx context.Context, workspaceID, requestID string) (RequestStatusView, error) {
	if workspaceID == "" || requestID == "" {
		return RequestStatusView{}, ErrInvalidArgument
	}
	req, err := s.repo.GetRequest(ctx, workspaceID, requestID)
	if err != nil {
		return RequestStatusView{}, err
	}
	cands, err := s.repo.ListCandidates(ctx, workspaceID, requestID)
	if err != nil {
		return RequestStatusView{}, fmt.Errorf("list candidates: %w", err)
	}
	routings, err := s.repo.ListRoutingsForRequest(ctx, workspaceID, requestID)
	if err != nil {
		return RequestStatusView{}, fmt.Errorf("list routings: %w", err)
	}

	byCandidate := make(map[string][]RoutingView, len(routings))
	for _, rt := range routings {
		decisions, err := s.repo.ListDecisionsForRouting(ctx, workspaceID, rt.ID)
		if err != nil {
			return RequestStatusView{}, fmt.Errorf("list decisions: %w", err)
		}
		byCandidate[rt.MatchCandidateID] = append(byCandidate[rt.MatchCandidateID], RoutingView{Routing: rt, Decisions: decisions})
	}

	view := RequestStatusView{Request: req, Candidates: make([]CandidateView, 0, len(cands))}
	for _, c := range cands {
		view.Candidates = append(view.Candidates, CandidateView{Candidate: c, Routings: byCandidate[c.ID]})
	}
	return view, nil
}

// CloseStale closes pending/routed requests older than the cutoff. The engine
// never expires work on its own; an external scheduler invokes this.
func (s *Service) CloseStale(ctx context.Context, workspaceID string, olderThan time.Duration) (int, error) {
	if workspaceID == "" || olderThan <= 0 {
		return 0, ErrInvalidArgument
	}
	before := s.clock().UTC().Add(-olderThan)
	n, err := s.repo.CloseStaleRequests(ctx, workspaceID, before)
	if err != nil {
		return 0, fmt.Errorf("close stale requests: %w", err)
	}
	if n > 0 {
		s.logEvent(ctx, EngineEvent{WorkspaceID: workspaceID, Kind: EventRequestClosed, Message: fmt.Sprintf("stale sweep closed %d", n)})
	}
	return n, nil
}

func (s *Service) logEvent(ctx context.Context, e EngineEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEngineEvent(ctx, e); err != nil {
		s.log.Error("audit append failed", "kind", e.Kind, "request_id", e.RequestID, "err", err)
	}
}
