package matching

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests and early
// development. All guarded operations run under one mutex, giving the same
// atomicity the Postgres implementation gets from guarded statements.
//
// NOTE: Not intended for production; state does not survive the process.
type MemoryRepo struct {
	mu sync.Mutex

	requests   map[string]Request
	candidates map[string]MatchCandidate
	routings   map[string]MatchRouting
	decisions  []VendorDecision
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		requests:   make(map[string]Request),
		candidates: make(map[string]MatchCandidate),
		routings:   make(map[string]MatchRouting),
	}
}

func (r *MemoryRepo) InsertRequest(ctx context.Context, req Request) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	return nil
}

func (r *MemoryRepo) GetRequest(ctx context.Context, workspaceID, requestID string) (Request, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok || req.WorkspaceID != workspaceID {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *MemoryRepo) SetRequestStatus(ctx context.Context, workspaceID, requestID string, status RequestStatus, now time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok || req.WorkspaceID != workspaceID {
		return ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = now
	r.requests[requestID] = req
	return nil
}

func (r *MemoryRepo) InsertCandidates(ctx context.Context, cands []MatchCandidate) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cands {
		r.candidates[c.ID] = c
	}
	return nil
}

func (r *MemoryRepo) ListCandidates(ctx context.Context, workspaceID, requestID string) ([]MatchCandidate, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidatesLocked(workspaceID, requestID, ""), nil
}

func (r *MemoryRepo) GetCandidate(ctx context.Context, workspaceID, candidateID string) (MatchCandidate, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[candidateID]
	if !ok || c.WorkspaceID != workspaceID {
		return MatchCandidate{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) NextPendingCandidates(ctx context.Context, workspaceID, requestID string) ([]MatchCandidate, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidatesLocked(workspaceID, requestID, CandidateStatusPending), nil
}

// candidatesLocked returns candidates in selection-rank order.
func (r *MemoryRepo) candidatesLocked(workspaceID, requestID string, status CandidateStatus) []MatchCandidate {
	var out []MatchCandidate
	for _, c := range r.candidates {
		if c.WorkspaceID != workspaceID || c.RequestID != requestID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		if out[i].MatchScore != out[j].MatchScore {
			return out[i].MatchScore > out[j].MatchScore
		}
		return out[i].VendorID < out[j].VendorID
	})
	return out
}

func (r *MemoryRepo) VendorInFlight(ctx context.Context, workspaceID, vendorID string) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vendorInFlightLocked(workspaceID, vendorID), nil
}

func (r *MemoryRepo) vendorInFlightLocked(workspaceID, vendorID string) int {
	n := 0
	for _, c := range r.candidates {
		if c.WorkspaceID != workspaceID || c.VendorID != vendorID {
			continue
		}
		if c.Status == CandidateStatusRouted || c.Status == CandidateStatusAccepted {
			n++
		}
	}
	return n
}

func (r *MemoryRepo) RouteCandidate(ctx context.Context, routing MatchRouting, capacityLimit int, now time.Time) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	cand, ok := r.candidates[routing.MatchCandidateID]
	if !ok || cand.WorkspaceID != routing.WorkspaceID {
		return false, ErrNotFound
	}
	if cand.Status != CandidateStatusPending {
		return false, nil
	}
	if r.vendorInFlightLocked(routing.WorkspaceID, routing.VendorID) >= capacityLimit {
		return false, nil
	}

	cand.Status = CandidateStatusRouted
	r.candidates[cand.ID] = cand
	r.routings[routing.ID] = routing

	req, ok := r.requests[routing.RequestID]
	if ok {
		req.Status = RequestStatusRouted
		req.UpdatedAt = now
		r.requests[req.ID] = req
	}
	return true, nil
}

func (r *MemoryRepo) GetRouting(ctx context.Context, workspaceID, routingID string) (MatchRouting, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routings[routingID]
	if !ok || rt.WorkspaceID != workspaceID {
		return MatchRouting{}, ErrNotFound
	}
	return rt, nil
}

func (r *MemoryRepo) CompleteRouting(ctx context.Context, routingID string, status RoutingStatus, decision VendorDecision, now time.Time) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.routings[routingID]
	if !ok || rt.WorkspaceID != decision.WorkspaceID {
		return false, ErrNotFound
	}
	if rt.Status != RoutingStatusRouted {
		return false, nil
	}

	rt.Status = status
	rt.VendorResponseAt = &now
	r.routings[routingID] = rt
	r.decisions = append(r.decisions, decision)

	if cand, ok := r.candidates[rt.MatchCandidateID]; ok {
		if status == RoutingStatusAccepted {
			cand.Status = CandidateStatusAccepted
		} else {
			cand.Status = CandidateStatusDeclined
		}
		r.candidates[cand.ID] = cand
	}
	if status == RoutingStatusAccepted {
		if req, ok := r.requests[rt.RequestID]; ok {
			req.Status = RequestStatusFulfilled
			req.UpdatedAt = now
			r.requests[req.ID] = req
		}
	}
	return true, nil
}

func (r *MemoryRepo) ListRoutingsForRequest(ctx context.Context, workspaceID, requestID string) ([]MatchRouting, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MatchRouting
	for _, rt := range r.routings {
		if rt.WorkspaceID == workspaceID && rt.RequestID == requestID {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoutedAt.Before(out[j].RoutedAt) })
	return out, nil
}

func (r *MemoryRepo) ListDecisionsForRouting(ctx context.Context, workspaceID, routingID string) ([]VendorDecision, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []VendorDecision
	for _, d := range r.decisions {
		if d.WorkspaceID == workspaceID && d.RoutingID == routingID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryRepo) CloseStaleRequests(ctx context.Context, workspaceID string, before time.Time) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, req := range r.requests {
		if req.WorkspaceID != workspaceID {
			continue
		}
		if req.Status != RequestStatusPending && req.Status != RequestStatusRouted {
			continue
		}
		if !req.UpdatedAt.Before(before) {
			continue
		}
		req.Status = RequestStatusClosed
		req.UpdatedAt = before
		r.requests[id] = req
		n++
	}
	return n, nil
}
