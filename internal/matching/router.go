package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RouteCandidate promotes one specific candidate to routed (the manual
// routing path). The flip is a single guarded repository operation: it fails
// with ErrConflict when the request is already settled, the candidate is no
// longer pending, or the vendor is at capacity.
func (s *Service) RouteCandidate(ctx context.Context, workspaceID, candidateID string, method RoutingMethod) (MatchRouting, error) {
	if workspaceID == "" || candidateID == "" {
		return MatchRouting{}, ErrInvalidArgument
	}
	if method == "" {
		method = RoutingMethodManual
	}

	cand, err := s.repo.GetCandidate(ctx, workspaceID, candidateID)
	if err != nil {
		return MatchRouting{}, err
	}
	if cand.Status != CandidateStatusPending {
		return MatchRouting{}, fmt.Errorf("%w: candidate already %s", ErrConflict, cand.Status)
	}
	req, err := s.repo.GetRequest(ctx, workspaceID, cand.RequestID)
	if err != nil {
		return MatchRouting{}, err
	}
	// Fulfilled and closed are terminal; an accepted request never grows
	// another routing row, even via manual override.
	if terminalRequestStatus(req.Status) {
		return MatchRouting{}, fmt.Errorf("%w: request already %s", ErrConflict, req.Status)
	}

	routing, ok, err := s.tryRoute(ctx, cand, method)
	if err != nil {
		return MatchRouting{}, err
	}
	if !ok {
		return MatchRouting{}, fmt.Errorf("%w: vendor at capacity or candidate no longer pending", ErrConflict)
	}
	return routing, nil
}

// RouteNext advances the fallback chain for a request: it offers the
// highest-ranked pending candidate whose vendor still has capacity. When no
// candidate can be routed the request is closed and ErrExhausted is returned.
//
// Fallback is iterative. Each decline triggers exactly one RouteNext from the
// decision recorder, so chain depth is bounded by the number of stored
// candidates and every hop leaves an auditable routing row.
func (s *Service) RouteNext(ctx context.Context, workspaceID, requestID string) (MatchRouting, error) {
	if workspaceID == "" || requestID == "" {
		return MatchRouting{}, ErrInvalidArgument
	}
	req, err := s.repo.GetRequest(ctx, workspaceID, requestID)
	if err != nil {
		return MatchRouting{}, err
	}
	if terminalRequestStatus(req.Status) {
		return MatchRouting{}, fmt.Errorf("%w: request already %s", ErrConflict, req.Status)
	}

	pending, err := s.repo.NextPendingCandidates(ctx, workspaceID, requestID)
	if err != nil {
		return MatchRouting{}, fmt.Errorf("list pending candidates: %w", err)
	}

	for _, cand := range pending {
		routing, ok, err := s.tryRoute(ctx, cand, RoutingMethodAutomatic)
		if err != nil {
			return MatchRouting{}, err
		}
		if ok {
			return routing, nil
		}
		// Guard failed (vendor filled up since selection, or a concurrent
		// router won this candidate). Fall through to the next rank.
	}

	// Nothing pending. The request only closes when no routing is still
	// awaiting a vendor response.
	all, err := s.repo.ListCandidates(ctx, workspaceID, requestID)
	if err != nil {
		return MatchRouting{}, fmt.Errorf("list candidates: %w", err)
	}
	for _, cand := range all {
		if cand.Status == CandidateStatusRouted {
			return MatchRouting{}, fmt.Errorf("%w: a routing is already awaiting vendor response", ErrConflict)
		}
		if cand.Status == CandidateStatusAccepted {
			return MatchRouting{}, fmt.Errorf("%w: request already accepted", ErrConflict)
		}
	}

	now := s.clock().UTC()
	if err := s.repo.SetRequestStatus(ctx, workspaceID, requestID, RequestStatusClosed, now); err != nil {
		return MatchRouting{}, fmt.Errorf("close request: %w", err)
	}
	s.logEvent(ctx, EngineEvent{WorkspaceID: workspaceID, Kind: EventRequestClosed, RequestID: requestID, Message: "no routable candidates"})
	return MatchRouting{}, ErrExhausted
}

// tryRoute attempts the atomic pending->routed transition for one candidate
// and, on success, notifies the vendor. Notification is fire-and-forget:
// routing state is the source of truth, so delivery failures are logged and
// left to the external notifier's retries.
func (s *Service) tryRoute(ctx context.Context, cand MatchCandidate, method RoutingMethod) (MatchRouting, bool, error) {
	rule, ok, err := s.rules.GetActiveRuleForVendor(ctx, cand.WorkspaceID, cand.VendorID)
	if err != nil {
		return MatchRouting{}, false, fmt.Errorf("vendor rule: %w", err)
	}
	if !ok {
		// Rule deactivated since selection; this vendor is no longer offerable.
		return MatchRouting{}, false, nil
	}

	if s.guard != nil {
		acquired, err := s.guard.Acquire(ctx, cand.WorkspaceID, cand.VendorID, rule.CapacityLimit)
		if err != nil {
			// Advisory only: a guard outage must not stop routing.
			s.log.Warn("capacity guard unavailable", "vendor_id", cand.VendorID, "err", err)
		} else if !acquired {
			return MatchRouting{}, false, nil
		}
	}

	now := s.clock().UTC()
	routing := MatchRouting{
		ID:               uuid.NewString(),
		WorkspaceID:      cand.WorkspaceID,
		MatchCandidateID: cand.ID,
		RequestID:        cand.RequestID,
		VendorID:         cand.VendorID,
		RoutingMethod:    method,
		RoutedAt:         now,
		Status:           RoutingStatusRouted,
	}

	ok, err = s.repo.RouteCandidate(ctx, routing, rule.CapacityLimit, now)
	if err != nil {
		s.releaseGuard(ctx, cand.WorkspaceID, cand.VendorID)
		return MatchRouting{}, false, fmt.Errorf("route candidate: %w", err)
	}
	if !ok {
		s.releaseGuard(ctx, cand.WorkspaceID, cand.VendorID)
		return MatchRouting{}, false, nil
	}

	s.logEvent(ctx, EngineEvent{
		WorkspaceID: cand.WorkspaceID,
		Kind:        EventMatchRouted,
		RequestID:   cand.RequestID,
		CandidateID: cand.ID,
		RoutingID:   routing.ID,
		VendorID:    cand.VendorID,
		Message:     string(method),
	})
	s.notifyRouted(ctx, cand, routing)
	return routing, true, nil
}

func (s *Service) notifyRouted(ctx context.Context, cand MatchCandidate, routing MatchRouting) {
	if s.notifier == nil {
		return
	}
	offer := Offer{
		WorkspaceID: cand.WorkspaceID,
		RoutingID:   routing.ID,
		RequestID:   cand.RequestID,
		CandidateID: cand.ID,
		VendorID:    cand.VendorID,
		MatchScore:  cand.MatchScore,
		RoutedAt:    routing.RoutedAt,
	}
	if req, err := s.repo.GetRequest(ctx, cand.WorkspaceID, cand.RequestID); err == nil {
		offer.ServiceCategory = req.ServiceCategory
	}
	if profile, ok, err := s.rules.GetProfile(ctx, cand.WorkspaceID, cand.VendorID); err == nil && ok {
		offer.NotifyURL = profile.NotifyURL
	}
	if err := s.notifier.NotifyRouted(ctx, offer); err != nil {
		s.log.Error("vendor notification failed", "routing_id", routing.ID, "vendor_id", cand.VendorID, "err", err)
	}
}

func (s *Service) releaseGuard(ctx context.Context, workspaceID, vendorID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, workspaceID, vendorID); err != nil {
		s.log.Warn("capacity guard release failed", "vendor_id", vendorID, "err", err)
	}
}
