package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DecisionInput struct {
	RoutingID string
	VendorID  string
	Decision  Decision

	ResponseMessage   string
	EstimatedDelivery *time.Time
}

// RecordDecision appends a vendor's accept/decline to the decision log and
// settles the routing.
//
// The routed -> accepted/declined transition is a single conditional update;
// when two responses race for the same routing, exactly one wins and only the
// winner advances the fallback chain. Accept is terminal for the request;
// decline triggers one RouteNext hop.
func (s *Service) RecordDecision(ctx context.Context, workspaceID string, in DecisionInput) (VendorDecision, error) {
	if workspaceID == "" || in.RoutingID == "" || in.VendorID == "" {
		return VendorDecision{}, ErrInvalidArgument
	}
	if !ValidDecision(in.Decision) {
		return VendorDecision{}, ErrInvalidArgument
	}

	routing, err := s.repo.GetRouting(ctx, workspaceID, in.RoutingID)
	if err != nil {
		return VendorDecision{}, err
	}
	if routing.VendorID != in.VendorID {
		return VendorDecision{}, fmt.Errorf("%w: routing belongs to another vendor", ErrInvalidArgument)
	}
	if routing.Status != RoutingStatusRouted {
		return VendorDecision{}, fmt.Errorf("%w: routing already %s", ErrConflict, routing.Status)
	}

	now := s.clock().UTC()
	decision := VendorDecision{
		ID:                uuid.NewString(),
		WorkspaceID:       workspaceID,
		RoutingID:         in.RoutingID,
		VendorID:          in.VendorID,
		Decision:          in.Decision,
		ResponseMessage:   in.ResponseMessage,
		EstimatedDelivery: in.EstimatedDelivery,
		DecidedAt:         now,
	}

	status := RoutingStatusDeclined
	if in.Decision == DecisionAccept {
		status = RoutingStatusAccepted
	}

	won, err := s.repo.CompleteRouting(ctx, in.RoutingID, status, decision, now)
	if err != nil {
		return VendorDecision{}, fmt.Errorf("complete routing: %w", err)
	}
	if !won {
		// A concurrent response settled this routing first.
		return VendorDecision{}, fmt.Errorf("%w: routing already decided", ErrConflict)
	}

	s.logEvent(ctx, EngineEvent{
		WorkspaceID: workspaceID,
		Kind:        EventVendorDecision,
		RequestID:   routing.RequestID,
		CandidateID: routing.MatchCandidateID,
		RoutingID:   routing.ID,
		VendorID:    in.VendorID,
		Message:     string(in.Decision),
	})

	if in.Decision == DecisionDecline {
		// Declined work frees the vendor's advisory slot; accepted work keeps
		// occupying it until capacity TTLs or external completion.
		s.releaseGuard(ctx, workspaceID, routing.VendorID)

		if _, err := s.RouteNext(ctx, workspaceID, routing.RequestID); err != nil && !errors.Is(err, ErrExhausted) {
			// The decision itself is durable; a fallback failure is logged and
			// left to the next external trigger.
			s.log.Error("fallback routing failed", "request_id", routing.RequestID, "err", err)
		}
	}
	return decision, nil
}
