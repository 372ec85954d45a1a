package matching

import (
	"context"
	"fmt"
	"sort"

	"vendormatch-engine/internal/rules"

	"github.com/google/uuid"
)

// selectAndStore evaluates all active rules serving the request's category,
// ranks the eligible vendors, persists the top-K as pending candidates, and
// settles the request status (matched, or closed when nothing fits).
//
// Ordering is deterministic: score desc, then rule priority desc, then vendor
// id asc. Re-running selection with unchanged rules and capacity yields the
// same order.
func (s *Service) selectAndStore(ctx context.Context, req Request) ([]MatchCandidate, error) {
	now := s.clock().UTC()

	ruleSet, err := s.rules.ListActiveByCategory(ctx, req.WorkspaceID, req.ServiceCategory)
	if err != nil {
		return nil, fmt.Errorf("load vendor rules: %w", err)
	}

	type scored struct {
		rule    rules.VendorRule
		score   int
		reasons []Reason
	}
	var eligible []scored

	for _, rule := range ruleSet {
		if rule.CapacityLimit < 1 {
			continue
		}
		// Capacity pre-filter. This read is advisory; the authoritative check
		// is the guarded write at routing time.
		inFlight, err := s.repo.VendorInFlight(ctx, req.WorkspaceID, rule.VendorID)
		if err != nil {
			return nil, fmt.Errorf("vendor in-flight count: %w", err)
		}
		if inFlight >= rule.CapacityLimit {
			continue
		}

		profile, _, err := s.rules.GetProfile(ctx, req.WorkspaceID, rule.VendorID)
		if err != nil {
			return nil, fmt.Errorf("vendor profile: %w", err)
		}

		score, reasons := Score(req, rule, profile)
		if score < s.minScore {
			continue
		}
		eligible = append(eligible, scored{rule: rule, score: score, reasons: reasons})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		if eligible[i].rule.PriorityScore != eligible[j].rule.PriorityScore {
			return eligible[i].rule.PriorityScore > eligible[j].rule.PriorityScore
		}
		return eligible[i].rule.VendorID < eligible[j].rule.VendorID
	})

	if len(eligible) == 0 {
		if err := s.repo.SetRequestStatus(ctx, req.WorkspaceID, req.ID, RequestStatusClosed, now); err != nil {
			return nil, fmt.Errorf("close request: %w", err)
		}
		s.logEvent(ctx, EngineEvent{WorkspaceID: req.WorkspaceID, Kind: EventRequestClosed, RequestID: req.ID, Message: "no eligible vendors"})
		return nil, nil
	}

	top := eligible
	if len(top) > s.topK {
		top = top[:s.topK]
	}
	cands := make([]MatchCandidate, 0, len(top))
	for i, e := range top {
		cands = append(cands, MatchCandidate{
			ID:           uuid.NewString(),
			WorkspaceID:  req.WorkspaceID,
			RequestID:    req.ID,
			VendorID:     e.rule.VendorID,
			MatchScore:   e.score,
			Rank:         i,
			MatchReasons: e.reasons,
			Status:       CandidateStatusPending,
			CreatedAt:    now,
		})
	}
	if err := s.repo.InsertCandidates(ctx, cands); err != nil {
		return nil, fmt.Errorf("insert candidates: %w", err)
	}
	if err := s.repo.SetRequestStatus(ctx, req.WorkspaceID, req.ID, RequestStatusMatched, now); err != nil {
		return nil, fmt.Errorf("mark request matched: %w", err)
	}
	s.logEvent(ctx, EngineEvent{
		WorkspaceID: req.WorkspaceID,
		Kind:        EventCandidatesSelected,
		RequestID:   req.ID,
		Message:     fmt.Sprintf("%d of %d eligible stored", len(cands), len(eligible)),
	})
	return cands, nil
}
