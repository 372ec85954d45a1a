package matching

import (
	"fmt"

	"vendormatch-engine/internal/rules"
)

// Scoring weights. Keep these stable; callers and dashboards interpret scores
// relative to them.
const (
	defaultBasePriority = 50

	budgetMinBonus  = 10
	budgetMaxBonus  = 10
	locationBonus   = 15
	locationPenalty = 20
	urgencyBonus    = 5
	reputationBonus = 5
	reputationFloor = 4.0

	// MinEligibleScore is the minimum-fit threshold; candidates below it are
	// never persisted.
	MinEligibleScore = 40

	maxScore = 100
)

// Reason is a structured explanation for a score term.
// Rendering to display strings happens only at the HTTP boundary so the
// matching logic stays testable by structure, not string content.
type Reason struct {
	Code  ReasonCode `json:"code"`
	Value string     `json:"value,omitempty"`
}

type ReasonCode string

const (
	ReasonBasePriority     ReasonCode = "base_priority"
	ReasonBudgetAboveMin   ReasonCode = "budget_above_min"
	ReasonBudgetWithinMax  ReasonCode = "budget_within_max"
	ReasonLocationMatch    ReasonCode = "location_match"
	ReasonLocationMismatch ReasonCode = "location_mismatch"
	ReasonUrgentRequest    ReasonCode = "urgent_request"
	ReasonHighRating       ReasonCode = "high_rating"
)

// Render converts a structured reason into a human-readable string.
func (r Reason) Render() string {
	switch r.Code {
	case ReasonBasePriority:
		return fmt.Sprintf("vendor base priority %s", r.Value)
	case ReasonBudgetAboveMin:
		return "budget meets vendor minimum"
	case ReasonBudgetWithinMax:
		return "budget within vendor maximum"
	case ReasonLocationMatch:
		return fmt.Sprintf("vendor serves location %s", r.Value)
	case ReasonLocationMismatch:
		return fmt.Sprintf("location %s outside vendor territory", r.Value)
	case ReasonUrgentRequest:
		return "urgent request bonus"
	case ReasonHighRating:
		return fmt.Sprintf("vendor rating %s", r.Value)
	default:
		return string(r.Code)
	}
}

// Score computes the match score for one request/rule pair.
//
// Pure function: no I/O, no side effects. Terms are applied independently and
// summed; the result is clamped to [0, maxScore]. Eligibility (threshold and
// live capacity) is decided by the selector, not here.
func Score(req Request, rule rules.VendorRule, profile rules.VendorProfile) (int, []Reason) {
	base := rule.PriorityScore
	if base == 0 {
		base = defaultBasePriority
	}
	score := base
	reasons := []Reason{{Code: ReasonBasePriority, Value: fmt.Sprintf("%d", base)}}

	// Budget bounds. A request without a budget is neither rewarded nor
	// penalized.
	if req.BudgetMinor != nil {
		if rule.MinBudgetMinor != nil && *req.BudgetMinor >= *rule.MinBudgetMinor {
			score += budgetMinBonus
			reasons = append(reasons, Reason{Code: ReasonBudgetAboveMin})
		}
		if rule.MaxBudgetMinor != nil && *req.BudgetMinor <= *rule.MaxBudgetMinor {
			score += budgetMaxBonus
			reasons = append(reasons, Reason{Code: ReasonBudgetWithinMax})
		}
	}

	// Territory. An out-of-territory vendor is an explicitly poor fit, not a
	// neutral one, hence the penalty rather than a missing bonus.
	if len(rule.LocationRestrictions) > 0 && req.Location != "" {
		if containsString(rule.LocationRestrictions, req.Location) {
			score += locationBonus
			reasons = append(reasons, Reason{Code: ReasonLocationMatch, Value: req.Location})
		} else {
			score -= locationPenalty
			reasons = append(reasons, Reason{Code: ReasonLocationMismatch, Value: req.Location})
		}
	}

	// Urgent work should reach any willing vendor sooner.
	if req.Urgency == UrgencyHigh {
		score += urgencyBonus
		reasons = append(reasons, Reason{Code: ReasonUrgentRequest})
	}

	if profile.Rating > reputationFloor {
		score += reputationBonus
		reasons = append(reasons, Reason{Code: ReasonHighRating, Value: fmt.Sprintf("%.1f", profile.Rating)})
	}

	if score < 0 {
		score = 0
	}
	if score > maxScore {
		score = maxScore
	}
	return score, reasons
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
