package matching

import (
	"testing"

	"vendormatch-engine/internal/rules"
)

func i64(v int64) *int64 { return &v }

func TestScore_AllBonuses(t *testing.T) {
	req := Request{
		BudgetMinor: i64(500),
		Urgency:     UrgencyHigh,
		Location:    "TX",
	}
	rule := rules.VendorRule{
		PriorityScore:        50,
		MinBudgetMinor:       i64(100),
		MaxBudgetMinor:       i64(1000),
		LocationRestrictions: []string{"TX", "OK"},
	}
	profile := rules.VendorProfile{Rating: 4.8}

	score, reasons := Score(req, rule, profile)
	if score != 95 {
		t.Fatalf("expected 95, got %d", score)
	}
	wantCodes := []ReasonCode{
		ReasonBasePriority,
		ReasonBudgetAboveMin,
		ReasonBudgetWithinMax,
		ReasonLocationMatch,
		ReasonUrgentRequest,
		ReasonHighRating,
	}
	if len(reasons) != len(wantCodes) {
		t.Fatalf("expected %d reasons, got %d: %v", len(wantCodes), len(reasons), reasons)
	}
	for i, code := range wantCodes {
		if reasons[i].Code != code {
			t.Fatalf("reason %d: expected %s, got %s", i, code, reasons[i].Code)
		}
	}
}

func TestScore_DefaultBaseWhenPriorityUnset(t *testing.T) {
	score, reasons := Score(Request{}, rules.VendorRule{}, rules.VendorProfile{})
	if score != 50 {
		t.Fatalf("expected default base 50, got %d", score)
	}
	if len(reasons) != 1 || reasons[0].Code != ReasonBasePriority || reasons[0].Value != "50" {
		t.Fatalf("expected single base reason with value 50, got %v", reasons)
	}
}

func TestScore_NoBudgetIsNeutral(t *testing.T) {
	rule := rules.VendorRule{
		PriorityScore:  60,
		MinBudgetMinor: i64(100),
		MaxBudgetMinor: i64(1000),
	}
	score, _ := Score(Request{}, rule, rules.VendorProfile{})
	if score != 60 {
		t.Fatalf("expected 60 with no budget terms, got %d", score)
	}
}

func TestScore_BudgetOutsideBounds(t *testing.T) {
	rule := rules.VendorRule{
		PriorityScore:  50,
		MinBudgetMinor: i64(1000),
		MaxBudgetMinor: i64(2000),
	}
	// The two bounds are independent terms: a budget below the minimum still
	// sits within the maximum and earns that bonus, and vice versa.
	score, _ := Score(Request{BudgetMinor: i64(500)}, rule, rules.VendorProfile{})
	if score != 60 {
		t.Fatalf("expected within-max bonus only below minimum, got %d", score)
	}
	score, _ = Score(Request{BudgetMinor: i64(5000)}, rule, rules.VendorProfile{})
	if score != 60 {
		t.Fatalf("expected above-min bonus only above maximum, got %d", score)
	}
}

func TestScore_LocationPenalty(t *testing.T) {
	rule := rules.VendorRule{
		PriorityScore:        50,
		LocationRestrictions: []string{"CA"},
	}
	score, reasons := Score(Request{Location: "TX"}, rule, rules.VendorProfile{})
	if score != 30 {
		t.Fatalf("expected 30 after territory penalty, got %d", score)
	}
	found := false
	for _, r := range reasons {
		if r.Code == ReasonLocationMismatch && r.Value == "TX" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected location mismatch reason, got %v", reasons)
	}
}

func TestScore_NoLocationTermWithoutRestrictionsOrLocation(t *testing.T) {
	restricted := rules.VendorRule{PriorityScore: 50, LocationRestrictions: []string{"CA"}}
	score, _ := Score(Request{}, restricted, rules.VendorProfile{})
	if score != 50 {
		t.Fatalf("expected no penalty for request without location, got %d", score)
	}
	open := rules.VendorRule{PriorityScore: 50}
	score, _ = Score(Request{Location: "TX"}, open, rules.VendorProfile{})
	if score != 50 {
		t.Fatalf("expected no location term for unrestricted vendor, got %d", score)
	}
}

func TestScore_RatingBonusRequiresAboveFloor(t *testing.T) {
	score, _ := Score(Request{}, rules.VendorRule{PriorityScore: 50}, rules.VendorProfile{Rating: 4.0})
	if score != 50 {
		t.Fatalf("rating at the floor should not earn a bonus, got %d", score)
	}
	score, _ = Score(Request{}, rules.VendorRule{PriorityScore: 50}, rules.VendorProfile{Rating: 4.1})
	if score != 55 {
		t.Fatalf("expected rating bonus above floor, got %d", score)
	}
}

func TestScore_ClampsToRange(t *testing.T) {
	high := rules.VendorRule{
		PriorityScore:        95,
		MinBudgetMinor:       i64(0),
		MaxBudgetMinor:       i64(1000),
		LocationRestrictions: []string{"TX"},
	}
	score, _ := Score(Request{BudgetMinor: i64(500), Urgency: UrgencyHigh, Location: "TX"}, high, rules.VendorProfile{Rating: 5})
	if score != 100 {
		t.Fatalf("expected clamp to 100, got %d", score)
	}

	low := rules.VendorRule{PriorityScore: 10, LocationRestrictions: []string{"CA"}}
	score, _ = Score(Request{Location: "TX"}, low, rules.VendorProfile{})
	if score != 0 {
		t.Fatalf("expected clamp to 0, got %d", score)
	}
}

func TestReasonRender(t *testing.T) {
	r := Reason{Code: ReasonLocationMatch, Value: "TX"}
	if got := r.Render(); got != "vendor serves location TX" {
		t.Fatalf("unexpected rendering: %q", got)
	}
	unknown := Reason{Code: ReasonCode("mystery")}
	if got := unknown.Render(); got != "mystery" {
		t.Fatalf("unknown codes should render as-is, got %q", got)
	}
}
