package rules

import "time"

// VendorRule is a vendor's matching policy. Rules are owned and edited by
// vendor-management tooling; this engine only reads active rules.
//
// Multi-tenant invariant: workspace_id is required on every row.
type VendorRule struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	VendorID    string `json:"vendor_id" db:"vendor_id"`

	// ServiceCategories is the set of categories this vendor serves.
	// Stored as JSONB.
	ServiceCategories []string `json:"service_categories" db:"service_categories"`

	// Budget bounds in minor units; nil means unbounded on that side.
	MinBudgetMinor *int64 `json:"min_budget_minor,omitempty" db:"min_budget_minor"`
	MaxBudgetMinor *int64 `json:"max_budget_minor,omitempty" db:"max_budget_minor"`

	// LocationRestrictions is the vendor's territory. Empty means the vendor
	// serves everywhere.
	LocationRestrictions []string `json:"location_restrictions,omitempty" db:"location_restrictions"`

	// CapacityLimit bounds simultaneously active (routed/accepted) candidates.
	// Must be >= 1.
	CapacityLimit int `json:"capacity_limit" db:"capacity_limit"`

	// PriorityScore is the base weight for scoring.
	PriorityScore int `json:"priority_score" db:"priority_score"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ServesCategory reports whether the rule covers a service category.
func (r VendorRule) ServesCategory(category string) bool {
	for _, c := range r.ServiceCategories {
		if c == category {
			return true
		}
	}
	return false
}

// VendorProfile carries vendor metadata the scorer and notifier consume.
// Profile data is maintained by external vendor tooling.
type VendorProfile struct {
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	VendorID    string `json:"vendor_id" db:"vendor_id"`

	DisplayName string `json:"display_name" db:"display_name"`

	// Rating is the vendor's average review score (0-5).
	Rating float64 `json:"rating" db:"rating"`

	// NotifyURL is an optional webhook endpoint for routing offers.
	NotifyURL string `json:"notify_url,omitempty" db:"notify_url"`
}
