package rules

import "context"

// MemoryRepo is a simple in-memory rule store useful for tests and early
// development. It is not intended for production use.
type MemoryRepo struct {
	Rules    []VendorRule
	Profiles []VendorProfile
}

func (r *MemoryRepo) ListActiveByCategory(ctx context.Context, workspaceID, category string) ([]VendorRule, error) {
	_ = ctx
	var out []VendorRule
	for _, rule := range r.Rules {
		if rule.WorkspaceID != workspaceID {
			continue
		}
		if !rule.IsActive {
			continue
		}
		if !rule.ServesCategory(category) {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *MemoryRepo) GetActiveRuleForVendor(ctx context.Context, workspaceID, vendorID string) (VendorRule, bool, error) {
	_ = ctx
	for _, rule := range r.Rules {
		if rule.WorkspaceID == workspaceID && rule.VendorID == vendorID && rule.IsActive {
			return rule, true, nil
		}
	}
	return VendorRule{}, false, nil
}

func (r *MemoryRepo) GetProfile(ctx context.Context, workspaceID, vendorID string) (VendorProfile, bool, error) {
	_ = ctx
	for _, p := range r.Profiles {
		if p.WorkspaceID == workspaceID && p.VendorID == vendorID {
			return p, true, nil
		}
	}
	return VendorProfile{}, false, nil
}
