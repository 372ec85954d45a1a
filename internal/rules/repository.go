package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Repository is the read-only persistence contract for vendor rules and
// profiles. The engine never writes these tables; vendor-management tooling
// owns them.
type Repository interface {
	// ListActiveByCategory returns all active rules whose category set
	// contains the given category.
	ListActiveByCategory(ctx context.Context, workspaceID, category string) ([]VendorRule, error)

	// GetActiveRuleForVendor returns the vendor's active rule, if any.
	GetActiveRuleForVendor(ctx context.Context, workspaceID, vendorID string) (VendorRule, bool, error)

	// GetProfile returns vendor metadata; ok=false when the vendor has no
	// profile row (scoring then treats rating as zero).
	GetProfile(ctx context.Context, workspaceID, vendorID string) (VendorProfile, bool, error)
}

// PostgresRepo reads vendor rules from Postgres.
//
// Set-valued columns (service_categories, location_restrictions) are JSONB;
// category membership uses the JSONB containment operator so the filter runs
// in the store rather than in application code.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListActiveByCategory(ctx context.Context, workspaceID, category string) ([]VendorRule, error) {
	const q = `
SELECT id, workspace_id, vendor_id, service_categories, min_budget_minor, max_budget_minor,
       location_restrictions, capacity_limit, priority_score, is_active, created_at, updated_at
FROM vendor_rules
WHERE workspace_id = $1
  AND is_active = TRUE
  AND service_categories @> to_jsonb($2::text)
ORDER BY vendor_id
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, category)
	if err != nil {
		return nil, fmt.Errorf("list vendor rules: %w", err)
	}
	defer rows.Close()

	var out []VendorRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetActiveRuleForVendor(ctx context.Context, workspaceID, vendorID string) (VendorRule, bool, error) {
	const q = `
SELECT id, workspace_id, vendor_id, service_categories, min_budget_minor, max_budget_minor,
       location_restrictions, capacity_limit, priority_score, is_active, created_at, updated_at
FROM vendor_rules
WHERE workspace_id = $1 AND vendor_id = $2 AND is_active = TRUE
LIMIT 1
`
	row := r.db.QueryRowContext(ctx, q, workspaceID, vendorID)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VendorRule{}, false, nil
		}
		return VendorRule{}, false, err
	}
	return rule, true, nil
}

func (r *PostgresRepo) GetProfile(ctx context.Context, workspaceID, vendorID string) (VendorProfile, bool, error) {
	const q = `
SELECT workspace_id, vendor_id, display_name, rating, COALESCE(notify_url, '')
FROM vendor_profiles
WHERE workspace_id = $1 AND vendor_id = $2
`
	var p VendorProfile
	err := r.db.QueryRowContext(ctx, q, workspaceID, vendorID).Scan(
		&p.WorkspaceID,
		&p.VendorID,
		&p.DisplayName,
		&p.Rating,
		&p.NotifyURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VendorProfile{}, false, nil
		}
		return VendorProfile{}, false, fmt.Errorf("get vendor profile: %w", err)
	}
	return p, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (VendorRule, error) {
	var (
		rule       VendorRule
		categories []byte
		locations  []byte
		minBudget  sql.NullInt64
		maxBudget  sql.NullInt64
	)
	if err := row.Scan(
		&rule.ID,
		&rule.WorkspaceID,
		&rule.VendorID,
		&categories,
		&minBudget,
		&maxBudget,
		&locations,
		&rule.CapacityLimit,
		&rule.PriorityScore,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return VendorRule{}, err
	}
	if err := json.Unmarshal(categories, &rule.ServiceCategories); err != nil {
		return VendorRule{}, fmt.Errorf("decode service_categories: %w", err)
	}
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &rule.LocationRestrictions); err != nil {
			return VendorRule{}, fmt.Errorf("decode location_restrictions: %w", err)
		}
	}
	if minBudget.Valid {
		v := minBudget.Int64
		rule.MinBudgetMinor = &v
	}
	if maxBudget.Valid {
		v := maxBudget.Int64
		rule.MaxBudgetMinor = &v
	}
	return rule, nil
}
