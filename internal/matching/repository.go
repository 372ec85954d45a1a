package matching

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vendormatch-engine/pkg/utils"
)

// PostgresRepo implements Repository on Postgres.
//
// Assumed tables:
// - requests
// - match_candidates          UNIQUE (request_id, vendor_id)
// - match_routings
// - vendor_decisions          (append-only)
//
// Race-closing operations (RouteCandidate, CompleteRouting) run inside a
// transaction; per-vendor capacity is serialized with a transaction-scoped
// advisory lock so the in-flight count and the candidate flip act as one
// atomic conditional write.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) InsertRequest(ctx context.Context, req Request) error {
	const q = `
INSERT INTO requests (
  id, workspace_id, agent_id, service_category, budget_minor, urgency,
  location, requirements, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	reqs, err := json.Marshal(req.Requirements)
	if err != nil {
		return fmt.Errorf("encode requirements: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q,
		req.ID,
		req.WorkspaceID,
		req.AgentID,
		req.ServiceCategory,
		nullableInt64(req.BudgetMinor),
		req.Urgency,
		req.Location,
		reqs,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) GetRequest(ctx context.Context, workspaceID, requestID string) (Request, error) {
	const q = `
SELECT id, workspace_id, agent_id, service_category, budget_minor, urgency,
       location, requirements, status, created_at, updated_at
FROM requests
WHERE workspace_id = $1 AND id = $2
`
	return scanRequest(r.db.QueryRowContext(ctx, q, workspaceID, requestID))
}

func (r *PostgresRepo) SetRequestStatus(ctx context.Context, workspaceID, requestID string, status RequestStatus, now time.Time) error {
	const q = `
UPDATE requests SET status = $3, updated_at = $4
WHERE workspace_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, workspaceID, requestID, status, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) InsertCandidates(ctx context.Context, cands []MatchCandidate) error {
	const q = `
INSERT INTO match_candidates (
  id, workspace_id, request_id, vendor_id, match_score, selection_rank, match_reasons, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (request_id, vendor_id) DO NOTHING
`
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, c := range cands {
			reasons, err := json.Marshal(c.MatchReasons)
			if err != nil {
				return fmt.Errorf("encode match_reasons: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q,
				c.ID, c.WorkspaceID, c.RequestID, c.VendorID, c.MatchScore, c.Rank, reasons, c.Status, c.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

const candidateColumns = `
SELECT id, workspace_id, request_id, vendor_id, match_score, selection_rank, match_reasons, status, created_at
FROM match_candidates
`

func (r *PostgresRepo) ListCandidates(ctx context.Context, workspaceID, requestID string) ([]MatchCandidate, error) {
	q := candidateColumns + `
WHERE workspace_id = $1 AND request_id = $2
ORDER BY selection_rank ASC, vendor_id ASC
`
	return r.queryCandidates(ctx, q, workspaceID, requestID)
}

func (r *PostgresRepo) GetCandidate(ctx context.Context, workspaceID, candidateID string) (MatchCandidate, error) {
	q := candidateColumns + `
WHERE workspace_id = $1 AND id = $2
`
	c, err := scanCandidate(r.db.QueryRowContext(ctx, q, workspaceID, candidateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MatchCandidate{}, ErrNotFound
		}
		return MatchCandidate{}, err
	}
	return c, nil
}

func (r *PostgresRepo) NextPendingCandidates(ctx context.Context, workspaceID, requestID string) ([]MatchCandidate, error) {
	q := candidateColumns + `
WHERE workspace_id = $1 AND request_id = $2 AND status = 'pending'
ORDER BY selection_rank ASC, vendor_id ASC
`
	return r.queryCandidates(ctx, q, workspaceID, requestID)
}

func (r *PostgresRepo) VendorInFlight(ctx context.Context, workspaceID, vendorID string) (int, error) {
	const q = `
SELECT COUNT(*) FROM match_candidates
WHERE workspace_id = $1 AND vendor_id = $2 AND status IN ('routed','accepted')
`
	var n int
	if err := r.db.QueryRowContext(ctx, q, workspaceID, vendorID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) RouteCandidate(ctx context.Context, routing MatchRouting, capacityLimit int, now time.Time) (bool, error) {
	routed := false
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Serialize capacity evaluation per vendor for the duration of this tx.
		const lockQ = `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`
		if _, err := tx.ExecContext(ctx, lockQ, routing.WorkspaceID, routing.VendorID); err != nil {
			return err
		}

		const flipQ = `
UPDATE match_candidates c
SET status = 'routed'
WHERE c.workspace_id = $1 AND c.id = $2 AND c.status = 'pending'
  AND (
    SELECT COUNT(*) FROM match_candidates v
    WHERE v.workspace_id = c.workspace_id
      AND v.vendor_id = c.vendor_id
      AND v.status IN ('routed','accepted')
  ) < $3
`
		res, err := tx.ExecContext(ctx, flipQ, routing.WorkspaceID, routing.MatchCandidateID, capacityLimit)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		const insertQ = `
INSERT INTO match_routings (
  id, workspace_id, match_candidate_id, request_id, vendor_id,
  routing_method, routed_at, vendor_response_at, status
) VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,$8)
`
		if _, err := tx.ExecContext(ctx, insertQ,
			routing.ID,
			routing.WorkspaceID,
			routing.MatchCandidateID,
			routing.RequestID,
			routing.VendorID,
			routing.RoutingMethod,
			routing.RoutedAt,
			routing.Status,
		); err != nil {
			return err
		}

		const reqQ = `
UPDATE requests SET status = 'routed', updated_at = $3
WHERE workspace_id = $1 AND id = $2
`
		if _, err := tx.ExecContext(ctx, reqQ, routing.WorkspaceID, routing.RequestID, now); err != nil {
			return err
		}
		routed = true
		return nil
	})
	return routed, err
}

func (r *PostgresRepo) GetRouting(ctx context.Context, workspaceID, routingID string) (MatchRouting, error) {
	const q = `
SELECT id, workspace_id, match_candidate_id, request_id, vendor_id,
       routing_method, routed_at, vendor_response_at, status
FROM match_routings
WHERE workspace_id = $1 AND id = $2
`
	rt, err := scanRouting(r.db.QueryRowContext(ctx, q, workspaceID, routingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MatchRouting{}, ErrNotFound
		}
		return MatchRouting{}, err
	}
	return rt, nil
}

func (r *PostgresRepo) CompleteRouting(ctx context.Context, routingID string, status RoutingStatus, decision VendorDecision, now time.Time) (bool, error) {
	won := false
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// One-shot transition: only the caller that flips routed -> decided
		// proceeds to write the dependent rows.
		const settleQ = `
UPDATE match_routings
SET status = $3, vendor_response_at = $4
WHERE workspace_id = $1 AND id = $2 AND status = 'routed'
RETURNING match_candidate_id, request_id
`
		var candidateID, requestID string
		err := tx.QueryRowContext(ctx, settleQ, decision.WorkspaceID, routingID, status, now).Scan(&candidateID, &requestID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		const decisionQ = `
INSERT INTO vendor_decisions (
  id, workspace_id, routing_id, vendor_id, decision,
  response_message, estimated_delivery, decided_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
		if _, err := tx.ExecContext(ctx, decisionQ,
			decision.ID,
			decision.WorkspaceID,
			decision.RoutingID,
			decision.VendorID,
			decision.Decision,
			decision.ResponseMessage,
			decision.EstimatedDelivery,
			decision.DecidedAt,
		); err != nil {
			return err
		}

		candStatus := CandidateStatusDeclined
		if status == RoutingStatusAccepted {
			candStatus = CandidateStatusAccepted
		}
		const candQ = `
UPDATE match_candidates SET status = $3
WHERE workspace_id = $1 AND id = $2
`
		if _, err := tx.ExecContext(ctx, candQ, decision.WorkspaceID, candidateID, candStatus); err != nil {
			return err
		}

		if status == RoutingStatusAccepted {
			const reqQ = `
UPDATE requests SET status = 'fulfilled', updated_at = $3
WHERE workspace_id = $1 AND id = $2
`
			if _, err := tx.ExecContext(ctx, reqQ, decision.WorkspaceID, requestID, now); err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	return won, err
}

func (r *PostgresRepo) ListRoutingsForRequest(ctx context.Context, workspaceID, requestID string) ([]MatchRouting, error) {
	const q = `
SELECT id, workspace_id, match_candidate_id, request_id, vendor_id,
       routing_method, routed_at, vendor_response_at, status
FROM match_routings
WHERE workspace_id = $1 AND request_id = $2
ORDER BY routed_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchRouting
	for rows.Next() {
		rt, err := scanRouting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListDecisionsForRouting(ctx context.Context, workspaceID, routingID string) ([]VendorDecision, error) {
	const q = `
SELECT id, workspace_id, routing_id, vendor_id, decision,
       response_message, estimated_delivery, decided_at
FROM vendor_decisions
WHERE workspace_id = $1 AND routing_id = $2
ORDER BY decided_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, routingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VendorDecision
	for rows.Next() {
		var (
			d   VendorDecision
			eta sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.RoutingID, &d.VendorID, &d.Decision, &d.ResponseMessage, &eta, &d.DecidedAt); err != nil {
			return nil, err
		}
		if eta.Valid {
			t := eta.Time
			d.EstimatedDelivery = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CloseStaleRequests(ctx context.Context, workspaceID string, before time.Time) (int, error) {
	const q = `
UPDATE requests
SET status = 'closed', updated_at = NOW()
WHERE workspace_id = $1
  AND status IN ('pending','routed')
  AND updated_at < $2
`
	res, err := r.db.ExecContext(ctx, q, workspaceID, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresRepo) queryCandidates(ctx context.Context, q, workspaceID, requestID string) ([]MatchCandidate, error) {
	rows, err := r.db.QueryContext(ctx, q, workspaceID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var (
		req    Request
		budget sql.NullInt64
		reqs   []byte
	)
	if err := row.Scan(
		&req.ID,
		&req.WorkspaceID,
		&req.AgentID,
		&req.ServiceCategory,
		&budget,
		&req.Urgency,
		&req.Location,
		&reqs,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	if budget.Valid {
		v := budget.Int64
		req.BudgetMinor = &v
	}
	if len(reqs) > 0 {
		if err := json.Unmarshal(reqs, &req.Requirements); err != nil {
			return Request{}, fmt.Errorf("decode requirements: %w", err)
		}
	}
	return req, nil
}

func scanCandidate(row rowScanner) (MatchCandidate, error) {
	var (
		c       MatchCandidate
		reasons []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.WorkspaceID,
		&c.RequestID,
		&c.VendorID,
		&c.MatchScore,
		&c.Rank,
		&reasons,
		&c.Status,
		&c.CreatedAt,
	); err != nil {
		return MatchCandidate{}, err
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &c.MatchReasons); err != nil {
			return MatchCandidate{}, fmt.Errorf("decode match_reasons: %w", err)
		}
	}
	return c, nil
}

func scanRouting(row rowScanner) (MatchRouting, error) {
	var (
		rt       MatchRouting
		response sql.NullTime
	)
	if err := row.Scan(
		&rt.ID,
		&rt.WorkspaceID,
		&rt.MatchCandidateID,
		&rt.RequestID,
		&rt.VendorID,
		&rt.RoutingMethod,
		&rt.RoutedAt,
		&response,
		&rt.Status,
	); err != nil {
		return MatchRouting{}, err
	}
	if response.Valid {
		t := response.Time
		rt.VendorResponseAt = &t
	}
	return rt, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
