package matching

import (
	"context"

	"vendormatch-engine/internal/audit"
)

// AuditAdapter bridges the engine's event hook to the shared audit.Service.
//
// This keeps matching internals from depending on persistence or on any
// user-facing surface.

type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) LogEngineEvent(ctx context.Context, e EngineEvent) error {
	if a.Audit == nil {
		return nil
	}
	return a.Audit.Append(ctx, audit.Event{
		WorkspaceID: e.WorkspaceID,
		Type:        audit.EventType(e.Kind),
		RequestID:   e.RequestID,
		CandidateID: e.CandidateID,
		RoutingID:   e.RoutingID,
		VendorID:    e.VendorID,
		Message:     e.Message,
	})
}
