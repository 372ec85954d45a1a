// Package notify holds the vendor-facing notification adapters.
//
// Rules:
// - No delivery mechanics outside this package.
// - Delivery is best-effort: the routing state in the store is the source of
//   truth, and retries belong to the external notification system.
package notify

import (
	"context"
	"log/slog"

	"vendormatch-engine/internal/matching"
)

// LogNotifier records routed offers to the structured log. Useful for local
// environments and as the fallback when a vendor has no webhook configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) NotifyRouted(ctx context.Context, offer matching.Offer) error {
	_ = ctx
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("vendor offer routed",
		"workspace_id", offer.WorkspaceID,
		"routing_id", offer.RoutingID,
		"request_id", offer.RequestID,
		"vendor_id", offer.VendorID,
		"match_score", offer.MatchScore,
	)
	return nil
}
