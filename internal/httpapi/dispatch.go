package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"vendormatch-engine/internal/auth"
	"vendormatch-engine/internal/matching"
	"vendormatch-engine/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Engine actions. The engine exposes a single dispatch endpoint; the envelope
// carries the action name plus action-specific fields.
const (
	actionCreateRequest    = "create_request"
	actionFindMatches      = "find_matches"
	actionRouteToVendor    = "route_to_vendor"
	actionVendorDecision   = "vendor_decision"
	actionGetRequestStatus = "get_request_status"
)

// actionRoles maps each action to the roles allowed to invoke it. Super admin
// bypasses; the hidden market_operator role is granted routing control only.
var actionRoles = map[string][]string{
	actionCreateRequest:    {rbac.RoleOwner, rbac.RoleAgent},
	actionFindMatches:      {rbac.RoleOwner, rbac.RoleAgent, rbac.RoleAnalyst},
	actionRouteToVendor:    {rbac.RoleOwner, rbac.RoleMarketOperator},
	actionVendorDecision:   {rbac.RoleVendor},
	actionGetRequestStatus: {rbac.RoleOwner, rbac.RoleAgent, rbac.RoleVendor, rbac.RoleAnalyst, rbac.RoleMarketOperator},
}

// Dispatch handles POST /v1/engine/actions.
func (h Handlers) Dispatch(c *gin.Context) {
	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "engine not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	allowed, known := actionRoles[envelope.Action]
	if !known {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
		return
	}
	role, _ := auth.Role(c.Request.Context())
	if !roleAllowed(role, allowed) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	switch envelope.Action {
	case actionCreateRequest:
		h.createRequest(c, workspaceID, body)
	case actionFindMatches:
		h.findMatches(c, workspaceID, body)
	case actionRouteToVendor:
		h.routeToVendor(c, workspaceID, body)
	case actionVendorDecision:
		h.vendorDecision(c, workspaceID, body)
	case actionGetRequestStatus:
		h.getRequestStatus(c, workspaceID, body)
	}
}

func roleAllowed(role string, allowed []string) bool {
	if rbac.IsSuperAdmin(role) {
		return true
	}
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

// --- create_request ---

type createRequestInput struct {
	AgentID         string            `json:"agent_id"`
	ServiceCategory string            `json:"service_category"`
	BudgetMinor     *int64            `json:"budget_minor,omitempty"`
	Urgency         string            `json:"urgency,omitempty"`
	Location        string            `json:"location,omitempty"`
	Requirements    map[string]string `json:"specific_requirements,omitempty"`
}

func (h Handlers) createRequest(c *gin.Context, workspaceID string, body []byte) {
	var in createRequestInput
	if err := json.Unmarshal(body, &in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if in.AgentID == "" {
		// The authenticated caller is the requesting agent by default.
		in.AgentID, _ = auth.UserID(c.Request.Context())
	}

	req, cands, err := h.Engine.CreateRequest(c.Request.Context(), workspaceID, matching.CreateRequestInput{
		AgentID:         in.AgentID,
		ServiceCategory: in.ServiceCategory,
		BudgetMinor:     in.BudgetMinor,
		Urgency:         matching.Urgency(in.Urgency),
		Location:        in.Location,
		Requirements:    in.Requirements,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	message := "matches found"
	if len(cands) == 0 {
		message = "no matching vendors found; request closed"
	}
	c.JSON(http.StatusCreated, gin.H{
		"request_id": req.ID,
		"status":     req.Status,
		"matches":    renderCandidates(cands),
		"message":    message,
	})
}

// --- find_matches ---

type requestRefInput struct {
	RequestID string `json:"request_id"`
}

func (h Handlers) findMatches(c *gin.Context, workspaceID string, body []byte) {
	var in requestRefInput
	if err := json.Unmarshal(body, &in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cands, err := h.Engine.FindMatches(c.Request.Context(), workspaceID, in.RequestID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id": in.RequestID,
		"matches":    renderCandidates(cands),
	})
}

// --- route_to_vendor ---

type routeToVendorInput struct {
	// MatchCandidateID routes a specific candidate (manual override).
	MatchCandidateID string `json:"match_candidate_id,omitempty"`
	// RequestID routes the best pending candidate (automatic).
	RequestID string `json:"request_id,omitempty"`
}

func (h Handlers) routeToVendor(c *gin.Context, workspaceID string, body []byte) {
	var in routeToVendorInput
	if err := json.Unmarshal(body, &in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var (
		routing matching.MatchRouting
		err     error
	)
	switch {
	case in.MatchCandidateID != "":
		routing, err = h.Engine.RouteCandidate(c.Request.Context(), workspaceID, in.MatchCandidateID, matching.RoutingMethodManual)
	case in.RequestID != "":
		routing, err = h.Engine.RouteNext(c.Request.Context(), workspaceID, in.RequestID)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "match_candidate_id or request_id required"})
		return
	}
	if errors.Is(err, matching.ErrExhausted) {
		c.JSON(http.StatusOK, gin.H{"message": "no routable candidates; request closed"})
		return
	}
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"routing_id": routing.ID,
		"vendor_id":  routing.VendorID,
		"message":    "request routed to vendor",
	})
}

// --- vendor_decision ---

type vendorDecisionInput struct {
	RoutingID string `json:"routing_id"`
	VendorID  string `json:"vendor_id,omitempty"`
	Decision  string `json:"decision"`

	ResponseMessage   string `json:"response_message,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

func (h Handlers) vendorDecision(c *gin.Context, workspaceID string, body []byte) {
	var in vendorDecisionInput
	if err := json.Unmarshal(body, &in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if in.VendorID == "" {
		// Vendors respond as themselves.
		in.VendorID, _ = auth.UserID(c.Request.Context())
	}

	var estimated *time.Time
	if in.EstimatedDelivery != "" {
		t, err := time.Parse(time.RFC3339, in.EstimatedDelivery)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "estimated_delivery must be RFC3339"})
			return
		}
		estimated = &t
	}

	decision, err := h.Engine.RecordDecision(c.Request.Context(), workspaceID, matching.DecisionInput{
		RoutingID:         in.RoutingID,
		VendorID:          in.VendorID,
		Decision:          matching.Decision(in.Decision),
		ResponseMessage:   in.ResponseMessage,
		EstimatedDelivery: estimated,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	message := "decision recorded"
	if decision.Decision == matching.DecisionDecline {
		message = "decision recorded; request offered to next candidate if available"
	}
	c.JSON(http.StatusOK, gin.H{
		"decision_id": decision.ID,
		"message":     message,
	})
}

// --- get_request_status ---

func (h Handlers) getRequestStatus(c *gin.Context, workspaceID string, body []byte) {
	var in requestRefInput
	if err := json.Unmarshal(body, &in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, err := h.Engine.RequestStatus(c.Request.Context(), workspaceID, in.RequestID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	candidates := make([]gin.H, 0, len(view.Candidates))
	for _, cv := range view.Candidates {
		entry := renderCandidate(cv.Candidate)
		if len(cv.Routings) > 0 {
			routings := make([]gin.H, 0, len(cv.Routings))
			for _, rv := range cv.Routings {
				routings = append(routings, gin.H{
					"routing":   rv.Routing,
					"decisions": rv.Decisions,
				})
			}
			entry["routings"] = routings
		}
		candidates = append(candidates, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"request":    view.Request,
		"status":     view.Request.Status,
		"candidates": candidates,
	})
}

// --- rendering and error mapping ---

// renderCandidate flattens a candidate for API responses. Reasons stay
// structured internally and become display strings only here.
func renderCandidate(cand matching.MatchCandidate) gin.H {
	reasons := make([]string, 0, len(cand.MatchReasons))
	for _, r := range cand.MatchReasons {
		reasons = append(reasons, r.Render())
	}
	return gin.H{
		"id":            cand.ID,
		"request_id":    cand.RequestID,
		"vendor_id":     cand.VendorID,
		"match_score":   cand.MatchScore,
		"match_reasons": reasons,
		"status":        cand.Status,
	}
}

func renderCandidates(cands []matching.MatchCandidate) []gin.H {
	out := make([]gin.H, 0, len(cands))
	for _, cand := range cands {
		out = append(out, renderCandidate(cand))
	}
	return out
}

// writeEngineError maps engine sentinel errors to HTTP statuses. Store errors
// never leak to callers.
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, matching.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, matching.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, matching.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
