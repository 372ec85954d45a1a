package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vendormatch-engine/internal/auth"
	"vendormatch-engine/internal/matching"
	"vendormatch-engine/internal/rbac"
	"vendormatch-engine/internal/rules"

	"github.com/gin-gonic/gin"
)

func i64(v int64) *int64 { return &v }

func newTestRouter(t *testing.T) (*gin.Engine, func(userID, role string)) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ruleStore := &rules.MemoryRepo{
		Rules: []rules.VendorRule{
			{
				ID: "r-x", WorkspaceID: "w1", VendorID: "vx",
				ServiceCategories:    []string{"plumbing"},
				MinBudgetMinor:       i64(100),
				MaxBudgetMinor:       i64(1000),
				LocationRestrictions: []string{"TX"},
				CapacityLimit:        1,
				PriorityScore:        50,
				IsActive:             true,
			},
			{
				ID: "r-y", WorkspaceID: "w1", VendorID: "vy",
				ServiceCategories: []string{"plumbing"},
				MinBudgetMinor:    i64(100),
				MaxBudgetMinor:    i64(1000),
				CapacityLimit:     3,
				PriorityScore:     50,
				IsActive:          true,
			},
		},
		Profiles: []rules.VendorProfile{
			{WorkspaceID: "w1", VendorID: "vx", DisplayName: "Vendor X", Rating: 3.9},
			{WorkspaceID: "w1", VendorID: "vy", DisplayName: "Vendor Y", Rating: 3.0},
		},
	}
	engine := matching.NewService(matching.NewMemoryRepo(), ruleStore, matching.Options{})
	h := Handlers{Engine: engine}

	userID, role := "u1", rbac.RoleAgent
	setIdentity := func(u, r string) { userID, role = u, r }

	r := gin.New()
	r.POST("/v1/engine/actions", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, "w1", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, h.Dispatch)
	return r, setIdentity
}

func postAction(t *testing.T, r *gin.Engine, payload map[string]any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/engine/actions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var out map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, out
}

func TestDispatch_UnknownAction(t *testing.T) {
	r, _ := newTestRouter(t)
	code, out := postAction(t, r, map[string]any{"action": "transmogrify"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if out["error"] != "invalid_action" {
		t.Fatalf("expected invalid_action, got %v", out["error"])
	}
}

func TestDispatch_RoleForbidden(t *testing.T) {
	r, setIdentity := newTestRouter(t)
	setIdentity("vx", rbac.RoleVendor)
	code, _ := postAction(t, r, map[string]any{
		"action":           "create_request",
		"service_category": "plumbing",
	})
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestDispatch_GetRequestStatus_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	code, _ := postAction(t, r, map[string]any{
		"action":     "get_request_status",
		"request_id": "missing",
	})
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestDispatch_CreateRequest_ValidationError(t *testing.T) {
	r, _ := newTestRouter(t)
	code, _ := postAction(t, r, map[string]any{
		"action":  "create_request",
		"urgency": "frantic",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

// Full flow: create, inspect ranking, route, decline with fallback, accept.
func TestDispatch_EndToEnd(t *testing.T) {
	r, setIdentity := newTestRouter(t)

	code, out := postAction(t, r, map[string]any{
		"action":           "create_request",
		"service_category": "plumbing",
		"budget_minor":     500,
		"urgency":          "high",
		"location":         "TX",
	})
	if code != http.StatusCreated {
		t.Fatalf("create_request: expected 201, got %d (%v)", code, out)
	}
	requestID, _ := out["request_id"].(string)
	if requestID == "" {
		t.Fatalf("expected request_id in response")
	}
	matches, _ := out["matches"].([]any)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	first := matches[0].(map[string]any)
	if first["vendor_id"] != "vx" {
		t.Fatalf("expected vx ranked first, got %v", first["vendor_id"])
	}
	if first["match_score"] != float64(90) {
		t.Fatalf("expected vx score 90, got %v", first["match_score"])
	}
	second := matches[1].(map[string]any)
	if second["vendor_id"] != "vy" || second["match_score"] != float64(75) {
		t.Fatalf("expected vy at 75, got %v at %v", second["vendor_id"], second["match_score"])
	}
	reasons, _ := first["match_reasons"].([]any)
	if len(reasons) == 0 {
		t.Fatalf("expected rendered match reasons")
	}
	if _, ok := reasons[0].(string); !ok {
		t.Fatalf("expected string reasons at the boundary, got %T", reasons[0])
	}

	setIdentity("ops", rbac.RoleOwner)
	code, out = postAction(t, r, map[string]any{
		"action":     "route_to_vendor",
		"request_id": requestID,
	})
	if code != http.StatusOK {
		t.Fatalf("route_to_vendor: expected 200, got %d (%v)", code, out)
	}
	routingID, _ := out["routing_id"].(string)
	if routingID == "" {
		t.Fatalf("expected routing_id")
	}
	if out["vendor_id"] != "vx" {
		t.Fatalf("expected routed to vx, got %v", out["vendor_id"])
	}

	// Vendor X declines; fallback must offer Vendor Y.
	setIdentity("vx", rbac.RoleVendor)
	code, out = postAction(t, r, map[string]any{
		"action":           "vendor_decision",
		"routing_id":       routingID,
		"decision":         "decline",
		"response_message": "fully booked",
	})
	if code != http.StatusOK {
		t.Fatalf("vendor_decision: expected 200, got %d (%v)", code, out)
	}

	// A second response to the settled routing loses the conditional update.
	code, _ = postAction(t, r, map[string]any{
		"action":     "vendor_decision",
		"routing_id": routingID,
		"decision":   "accept",
	})
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for second decision, got %d", code)
	}

	setIdentity("u1", rbac.RoleAgent)
	code, out = postAction(t, r, map[string]any{
		"action":     "get_request_status",
		"request_id": requestID,
	})
	if code != http.StatusOK {
		t.Fatalf("get_request_status: expected 200, got %d", code)
	}
	if out["status"] != "routed" {
		t.Fatalf("expected request routed after fallback, got %v", out["status"])
	}

	// Find Vendor Y's routing and accept it.
	candidates, _ := out["candidates"].([]any)
	var yRoutingID string
	for _, raw := range candidates {
		cand := raw.(map[string]any)
		if cand["vendor_id"] != "vy" {
			continue
		}
		routings, _ := cand["routings"].([]any)
		if len(routings) != 1 {
			t.Fatalf("expected one routing for vy, got %d", len(routings))
		}
		routing := routings[0].(map[string]any)["routing"].(map[string]any)
		yRoutingID, _ = routing["id"].(string)
	}
	if yRoutingID == "" {
		t.Fatalf("expected a routing for vy after decline fallback")
	}

	setIdentity("vy", rbac.RoleVendor)
	code, out = postAction(t, r, map[string]any{
		"action":             "vendor_decision",
		"routing_id":         yRoutingID,
		"decision":           "accept",
		"estimated_delivery": "2026-09-02T10:00:00Z",
	})
	if code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d (%v)", code, out)
	}

	setIdentity("u1", rbac.RoleAgent)
	_, out = postAction(t, r, map[string]any{
		"action":     "get_request_status",
		"request_id": requestID,
	})
	if out["status"] != "fulfilled" {
		t.Fatalf("expected fulfilled after accept, got %v", out["status"])
	}
}

func TestDispatch_RouteExhaustedClosesRequest(t *testing.T) {
	r, setIdentity := newTestRouter(t)

	code, out := postAction(t, r, map[string]any{
		"action":           "create_request",
		"service_category": "plumbing",
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	requestID := out["request_id"].(string)

	// Route the top candidate, then decline down the chain. Each decline
	// automatically offers the next rank; the last decline closes the request.
	setIdentity("ops", rbac.RoleOwner)
	code, out = postAction(t, r, map[string]any{
		"action":     "route_to_vendor",
		"request_id": requestID,
	})
	if code != http.StatusOK {
		t.Fatalf("route: expected 200, got %d (%v)", code, out)
	}
	routingID := out["routing_id"].(string)
	vendorID := out["vendor_id"].(string)

	for i := 0; i < 2; i++ {
		setIdentity(vendorID, rbac.RoleVendor)
		code, _ = postAction(t, r, map[string]any{
			"action":     "vendor_decision",
			"routing_id": routingID,
			"decision":   "decline",
		})
		if code != http.StatusOK {
			t.Fatalf("decline %d: expected 200, got %d", i, code)
		}
		if i == 1 {
			break
		}

		// The decline fell through to the next vendor; find the live routing.
		setIdentity("u1", rbac.RoleAgent)
		_, status := postAction(t, r, map[string]any{
			"action":     "get_request_status",
			"request_id": requestID,
		})
		routingID, vendorID = "", ""
		for _, raw := range status["candidates"].([]any) {
			cand := raw.(map[string]any)
			if cand["status"] != "routed" {
				continue
			}
			routing := cand["routings"].([]any)[0].(map[string]any)["routing"].(map[string]any)
			routingID = routing["id"].(string)
			vendorID = cand["vendor_id"].(string)
		}
		if routingID == "" {
			t.Fatalf("expected fallback routing after decline %d", i)
		}
	}

	setIdentity("u1", rbac.RoleAgent)
	_, out = postAction(t, r, map[string]any{
		"action":     "get_request_status",
		"request_id": requestID,
	})
	if out["status"] != "closed" {
		t.Fatalf("expected closed request after chain exhausted, got %v", out["status"])
	}

	// The closed request is terminal; declined candidates are never re-offered.
	setIdentity("ops", rbac.RoleOwner)
	code, _ = postAction(t, r, map[string]any{
		"action":     "route_to_vendor",
		"request_id": requestID,
	})
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for closed request, got %d", code)
	}
}
