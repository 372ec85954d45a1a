package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vendormatch-engine/internal/audit"
	"vendormatch-engine/internal/auth"
	"vendormatch-engine/internal/matching"
	"vendormatch-engine/internal/rbac"
	"vendormatch-engine/internal/rules"

	"github.com/gin-gonic/gin"
)

type failingAuditRepo struct{}

func (failingAuditRepo) Append(ctx context.Context, e audit.Event) error {
	return errors.New("sink unavailable")
}

func newCloseStaleRouter(repo audit.Repository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := matching.NewService(matching.NewMemoryRepo(), &rules.MemoryRepo{}, matching.Options{})
	h := Handlers{Engine: engine, Audit: audit.NewService(repo)}

	r := gin.New()
	r.POST("/v1/admin/requests/close-stale", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "ops", "w1", rbac.RoleOwner)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, h.CloseStale)
	return r
}

// Audit logging is best-effort: a failing audit sink must not turn a
// successful sweep into an error response.
func TestCloseStale_AuditFailureDoesNotBlockSweep(t *testing.T) {
	r := newCloseStaleRouter(failingAuditRepo{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/requests/close-stale?older_than_hours=1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite audit failure, got %d (%s)", w.Code, w.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := out["closed"]; !ok {
		t.Fatalf("expected closed count in response, got %v", out)
	}
}

func TestCloseStale_RejectsNonPositiveCutoff(t *testing.T) {
	r := newCloseStaleRouter(audit.NewMemoryRepo())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/requests/close-stale?older_than_hours=0", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero cutoff, got %d", w.Code)
	}
}
