package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"vendormatch-engine/internal/audit"
	"vendormatch-engine/internal/auth"
	"vendormatch-engine/internal/matching"
	"vendormatch-engine/internal/rbac"
	"vendormatch-engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth   *auth.Manager
	Engine *matching.Service
	Audit  *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Admin ---

// CloseStale sweeps pending/routed requests older than the cutoff into closed
// status. Invoked by an external scheduler; the engine never expires work on
// its own.
// RBAC: owner or super_admin.
func (h Handlers) CloseStale(c *gin.Context) {
	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "engine not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}

	olderThan := 24 * time.Hour
	if raw := c.Query("older_than_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "older_than_hours must be a positive integer"})
			return
		}
		olderThan = time.Duration(hours) * time.Hour
	}

	closed, err := h.Engine.CloseStale(c.Request.Context(), workspaceID, olderThan)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	if h.Audit != nil {
		actorID, _ := auth.UserID(c.Request.Context())
		actorRole, _ := auth.Role(c.Request.Context())
		if err := h.Audit.LogAdminAction(c.Request.Context(), workspaceID, actorID, actorRole,
			ClientIPFromContext(c.Request.Context()), "stale request sweep", ""); err != nil {
			logger.FromGin(c).Error("audit append failed", "action", "stale request sweep", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

// Convenience middleware bundles.

func RequireWorkspaceAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireWorkspace(), rbac.RequireAnyRole(roles...)}
}
