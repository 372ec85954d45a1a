package main

import (
	"vendormatch-engine/internal/httpapi"
	"vendormatch-engine/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation lives
	// in the external identity service.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// ENGINE dispatch. Per-action role checks happen inside the handler;
		// the group only enforces an authenticated workspace identity.
		engine := v1.Group("/engine")
		engine.Use(rbac.RequireWorkspace())
		{
			engine.POST("/actions", h.Dispatch)
		}

		// ADMIN routes
		// Only owner/super_admin can access admin endpoints by default.
		// Hidden market_operator is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin)...)
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})

			admin.POST("/requests/close-stale", h.CloseStale)
		}
	}
}
