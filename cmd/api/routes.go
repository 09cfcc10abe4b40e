package main

import (
	"database/sql"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/telemetry"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authManager *auth.Manager, h httpapi.Handlers, hub *broadcast.Hub, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	// Realtime observer stream (read-only dashboards).
	r.GET("/ws", gin.WrapH(hub))

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// CAMPAIGNS routes
		campaigns := v1.Group("/campaigns")
		campaigns.Use(rbac.RequireAnyRole(rbac.RoleSupervisor, rbac.RoleAnalyst))
		{
			campaigns.GET("", h.ListCampaigns)
			campaigns.GET("/:campaign_id", h.GetCampaign)
			campaigns.GET("/:campaign_id/stats", h.CampaignStats)
		}

		// Lifecycle transitions are supervisor-only; analysts observe.
		lifecycle := v1.Group("/campaigns")
		lifecycle.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			lifecycle.POST("/:campaign_id/start", h.StartCampaign)
			lifecycle.POST("/:campaign_id/pause", h.PauseCampaign)
			lifecycle.POST("/:campaign_id/stop", h.StopCampaign)
		}
	}
}
