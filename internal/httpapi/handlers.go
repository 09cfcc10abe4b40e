package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/stats"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Store    dialer.Store
	Registry *dialer.Registry
	Stats    stats.Source

	// RunCtx is the process-lifetime context campaign loops are started
	// under; request contexts die with the request.
	RunCtx context.Context

	StatsWindow time.Duration
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT access token.
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
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Campaigns ---

func (h Handlers) ListCampaigns(c *gin.Context) {
	campaigns, err := h.Store.ListCampaigns(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign lookup failed"})
		return
	}
	running := make(map[int64]bool)
	for _, id := range h.Registry.Running() {
		running[id] = true
	}
	out := make([]gin.H, 0, len(campaigns))
	for _, camp := range campaigns {
		out = append(out, gin.H{
			"id":               camp.ID,
			"name":             camp.Name,
			"status":           camp.Status,
			"pacing_ratio":     camp.PacingRatio,
			"max_concurrent":   camp.MaxConcurrent,
			"max_abandon_rate": camp.MaxAbandonRate,
			"loop_running":     running[camp.ID],
		})
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

func (h Handlers) GetCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	camp, err := h.Store.Campaign(c.Request.Context(), id)
	if err != nil {
		abortStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

// StartCampaign flips the campaign to running and registers its loop.
// Starting an already-running campaign is a no-op, not an error.
func (h Handlers) StartCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	if err := h.Store.SetStatus(c.Request.Context(), id, dialer.CampaignRunning); err != nil {
		abortStoreErr(c, err)
		return
	}
	started := h.Registry.Start(h.RunCtx, id)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": dialer.CampaignRunning, "loop_started": started})
}

// PauseCampaign halts dialing but keeps the loop registered so resume is a
// pure status flip.
func (h Handlers) PauseCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	if err := h.Store.SetStatus(c.Request.Context(), id, dialer.CampaignPaused); err != nil {
		abortStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": dialer.CampaignPaused})
}

// StopCampaign halts dialing and cancels the loop.
func (h Handlers) StopCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	if err := h.Store.SetStatus(c.Request.Context(), id, dialer.CampaignStopped); err != nil {
		abortStoreErr(c, err)
		return
	}
	stopped := h.Registry.Stop(id)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": dialer.CampaignStopped, "loop_stopped": stopped})
}

func (h Handlers) CampaignStats(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	window := h.StatsWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	st, err := h.Stats.CampaignStats(c.Request.Context(), id, window)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats lookup failed"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func campaignID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("campaign_id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func abortStoreErr(c *gin.Context, err error) {
	if errors.Is(err, dialer.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign lookup failed"})
}
