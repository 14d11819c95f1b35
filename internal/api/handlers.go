// internal/api/handlers.go
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SoloRealmMCP/internal/auth"
	"github.com/Corphon/SoloRealmMCP/internal/config"
	"github.com/Corphon/SoloRealmMCP/internal/llm"
	"github.com/Corphon/SoloRealmMCP/internal/services"
	"github.com/Corphon/SoloRealmMCP/internal/storage/auditdb"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// APIResponse is the unified response envelope.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError carries the error payload of a failed response.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Handler bundles the services the HTTP layer exposes.
type Handler struct {
	Session  *services.SessionService
	Narrator *services.NarratorService
	Audit    *auditdb.Store
	resp     *ResponseHelper
}

// NewHandler creates the handler set. audit may be nil when the audit
// database is disabled.
func NewHandler(session *services.SessionService, narrator *services.NarratorService, audit *auditdb.Store) *Handler {
	return &Handler{
		Session:  session,
		Narrator: narrator,
		Audit:    audit,
		resp:     NewResponseHelper(),
	}
}

// ---------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------

// StartSession opens a new session in the given starting zone.
func (h *Handler) StartSession(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		StartZone string `json:"start_zone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "start_zone is required")
		return
	}

	batch, err := h.Session.StartSession(req.SessionID, req.StartZone)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Created(c, gin.H{"batch": batch}, "Session started")
}

// EndSession closes the session and queues the summary request.
func (h *Handler) EndSession(c *gin.Context) {
	batch, err := h.Session.EndSession()
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, gin.H{"batch": batch}, "Session ended")
}

// GetState returns the current state projection.
func (h *Handler) GetState(c *gin.Context) {
	view, err := h.Session.View()
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, view)
}

// ---------------------------------------------------------------------
// Travel and rest
// ---------------------------------------------------------------------

// Travel moves the party to a connected zone and runs the days in between.
func (h *Handler) Travel(c *gin.Context) {
	var req struct {
		Destination string `json:"destination" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "destination is required")
		return
	}

	result, err := h.Session.TravelTo(req.Destination)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, result)
}

// Rest passes the given number of days in place.
func (h *Handler) Rest(c *gin.Context) {
	var req struct {
		Days int `json:"days" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "days is required")
		return
	}

	result, err := h.Session.RestDays(req.Days)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, result)
}

// ---------------------------------------------------------------------
// Combat
// ---------------------------------------------------------------------

// StartCombat opens combat against a named NPC, or against an ad-hoc foe
// group when foe_spec is given.
func (h *Handler) StartCombat(c *gin.Context) {
	var req struct {
		Target  string `json:"target"`
		FoeName string `json:"foe_name"`
		FoeSpec string `json:"foe_spec"`
		Prompt  string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "invalid request body")
		return
	}

	if req.Target == "" && req.FoeSpec == "" {
		h.resp.BadRequest(c, "either target or foe_spec is required")
		return
	}

	var (
		state interface{}
		err   error
	)
	if req.Target != "" {
		state, err = h.Session.StartCombat(req.Target)
	} else {
		state, err = h.Session.StartEncounterCombat(req.FoeName, req.FoeSpec, req.Prompt)
	}
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, state, "Combat started")
}

// CombatAction resolves one round of the current combat.
func (h *Handler) CombatAction(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "action is required (attack or flee)")
		return
	}

	result, err := h.Session.CombatAction(req.Action)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, result)
}

// ---------------------------------------------------------------------
// Forge and player intent
// ---------------------------------------------------------------------

// SubmitForge queues a player-requested forge of world content.
func (h *Handler) SubmitForge(c *gin.Context) {
	var req struct {
		Type   string         `json:"type" binding:"required"`
		Params map[string]any `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "forge type is required")
		return
	}

	batch, err := h.Session.SubmitForge(req.Type, req.Params)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, batch, "Forge request queued")
}

// PlayerInput queues the player's in-character intent for narration.
func (h *Handler) PlayerInput(c *gin.Context) {
	var req struct {
		Intent string `json:"intent" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "intent is required")
		return
	}

	batch, err := h.Session.SubmitPlayerInput(req.Intent)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, batch)
}

// AskRumor queues a one-shot rumor for the current zone.
func (h *Handler) AskRumor(c *gin.Context) {
	batch, err := h.Session.AskRumor()
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, batch)
}

// ---------------------------------------------------------------------
// Creative bridge
// ---------------------------------------------------------------------

// GetBatch returns the batch currently waiting on a narrator answer.
func (h *Handler) GetBatch(c *gin.Context) {
	batch, err := h.Session.OutstandingBatch()
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, batch)
}

// SubmitResponse accepts a raw narrator answer for the outstanding batch.
// The body is the answer text as-is; markdown fences are tolerated.
func (h *Handler) SubmitResponse(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		h.resp.BadRequest(c, "response body is required")
		return
	}

	applied, err := h.Session.SubmitResponse(string(raw))
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, gin.H{"applied": applied})
}

// RunNarrator sends the outstanding batch to the configured provider and
// applies its answer in one step.
func (h *Handler) RunNarrator(c *gin.Context) {
	if !h.Narrator.Configured() {
		h.resp.Error(c, http.StatusConflict, ErrorNarratorUnset, "no narrator provider configured")
		return
	}

	batch, err := h.Session.OutstandingBatch()
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Minute)
	defer cancel()

	applied, err := h.Narrator.RunBatch(ctx, h.Session, batch)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, gin.H{"applied": applied})
}

// ---------------------------------------------------------------------
// Saves
// ---------------------------------------------------------------------

// ListSaves returns the available save files.
func (h *Handler) ListSaves(c *gin.Context) {
	saves, err := h.Session.ListSaves()
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, gin.H{"saves": saves})
}

// SaveSession writes the current session to a named save file.
func (h *Handler) SaveSession(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.resp.BadRequest(c, "invalid request body")
		return
	}

	name, err := h.Session.Save(req.Name)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, gin.H{"name": name}, "Session saved")
}

// LoadSession replaces the live session with a named save.
func (h *Handler) LoadSession(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		h.resp.BadRequest(c, "save name is required")
		return
	}

	if err := h.Session.Load(name); err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, nil, "Session loaded")
}

// DeleteSave removes a named save file.
func (h *Handler) DeleteSave(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		h.resp.BadRequest(c, "save name is required")
		return
	}

	if err := h.Session.DeleteSave(name); err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, nil, "Save deleted")
}

// ---------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------

// RecentRolls returns the latest dice rolls from the audit database.
func (h *Handler) RecentRolls(c *gin.Context) {
	if h.Audit == nil {
		h.resp.Error(c, http.StatusServiceUnavailable, ErrorAuditUnavailable, "audit database is disabled")
		return
	}

	session := c.Query("session")
	limit := queryInt(c, "limit", 50)

	rolls, err := h.Audit.RecentRolls(c.Request.Context(), session, limit)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, gin.H{"rolls": rolls})
}

// RecentAdjudications returns the latest adjudication records.
func (h *Handler) RecentAdjudications(c *gin.Context) {
	if h.Audit == nil {
		h.resp.Error(c, http.StatusServiceUnavailable, ErrorAuditUnavailable, "audit database is disabled")
		return
	}

	session := c.Query("session")
	limit := queryInt(c, "limit", 50)

	records, err := h.Audit.RecentAdjudications(c.Request.Context(), session, limit)
	if err != nil {
		h.resp.HandleServiceError(c, err)
		return
	}
	h.resp.Success(c, gin.H{"adjudications": records})
}

// ---------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------

// GetSettings returns the narrator settings with the API key masked.
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	masked := make(map[string]string, len(cfg.NarratorConfig))
	for k, v := range cfg.NarratorConfig {
		if k == "api_key" && v != "" {
			masked[k] = "********"
			continue
		}
		masked[k] = v
	}

	h.resp.Success(c, gin.H{
		"provider":  cfg.NarratorProvider,
		"config":    masked,
		"available": llm.AvailableProviders(),
	})
}

// UpdateSettings swaps the narrator provider and its settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "provider is required")
		return
	}
	if req.Config == nil {
		req.Config = map[string]string{}
	}

	provider, err := llm.GetProvider(req.Provider, req.Config)
	if err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}

	if err := config.UpdateNarratorConfig(req.Provider, req.Config); err != nil {
		h.resp.InternalError(c, err.Error())
		return
	}
	h.Narrator.SetProvider(provider)

	h.resp.Success(c, gin.H{"provider": req.Provider}, "Narrator settings updated")
}

// ---------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------

// Login issues a JWT for the given player ID. Available only when an API
// secret is configured.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		PlayerID string `json:"player_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "player_id is required")
		return
	}

	cfg := config.GetCurrentConfig()
	if cfg.APISecret == "" {
		h.resp.Error(c, http.StatusConflict, ErrorConflict, "authentication is disabled, no API secret configured")
		return
	}

	token, err := auth.GenerateToken(req.PlayerID, &auth.TokenConfig{Secret: []byte(cfg.APISecret), Issuer: tokenIssuer})
	if err != nil {
		h.resp.InternalError(c, err.Error())
		return
	}
	h.resp.Success(c, gin.H{"token": token})
}

// GetMetrics returns a snapshot of the collected metrics.
func (h *Handler) GetMetrics(c *gin.Context) {
	h.resp.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// HealthCheck reports service liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	h.resp.Success(c, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
