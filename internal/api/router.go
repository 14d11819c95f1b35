// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Corphon/SoloRealmMCP/internal/config"
	"github.com/Corphon/SoloRealmMCP/internal/di"
	"github.com/Corphon/SoloRealmMCP/internal/services"
	"github.com/Corphon/SoloRealmMCP/internal/storage/auditdb"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// SetupRouter builds the gin engine with all routes and middleware wired
// from the container.
func SetupRouter(container *di.Container) *gin.Engine {
	cfg := config.GetCurrentConfig()
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	session := container.Get("session").(*services.SessionService)
	narrator := container.Get("narrator").(*services.NarratorService)
	logger, _ := container.Get("logger").(*utils.Logger)
	audit, _ := container.Get("auditdb").(*auditdb.Store)

	handler := NewHandler(session, narrator, audit)

	hub := NewWSHub(logger)
	session.SetEmitter(hub)
	container.Register("wshub", hub)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(RequestIDMiddleware())
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware(utils.NewGameMetrics()))

	// Play actions advance game time; keep the limit tight enough that a
	// runaway client cannot burn the narrator call budget.
	playLimiter := NewRateLimiter(5, 10)
	readLimiter := NewRateLimiter(20, 40)

	r.GET("/health", handler.HealthCheck)
	r.GET("/ws", hub.HandleWS)

	api := r.Group("/api")
	api.Use(AuthMiddleware(logger))
	{
		// =====================================================
		// Session lifecycle
		// =====================================================
		sessions := api.Group("/sessions")
		sessions.Use(RateLimitByIP(playLimiter))
		{
			sessions.POST("", handler.StartSession)
			sessions.POST("/end", handler.EndSession)
		}

		// =====================================================
		// State
		// =====================================================
		api.GET("/state", RateLimitByIP(readLimiter), handler.GetState)

		// =====================================================
		// Travel and rest
		// =====================================================
		play := api.Group("")
		play.Use(RateLimitByIP(playLimiter))
		{
			play.POST("/travel", handler.Travel)
			play.POST("/rest", handler.Rest)
			play.POST("/forge", handler.SubmitForge)
			play.POST("/input", handler.PlayerInput)
			play.POST("/rumor", handler.AskRumor)
		}

		// =====================================================
		// Combat
		// =====================================================
		combat := api.Group("/combat")
		combat.Use(RateLimitByIP(playLimiter))
		{
			combat.POST("/start", handler.StartCombat)
			combat.POST("/action", handler.CombatAction)
		}

		// =====================================================
		// Creative bridge
		// =====================================================
		creative := api.Group("/creative")
		creative.Use(RateLimitByIP(playLimiter))
		{
			creative.GET("/batch", handler.GetBatch)
			creative.POST("/response", handler.SubmitResponse)
			creative.POST("/run", handler.RunNarrator)
		}

		// =====================================================
		// Saves
		// =====================================================
		saves := api.Group("/saves")
		saves.Use(RateLimitByIP(playLimiter))
		{
			saves.GET("", handler.ListSaves)
			saves.POST("", handler.SaveSession)
			saves.POST("/:name/load", handler.LoadSession)
			saves.DELETE("/:name", handler.DeleteSave)
		}

		// =====================================================
		// Audit
		// =====================================================
		auditGroup := api.Group("/audit")
		auditGroup.Use(RateLimitByIP(readLimiter))
		{
			auditGroup.GET("/rolls", handler.RecentRolls)
			auditGroup.GET("/adjudications", handler.RecentAdjudications)
		}

		// =====================================================
		// Settings and auth
		// =====================================================
		api.GET("/settings", RateLimitByIP(readLimiter), handler.GetSettings)
		api.PUT("/settings", RateLimitByIP(playLimiter), handler.UpdateSettings)
		api.GET("/metrics", RateLimitByIP(readLimiter), handler.GetMetrics)
	}

	r.POST("/api/auth/login", RateLimitByIP(playLimiter), handler.Login)

	return r
}
