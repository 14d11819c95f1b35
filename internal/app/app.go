// internal/app/app.go
package app

import (
	"fmt"
	"time"

	"github.com/Corphon/SoloRealmMCP/internal/config"
	"github.com/Corphon/SoloRealmMCP/internal/di"
	"github.com/Corphon/SoloRealmMCP/internal/dice"
	"github.com/Corphon/SoloRealmMCP/internal/llm"
	"github.com/Corphon/SoloRealmMCP/internal/services"
	"github.com/Corphon/SoloRealmMCP/internal/storage"
	"github.com/Corphon/SoloRealmMCP/internal/storage/auditdb"
	"github.com/Corphon/SoloRealmMCP/internal/utils"

	_ "github.com/Corphon/SoloRealmMCP/internal/llm/providers/openai"
)

// App owns the service graph and its shared resources.
type App struct {
	Container *di.Container
	Session   *services.SessionService
	Narrator  *services.NarratorService
	AuditDB   *auditdb.Store
	Logger    *utils.Logger
}

// InitServices builds every service in dependency order and registers the
// pieces the HTTP layer looks up.
func InitServices(container *di.Container) (*App, error) {
	cfg := config.GetCurrentConfig()
	logger := utils.GetLogger()

	// 1. Storage.
	files, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init file storage: %w", err)
	}

	// 2. Audit database. Play continues without it.
	var (
		store    *auditdb.Store
		recorder *auditdb.Recorder
	)
	if cfg.AuditDBPath != "" {
		store, err = auditdb.Open(cfg.AuditDBPath)
		if err != nil {
			logger.Errorf("audit database unavailable, rolls will not be persisted: %v", err)
		} else {
			recorder = auditdb.NewRecorder(store)
		}
	}

	// 3. Dice. A fixed seed makes the whole session replayable.
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	roller := dice.NewRoller(dice.NewSource(seed))
	if recorder != nil {
		roller.SetSink(recorder)
	}

	// 4. Rules services.
	clocks := services.NewClockService()
	pressure := services.NewPressureService(clocks, roller)
	combat := services.NewCombatService(roller)
	creative := services.NewCreativeService(clocks)
	forge := services.NewForgeService(creative, roller)

	// 5. Orchestrator.
	session := services.NewSessionService(
		clocks, pressure, combat, creative, forge,
		files, cfg.SaveDir, recorder,
	)

	// 6. Narrator. Unconfigured is valid; answers then arrive through
	// the submit-response API instead.
	var provider llm.Provider
	if cfg.NarratorProvider != "" {
		provider, err = llm.GetProvider(cfg.NarratorProvider, cfg.NarratorConfig)
		if err != nil {
			logger.Errorf("narrator provider %s unavailable: %v", cfg.NarratorProvider, err)
			provider = nil
		}
	}
	narrator := services.NewNarratorService(provider)

	container.Register("logger", logger)
	container.Register("files", files)
	container.Register("auditdb", store)
	container.Register("roller", roller)
	container.Register("clocks", clocks)
	container.Register("pressure", pressure)
	container.Register("combat", combat)
	container.Register("creative", creative)
	container.Register("forge", forge)
	container.Register("session", session)
	container.Register("narrator", narrator)

	return &App{
		Container: container,
		Session:   session,
		Narrator:  narrator,
		AuditDB:   store,
		Logger:    logger,
	}, nil
}

// Cleanup releases resources held by the service graph.
func (a *App) Cleanup() {
	if a.AuditDB != nil {
		if err := a.AuditDB.Close(); err != nil {
			a.Logger.Errorf("close audit database: %v", err)
		}
	}
}
