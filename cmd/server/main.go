// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SoloRealmMCP/internal/api"
	"github.com/Corphon/SoloRealmMCP/internal/app"
	"github.com/Corphon/SoloRealmMCP/internal/config"
	"github.com/Corphon/SoloRealmMCP/internal/di"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

func main() {
	log.Println("Starting SoloRealmMCP server...")

	// 1. Load the base configuration.
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("Base config loaded, port %s", baseConfig.Port)

	// 2. Create the directory layout.
	createDirectories(baseConfig)

	// 3. Initialize the runtime configuration system.
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("init config system: %v", err)
	}

	// 4. Attach the log file.
	if err := utils.InitLogger(filepath.Join(baseConfig.LogDir, "server.log")); err != nil {
		log.Printf("warning: log file unavailable: %v", err)
	}

	// 5. Build the service graph.
	container := di.GetContainer()
	application, err := app.InitServices(container)
	if err != nil {
		log.Fatalf("init services: %v", err)
	}
	defer application.Cleanup()
	log.Println("Services initialized")

	// 6. Health check before accepting traffic.
	if err := performHealthCheck(container); err != nil {
		log.Fatalf("health check failed: %v", err)
	}

	// 7. Routes.
	router := api.SetupRouter(container)
	log.Println("Routes registered")

	// 8. Serve until interrupted.
	log.Printf("Listening on http://localhost:%s", baseConfig.Port)
	runWithGracefulShutdown(router, baseConfig.Port)
}

func performHealthCheck(container *di.Container) error {
	criticalServices := []string{"session", "narrator", "clocks", "roller"}

	for _, name := range criticalServices {
		if container.Get(name) == nil {
			return fmt.Errorf("critical service not registered: %s", name)
		}
	}
	return nil
}

func runWithGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		cfg.SaveDir,
		cfg.LogDir,
		filepath.Dir(cfg.AuditDBPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("create dir %s: %v", dir, err)
		}
	}
}
