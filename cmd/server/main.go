package main

import (
	"os"

	"github.com/arnavshah/mass-scheduler-go/pkg/config"
	"github.com/arnavshah/mass-scheduler-go/pkg/database"
	"github.com/arnavshah/mass-scheduler-go/pkg/handlers"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env if it exists
	// Try root and parent directories for flexibility
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.IsProduction()); err != nil {
		log.Fatalf("Invalid LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	h := handlers.NewHandler(cfg, db, log)
	created, err := h.Auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	if created {
		log.Infof("Created admin user %q", cfg.AdminUsername)
	}

	r := handlers.NewRouter(h)

	log.WithField("environment", cfg.Environment).Infof("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
