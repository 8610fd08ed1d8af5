package handler

import (
	"net/http"

	"github.com/arnavshah/mass-scheduler-go/pkg/config"
	"github.com/arnavshah/mass-scheduler-go/pkg/database"
	"github.com/arnavshah/mass-scheduler-go/pkg/handlers"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var r *gin.Engine

func init() {
	// Load .env if it exists (for local testing with vercel dev)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	log := logger.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	_ = logger.Configure(cfg.LogLevel, true)

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	h := handlers.NewHandler(cfg, db, log)
	if _, err := h.Auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Errorf("Failed to create admin user: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r = handlers.NewRouter(h)
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
