package handlers

import (
	"net/http"

	"github.com/arnavshah/mass-scheduler-go/pkg/auth"
	"github.com/arnavshah/mass-scheduler-go/pkg/config"
	"github.com/arnavshah/mass-scheduler-go/pkg/database"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/arnavshah/mass-scheduler-go/pkg/metrics"
	"github.com/arnavshah/mass-scheduler-go/pkg/planner"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Version is reported by the root route
const Version = "1.0.0"

// NewRouter wires every route onto a fresh gin engine
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Mass Scheduler API",
			"version": Version,
		})
	})
	if h.Metrics != nil {
		r.GET("/metrics", h.MetricsHandler())
	}

	r.POST("/admin/login", h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
		admin.GET("/plans/:id", h.GetAnyPlan)
	}

	// Planner Endpoints
	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.POST("/plan", h.PlanJSON)
		api.POST("/plan/csv", h.PlanCSV)
		api.POST("/validate", h.ValidateInput)
		api.GET("/plans/:id", h.GetPlan)
		api.GET("/usage", h.GetMyUsage)
	}

	return r
}

// NewHandler builds the handler dependencies from an opened database
func NewHandler(cfg *config.Config, db *gorm.DB, log *logger.Logger) *Handler {
	store := database.NewStore(db)
	collector := metrics.NewPrometheus("")
	return &Handler{
		DB:      db,
		Store:   store,
		Planner: planner.NewService(cfg, store, collector, log),
		Auth:    auth.New(cfg),
		Metrics: collector,
		Log:     log,
	}
}
