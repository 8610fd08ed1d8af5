package handlers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/auth"
	"github.com/arnavshah/mass-scheduler-go/pkg/database"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/arnavshah/mass-scheduler-go/pkg/metrics"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/planner"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const defaultRateLimit = 10000

// Handler contains dependencies for the route handlers
type Handler struct {
	DB      *gorm.DB
	Store   *database.Store
	Planner *planner.Service
	Auth    *auth.Authenticator
	Metrics *metrics.Collector
	Log     *logger.Logger
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the API key for planner routes using HMAC
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			c.Abort()
			return
		}

		userID, err := h.Auth.VerifyHMACKey(key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			c.Abort()
			return
		}

		// record on first use to track usage and own plans
		apiKey, err := h.Store.EnsureKey(c.Request.Context(), key, userID, auth.KeyPreview(key), defaultRateLimit)
		if err != nil {
			h.Log.Errorf("Could not load key record for %s: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load key record"})
			c.Abort()
			return
		}

		c.Set("apiKey", apiKey)
		c.Set("userID", userID)
		c.Next()
	}
}

func bearer(c *gin.Context) string {
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

func currentKey(c *gin.Context) *database.APIKey {
	raw, exists := c.Get("apiKey")
	if !exists {
		return nil
	}
	return raw.(*database.APIKey)
}

// statusFor maps planner errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case apperrors.IsConfig(err),
		errors.Is(err, apperrors.ErrInvalidHorizon),
		errors.Is(err, apperrors.ErrUnknownStrategy):
		return http.StatusBadRequest
	case apperrors.IsInfeasible(err), errors.Is(err, apperrors.ErrNoSuccessfulTrial):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrPlanNotFound), errors.Is(err, apperrors.ErrKeyNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) plan(c *gin.Context) (*models.PlanResponse, bool) {
	var req models.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	var keyID *uint
	apiKey := currentKey(c)
	if apiKey != nil {
		keyID = &apiKey.ID
	}

	resp, err := h.Planner.PlanFor(c.Request.Context(), &req, keyID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}

	if apiKey != nil {
		if err := h.Store.RecordUsage(c.Request.Context(), apiKey.ID, len(resp.Calendar), len(req.Persons)); err != nil {
			h.Log.Warnf("Could not record usage for key %d: %v", apiKey.ID, err)
		}
	}
	return resp, true
}

// PlanJSON plans a schedule and returns it as JSON
func (h *Handler) PlanJSON(c *gin.Context) {
	resp, ok := h.plan(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PlanCSV plans a schedule and returns it as CSV, one row per served seat
func (h *Handler) PlanCSV(c *gin.Context) {
	resp, ok := h.plan(c)
	if !ok {
		return
	}

	var outCSV strings.Builder
	writer := csv.NewWriter(&outCSV)
	_ = writer.Write([]string{"date", "time", "slot_id", "location", "comment", "seat", "server"})
	for _, mass := range resp.Calendar {
		for seat, name := range mass.Servers {
			_ = writer.Write([]string{
				mass.Date,
				mass.Time,
				mass.SlotID,
				mass.Location,
				mass.Comment,
				strconv.Itoa(seat + 1),
				name,
			})
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"run_id": resp.RunID, "csv": outCSV.String()})
}

// GetPlan returns a stored plan created with the caller's key
func (h *Handler) GetPlan(c *gin.Context) {
	apiKey := currentKey(c)
	if apiKey == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}
	plan, err := h.Store.GetPlanForKey(c.Request.Context(), c.Param("id"), apiKey.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// MetricsHandler serves the Prometheus metrics
func (h *Handler) MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(h.Metrics.Handler())
}
