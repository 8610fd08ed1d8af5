package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/arnavshah/mass-scheduler-go/pkg/auth"
	"github.com/arnavshah/mass-scheduler-go/pkg/database"
	"github.com/gin-gonic/gin"
)

const usageDays = 30

// Login exchanges admin credentials for a bearer token
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.Auth.Login(h.DB, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.Log.WithField("username", req.Username).Warnf("Rejected admin login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// GenerateKey issues an HMAC key for a parish or planner instance
func (h *Handler) GenerateKey(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		RateLimit int    `json:"rate_limit" binding:"gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RateLimit == 0 {
		req.RateLimit = defaultRateLimit
	}

	key := h.Auth.GenerateHMACKey(req.Name)
	apiKey := &database.APIKey{
		Key:        key,
		Name:       req.Name,
		KeyPreview: auth.KeyPreview(key),
		RateLimit:  req.RateLimit,
	}
	if err := h.Store.CreateKey(c.Request.Context(), apiKey); err != nil {
		h.fail(c, err)
		return
	}

	h.Log.WithField("admin", c.GetString("username")).Infof("Generated API key %q", req.Name)
	// the full key is only ever shown here
	c.JSON(http.StatusOK, gin.H{"id": apiKey.ID, "name": apiKey.Name, "key": key})
}

// ListKeys returns every key with how many plans it stored
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.Store.Keys(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey deletes a key together with its usage history
func (h *Handler) RevokeKey(c *gin.Context) {
	id, ok := keyID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteKey(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.Log.WithField("admin", c.GetString("username")).Infof("Revoked API key %d", id)
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// UpdateKeyLimit changes the daily request limit of a key
func (h *Handler) UpdateKeyLimit(c *gin.Context) {
	id, ok := keyID(c)
	if !ok {
		return
	}
	var req struct {
		RateLimit int `json:"rate_limit" form:"rate_limit"`
	}
	// JSON body or ?rate_limit=
	if err := c.ShouldBindJSON(&req); err != nil {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit is required"})
			return
		}
	}
	if req.RateLimit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate limit"})
		return
	}

	if err := h.Store.SetRateLimit(c.Request.Context(), id, req.RateLimit); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit updated successfully"})
}

// GetUsage reports the request history, totals and latest plans of any key
func (h *Handler) GetUsage(c *gin.Context) {
	id, ok := keyID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key, err := h.Store.Key(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	report, err := h.Store.UsageReport(ctx, id, usageDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":          key,
		"usage":        report.History,
		"totals":       report.Totals,
		"recent_plans": report.Plans,
	})
}

// GetAnyPlan returns a stored plan whichever key created it
func (h *Handler) GetAnyPlan(c *gin.Context) {
	plan, err := h.Store.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func keyID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key id"})
		return 0, false
	}
	return uint(id), true
}
