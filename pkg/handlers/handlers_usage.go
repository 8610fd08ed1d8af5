package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetMyUsage returns usage stats and recent plans for the authenticated API key
func (h *Handler) GetMyUsage(c *gin.Context) {
	apiKey := currentKey(c)
	if apiKey == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}

	report, err := h.Store.UsageReport(c.Request.Context(), apiKey.ID, usageDays)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key_name":      apiKey.Name,
		"rate_limit":    apiKey.RateLimit,
		"usage_history": report.History,
		"totals":        report.Totals,
		"recent_plans":  report.Plans,
	})
}
