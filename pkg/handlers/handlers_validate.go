package handlers

import (
	"net/http"

	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// ValidateInput checks a plan request without planning it
func (h *Handler) ValidateInput(c *gin.Context) {
	var input models.PlanRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	stats, err := h.Planner.Validate(&input)
	if err != nil {
		if statusFor(err) != http.StatusBadRequest {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"stats": stats,
	})
}
