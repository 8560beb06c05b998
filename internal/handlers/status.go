package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rfp-digest-go/internal/models"
)

// GetStatus returns the operator status snapshot
func (h *Handlers) GetStatus(c *gin.Context) {
	status, err := h.reporter.SystemStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to build status",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetReport returns the daily report, defaulting to today
func (h *Handlers) GetReport(c *gin.Context) {
	date := time.Now()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse(models.DateOnly, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: "date must be YYYY-MM-DD",
				Code:    http.StatusBadRequest,
			})
			return
		}
		date = parsed
	}

	report, err := h.reporter.DailyReport(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to build report",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, report)
}
