package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/scheduler"
)

// TriggerDispatch starts a full dispatch cycle in the background
func (h *Handlers) TriggerDispatch(c *gin.Context) {
	if err := h.scheduler.TriggerDispatch(models.TriggerAPI); err != nil {
		if errors.Is(err, scheduler.ErrCycleRunning) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "cycle_running",
				Message: "A dispatch cycle is already running",
				Code:    http.StatusConflict,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "dispatch_error",
			Message: "Failed to start dispatch cycle",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatch started"})
}

// GetRuns returns dispatch-run history, newest first
func (h *Handlers) GetRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "limit must be a non-negative integer",
			Code:    http.StatusBadRequest,
		})
		return
	}

	runs, err := h.repo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch runs",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetAttempts returns a slice of the attempt ledger
func (h *Handlers) GetAttempts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "limit must be a non-negative integer",
			Code:    http.StatusBadRequest,
		})
		return
	}

	attempts, err := h.repo.RecentAttempts(c.Request.Context(), c.Query("email"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch attempts",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, attempts)
}
