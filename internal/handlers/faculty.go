package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/pipeline"
	"rfp-digest-go/internal/repository"
)

// ListFaculty returns the roster, filtered by active flag and search text
func (h *Handlers) ListFaculty(c *gin.Context) {
	ctx := c.Request.Context()
	q := strings.TrimSpace(c.Query("q"))

	var (
		profiles []models.FacultyProfile
		err      error
	)
	if q != "" {
		profiles, err = h.repo.SearchProfiles(ctx, q)
	} else {
		profiles, err = h.repo.ListProfiles(ctx, c.Query("active") == "true")
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch faculty",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	schedules, err := h.repo.SchedulesByEmail(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch schedules",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	counts, err := h.repo.AttemptCountsByEmail(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch attempt counts",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]models.FacultyResponse, 0, len(profiles))
	for _, p := range profiles {
		responses = append(responses, facultyResponse(p, schedules[p.Email], counts[p.Email]))
	}
	c.JSON(http.StatusOK, responses)
}

// GetFaculty returns one profile with its schedule and recent attempts
func (h *Handlers) GetFaculty(c *gin.Context) {
	ctx := c.Request.Context()
	email := normalizeEmailParam(c)

	profile, err := h.repo.GetProfile(ctx, email)
	if errors.Is(err, repository.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Faculty not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load faculty",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	schedule, err := h.repo.GetSchedule(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrScheduleNotFound) {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load schedule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	attempts, err := h.repo.RecentAttempts(ctx, email, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load attempts",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":         profile,
		"schedule":        schedule,
		"recent_attempts": attempts,
	})
}

// UpdateFaculty toggles a profile's active flag; deactivating pauses the
// schedule, reactivating returns it to pending
func (h *Handlers) UpdateFaculty(c *gin.Context) {
	ctx := c.Request.Context()
	email := normalizeEmailParam(c)

	var req models.UpdateFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if err := h.repo.SetProfileActive(ctx, email, *req.Active); err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "Faculty not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update faculty",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	h.respondWithFaculty(c, email)
}

// UpdateSchedule adjusts the cadence and/or next due date
func (h *Handlers) UpdateSchedule(c *gin.Context) {
	ctx := c.Request.Context()
	email := normalizeEmailParam(c)

	var req models.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}
	if req.Cadence == nil && req.NextDueDate == nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Provide a cadence and/or a next_due_date",
			Code:    http.StatusBadRequest,
		})
		return
	}

	var cadence *models.Cadence
	if req.Cadence != nil {
		cad := models.Cadence(strings.ToLower(strings.TrimSpace(*req.Cadence)))
		switch cad {
		case models.CadenceWeekly, models.CadenceBiweekly, models.CadenceMonthly, models.CadenceOneResponse:
			cadence = &cad
		default:
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: "Cadence must be weekly, biweekly, monthly, or one response",
				Code:    http.StatusBadRequest,
			})
			return
		}
	}

	var nextDue *time.Time
	if req.NextDueDate != nil {
		due, err := time.Parse(models.DateOnly, *req.NextDueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: "next_due_date must be YYYY-MM-DD",
				Code:    http.StatusBadRequest,
			})
			return
		}
		nextDue = &due
	}

	if err := h.repo.UpdateSchedule(ctx, email, cadence, nextDue); err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "Schedule not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update schedule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	h.respondWithFaculty(c, email)
}

// ResetSchedule returns a schedule to due tomorrow, pending, zero retries
func (h *Handlers) ResetSchedule(c *gin.Context) {
	ctx := c.Request.Context()
	email := normalizeEmailParam(c)

	if err := h.repo.ResetSchedule(ctx, email); err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "Schedule not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to reset schedule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	h.respondWithFaculty(c, email)
}

// ProcessFaculty runs the full digest pipeline for one faculty right now,
// regardless of the schedule
func (h *Handlers) ProcessFaculty(c *gin.Context) {
	ctx := c.Request.Context()
	email := normalizeEmailParam(c)

	profile, err := h.repo.GetProfile(ctx, email)
	if errors.Is(err, repository.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Faculty not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load faculty",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if !profile.Active {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "faculty_inactive",
			Message: "Faculty is deactivated; reactivate before processing",
			Code:    http.StatusConflict,
		})
		return
	}

	schedule, err := h.repo.GetSchedule(ctx, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load schedule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	result := h.pipe.Process(ctx, models.DueFaculty{Profile: *profile, Schedule: *schedule})

	status := http.StatusOK
	if result.Outcome == pipeline.OutcomeFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, processResponse(result))
}

func processResponse(result pipeline.Result) gin.H {
	resp := gin.H{
		"email":           result.Email,
		"outcome":         string(result.Outcome),
		"tokens_used":     result.TokensUsed,
		"elapsed_seconds": result.Elapsed.Seconds(),
	}
	if result.MessageID != "" {
		resp["message_id"] = result.MessageID
	}
	if result.Err != nil {
		resp["error"] = result.Err.Error()
	}
	return resp
}

// respondWithFaculty reloads the profile and schedule after a mutation so
// the caller sees the stored state.
func (h *Handlers) respondWithFaculty(c *gin.Context, email string) {
	ctx := c.Request.Context()

	profile, err := h.repo.GetProfile(ctx, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to reload faculty",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	var sched models.ScheduleRecord
	if s, err := h.repo.GetSchedule(ctx, email); err == nil {
		sched = *s
	}

	counts, err := h.repo.AttemptCountsByEmail(ctx)
	if err != nil {
		counts = map[string]int64{}
	}

	c.JSON(http.StatusOK, facultyResponse(*profile, sched, counts[email]))
}

func facultyResponse(p models.FacultyProfile, sched models.ScheduleRecord, attempts int64) models.FacultyResponse {
	resp := models.FacultyResponse{
		Email:        p.Email,
		Name:         p.Name,
		ResearchArea: p.ResearchArea,
		Cadence:      p.Cadence,
		Active:       p.Active,
		AttemptCount: attempts,
	}
	if sched.FacultyEmail != "" {
		nextDue := sched.NextDueDate
		resp.LastSent = sched.LastSentDate
		resp.NextDue = &nextDue
		resp.Status = string(sched.Status)
		resp.RetryCount = sched.RetryCount
	}
	return resp
}

func normalizeEmailParam(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.Param("email")))
}
