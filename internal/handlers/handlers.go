package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"rfp-digest-go/internal/pipeline"
	"rfp-digest-go/internal/reporter"
	"rfp-digest-go/internal/repository"
	"rfp-digest-go/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	repo      *repository.Repository
	pipe      *pipeline.Pipeline
	reporter  *reporter.Reporter
	scheduler *scheduler.Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, repo *repository.Repository, pipe *pipeline.Pipeline, rep *reporter.Reporter, s *scheduler.Scheduler) *Handlers {
	return &Handlers{
		db:        db,
		repo:      repo,
		pipe:      pipe,
		reporter:  rep,
		scheduler: s,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/health", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Reporting
		api.GET("/status", h.GetStatus)
		api.GET("/report", h.GetReport)

		// Faculty roster and schedules
		api.GET("/faculty", h.ListFaculty)
		api.GET("/faculty/:email", h.GetFaculty)
		api.PATCH("/faculty/:email", h.UpdateFaculty)
		api.PUT("/faculty/:email/schedule", h.UpdateSchedule)
		api.POST("/faculty/:email/schedule/reset", h.ResetSchedule)
		api.POST("/faculty/:email/process", h.ProcessFaculty)

		// Dispatch
		api.POST("/dispatch", h.TriggerDispatch)
		api.GET("/runs", h.GetRuns)
		api.GET("/attempts", h.GetAttempts)

		// Scheduler control
		api.GET("/scheduler", h.GetSchedulerStatus)
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
	}
}
