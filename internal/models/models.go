package models

import (
	"time"

	"gorm.io/gorm"
)

// ScheduleStatus is the lifecycle state of a faculty's email schedule.
type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "pending"
	ScheduleProcessing ScheduleStatus = "processing"
	ScheduleSent       ScheduleStatus = "sent"
	ScheduleFailed     ScheduleStatus = "failed"
	SchedulePaused     ScheduleStatus = "paused"
)

// AttemptStatus is the recorded outcome of a single digest attempt.
type AttemptStatus string

const (
	AttemptSuccess          AttemptStatus = "success"
	AttemptFailed           AttemptStatus = "failed"
	AttemptSkippedDuplicate AttemptStatus = "skipped_duplicate"
)

// RunTrigger records what started a dispatch run.
type RunTrigger string

const (
	TriggerCron RunTrigger = "cron"
	TriggerAPI  RunTrigger = "api"
	TriggerCLI  RunTrigger = "cli"
)

// FacultyProfile holds the intake data used to personalize a faculty
// member's funding-opportunity digest.
type FacultyProfile struct {
	ID                      uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Email                   string         `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Name                    string         `json:"name" gorm:"type:varchar(255)"`
	ResearchArea            string         `json:"research_area" gorm:"type:text"`
	Keywords                string         `json:"keywords" gorm:"type:text"`
	EligibilityConstraints  string         `json:"eligibility_constraints" gorm:"type:text"`
	EarlyCareer             string         `json:"early_career" gorm:"type:varchar(255)"`
	FundingTypes            string         `json:"funding_types" gorm:"type:text"`
	RFPSize                 string         `json:"rfp_size" gorm:"type:varchar(255)"`
	SubmissionTimeline      string         `json:"submission_timeline" gorm:"type:varchar(255)"`
	PreferredFundingSources string         `json:"preferred_funding_sources" gorm:"type:text"`
	AdditionalInfo          string         `json:"additional_info" gorm:"type:text"`
	DocumentsInfo           string         `json:"documents_info" gorm:"type:text"`
	Cadence                 Cadence        `json:"cadence" gorm:"type:varchar(50);not null;default:'biweekly'"`
	Active                  bool           `json:"active" gorm:"default:true"`
	LastFormSubmission      *time.Time     `json:"last_form_submission"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
	DeletedAt               gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for FacultyProfile
func (FacultyProfile) TableName() string {
	return "faculty_profiles"
}

// Username returns the sanitized local part of the faculty email, used
// for artifact folder and file names.
func (p *FacultyProfile) Username() string {
	return EmailLocalPart(p.Email)
}

// DisplayName returns the best human-readable name for the faculty.
func (p *FacultyProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Username()
}

// ScheduleRecord tracks when a faculty member is next due for a digest.
type ScheduleRecord struct {
	ID           uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	FacultyEmail string         `json:"faculty_email" gorm:"type:varchar(255);not null;uniqueIndex"`
	LastSentDate *time.Time     `json:"last_sent_date"`
	NextDueDate  time.Time      `json:"next_due_date" gorm:"not null;index"`
	Cadence      Cadence        `json:"cadence" gorm:"type:varchar(50);not null;default:'biweekly'"`
	Status       ScheduleStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	RetryCount   int            `json:"retry_count" gorm:"not null;default:0"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName specifies the table name for ScheduleRecord
func (ScheduleRecord) TableName() string {
	return "email_schedules"
}

// EmailAttempt is one append-only ledger row per digest attempt, successful
// or not.
type EmailAttempt struct {
	ID                uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	FacultyEmail      string        `json:"faculty_email" gorm:"type:varchar(255);not null;index"`
	SentDate          time.Time     `json:"sent_date" gorm:"not null;index"`
	Status            AttemptStatus `json:"status" gorm:"type:varchar(30);not null"`
	ContentHash       string        `json:"content_hash" gorm:"type:varchar(64);index"`
	MessageID         string        `json:"message_id" gorm:"type:varchar(255)"`
	MarkdownPath      string        `json:"markdown_path" gorm:"type:text"`
	HTMLPath          string        `json:"html_path" gorm:"type:text"`
	FacultyFolder     string        `json:"faculty_folder" gorm:"type:text"`
	ErrorMessage      string        `json:"error_message" gorm:"type:text"`
	ProcessingSeconds float64       `json:"processing_seconds"`
	TokensUsed        int           `json:"tokens_used"`
	CreatedAt         time.Time     `json:"created_at"`
}

// TableName specifies the table name for EmailAttempt
func (EmailAttempt) TableName() string {
	return "email_attempts"
}

// DispatchRun summarizes one batch dispatch cycle.
type DispatchRun struct {
	ID           uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Trigger      RunTrigger `json:"trigger" gorm:"type:varchar(20);not null"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null"`
	FinishedAt   *time.Time `json:"finished_at"`
	Due          int        `json:"due"`
	Sent         int        `json:"sent"`
	Failed       int        `json:"failed"`
	Skipped      int        `json:"skipped"`
	Reclaimed    int        `json:"reclaimed"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName specifies the table name for DispatchRun
func (DispatchRun) TableName() string {
	return "dispatch_runs"
}

// DueFaculty pairs a due schedule with its faculty profile as returned by
// the due-set selection.
type DueFaculty struct {
	Profile  FacultyProfile
	Schedule ScheduleRecord
}

// GenerationResult is what the digest generator returns on success.
type GenerationResult struct {
	Content    string
	TokensUsed int
	Elapsed    time.Duration
}

// ArtifactPaths locates the digest files written for one attempt.
type ArtifactPaths struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Folder   string `json:"folder"`
}

// DeliveryResult is what the mailer returns. Artifacts may be populated
// even when the send itself failed.
type DeliveryResult struct {
	MessageID string
	Artifacts ArtifactPaths
}

// UpdateFacultyRequest toggles a faculty profile's active flag.
type UpdateFacultyRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// UpdateScheduleRequest adjusts a schedule's cadence and/or next due date.
type UpdateScheduleRequest struct {
	Cadence     *string `json:"cadence"`
	NextDueDate *string `json:"next_due_date"` // YYYY-MM-DD
}

// FacultyResponse is the list/detail representation of a profile.
type FacultyResponse struct {
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	ResearchArea string     `json:"research_area"`
	Cadence      Cadence    `json:"cadence"`
	Active       bool       `json:"active"`
	LastSent     *time.Time `json:"last_sent,omitempty"`
	NextDue      *time.Time `json:"next_due,omitempty"`
	Status       string     `json:"status,omitempty"`
	RetryCount   int        `json:"retry_count"`
	AttemptCount int64      `json:"attempt_count"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Details   map[string]string `json:"details,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
