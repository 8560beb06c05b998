package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rfp-digest-go/internal/models"
)

// Outcome is the terminal classification of one pipeline run.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Store is the slice of the schedule store the pipeline writes to. Every
// terminal transition goes through RecordAttempt and Advance; nothing else
// in the system writes those rows during a run.
type Store interface {
	MarkProcessing(ctx context.Context, email string) error
	Advance(ctx context.Context, email string, success bool) error
	RecordAttempt(ctx context.Context, attempt *models.EmailAttempt) error
}

// Suppressor decides whether generated content repeats a recent send.
type Suppressor interface {
	IsDuplicate(ctx context.Context, email, content string) (bool, string, error)
}

// Generator produces the digest content for one faculty profile.
type Generator interface {
	Generate(ctx context.Context, profile *models.FacultyProfile) (*models.GenerationResult, error)
}

// Deliverer sends the digest and reports the artifacts it wrote.
type Deliverer interface {
	Deliver(ctx context.Context, profile *models.FacultyProfile, content string) (*models.DeliveryResult, error)
}

// Result reports what happened to one faculty member.
type Result struct {
	Email      string
	Outcome    Outcome
	Hash       string
	MessageID  string
	TokensUsed int
	Elapsed    time.Duration
	Err        error
}

// Pipeline runs the per-faculty state machine: claim the schedule, generate
// content, suppress duplicates, deliver, then record exactly one ledger row
// and one schedule advance. Collaborator failures terminate the attempt as
// failed; they never escape to the caller.
type Pipeline struct {
	store     Store
	suppress  Suppressor
	generator Generator
	deliverer Deliverer
}

func New(store Store, suppress Suppressor, generator Generator, deliverer Deliverer) *Pipeline {
	return &Pipeline{
		store:     store,
		suppress:  suppress,
		generator: generator,
		deliverer: deliverer,
	}
}

// Process runs one faculty member through the pipeline to a terminal
// outcome.
func (p *Pipeline) Process(ctx context.Context, due models.DueFaculty) Result {
	email := due.Profile.Email
	start := time.Now()

	logrus.Infof("Processing faculty %s (due %s, retry %d)",
		email, due.Schedule.NextDueDate.Format(models.DateOnly), due.Schedule.RetryCount)

	// Claim the row. If even this write fails the attempt is abandoned
	// without an advance; the stale-reclaim pass returns the row to
	// pending.
	if err := p.store.MarkProcessing(ctx, email); err != nil {
		logrus.Errorf("Failed to claim schedule for %s: %v", email, err)
		return Result{Email: email, Outcome: OutcomeFailed, Elapsed: time.Since(start), Err: err}
	}

	gen, err := p.generator.Generate(ctx, &due.Profile)
	if err != nil {
		logrus.Errorf("Digest generation failed for %s: %v", email, err)
		return p.recordFailure(ctx, email, "", nil, 0, err, start)
	}

	dup, hash, err := p.suppress.IsDuplicate(ctx, email, gen.Content)
	if err != nil {
		// A broken lookup must not block the send; treat as unique.
		logrus.Warnf("Duplicate lookup failed for %s, proceeding with send: %v", email, err)
		dup = false
	}
	if dup {
		logrus.Infof("Skipping duplicate digest for %s", email)
		return p.recordSkip(ctx, email, hash, gen.TokensUsed, start)
	}

	delivery, err := p.deliverer.Deliver(ctx, &due.Profile, gen.Content)
	if err != nil {
		logrus.Errorf("Digest delivery failed for %s: %v", email, err)
		return p.recordFailure(ctx, email, hash, delivery, gen.TokensUsed, err, start)
	}

	return p.recordSuccess(ctx, email, hash, delivery, gen.TokensUsed, start)
}

// recordFailure is the terminal write for the failure branches: a failed
// ledger row plus a next-day retry advance. delivery may be nil when the
// failure happened before delivery; when delivery ran, whatever artifacts
// it managed to write are kept in the ledger.
func (p *Pipeline) recordFailure(ctx context.Context, email, hash string, delivery *models.DeliveryResult, tokens int, cause error, start time.Time) Result {
	elapsed := time.Since(start)

	attempt := &models.EmailAttempt{
		FacultyEmail:      email,
		Status:            models.AttemptFailed,
		ContentHash:       hash,
		ErrorMessage:      cause.Error(),
		ProcessingSeconds: elapsed.Seconds(),
		TokensUsed:        tokens,
	}
	if delivery != nil {
		attempt.MarkdownPath = delivery.Artifacts.Markdown
		attempt.HTMLPath = delivery.Artifacts.HTML
		attempt.FacultyFolder = delivery.Artifacts.Folder
	}

	err := cause
	if recordErr := p.store.RecordAttempt(ctx, attempt); recordErr != nil {
		logrus.Errorf("Failed to record failed attempt for %s: %v", email, recordErr)
		err = recordErr
	}
	if advErr := p.store.Advance(ctx, email, false); advErr != nil {
		logrus.Errorf("Failed to advance schedule after failure for %s: %v", email, advErr)
		err = advErr
	}

	return Result{Email: email, Outcome: OutcomeFailed, Hash: hash, TokensUsed: tokens, Elapsed: elapsed, Err: err}
}

// recordSkip is the terminal write for a duplicate: the schedule advances
// exactly as if the digest had been sent, so the faculty member is not
// re-checked every day inside the dedup window.
func (p *Pipeline) recordSkip(ctx context.Context, email, hash string, tokens int, start time.Time) Result {
	elapsed := time.Since(start)

	attempt := &models.EmailAttempt{
		FacultyEmail:      email,
		Status:            models.AttemptSkippedDuplicate,
		ContentHash:       hash,
		ProcessingSeconds: elapsed.Seconds(),
		TokensUsed:        tokens,
	}

	var err error
	if recordErr := p.store.RecordAttempt(ctx, attempt); recordErr != nil {
		logrus.Errorf("Failed to record skipped attempt for %s: %v", email, recordErr)
		err = recordErr
	}
	if advErr := p.store.Advance(ctx, email, true); advErr != nil {
		logrus.Errorf("Failed to advance schedule after skip for %s: %v", email, advErr)
		err = advErr
	}

	return Result{Email: email, Outcome: OutcomeSkipped, Hash: hash, TokensUsed: tokens, Elapsed: elapsed, Err: err}
}

func (p *Pipeline) recordSuccess(ctx context.Context, email, hash string, delivery *models.DeliveryResult, tokens int, start time.Time) Result {
	elapsed := time.Since(start)

	attempt := &models.EmailAttempt{
		FacultyEmail:      email,
		Status:            models.AttemptSuccess,
		ContentHash:       hash,
		MessageID:         delivery.MessageID,
		MarkdownPath:      delivery.Artifacts.Markdown,
		HTMLPath:          delivery.Artifacts.HTML,
		FacultyFolder:     delivery.Artifacts.Folder,
		ProcessingSeconds: elapsed.Seconds(),
		TokensUsed:        tokens,
	}

	var err error
	if recordErr := p.store.RecordAttempt(ctx, attempt); recordErr != nil {
		logrus.Errorf("Failed to record successful attempt for %s: %v", email, recordErr)
		err = recordErr
	}
	if advErr := p.store.Advance(ctx, email, true); advErr != nil {
		logrus.Errorf("Failed to advance schedule after send for %s: %v", email, advErr)
		err = advErr
	}

	logrus.Infof("Digest sent to %s (message %s, %d tokens, %.1fs)",
		email, delivery.MessageID, tokens, elapsed.Seconds())

	return Result{
		Email:      email,
		Outcome:    OutcomeSent,
		Hash:       hash,
		MessageID:  delivery.MessageID,
		TokensUsed: tokens,
		Elapsed:    elapsed,
		Err:        err,
	}
}
