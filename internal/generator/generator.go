package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/models"
)

// RetryPolicy controls generation retries. Delays double per attempt:
// base, 2*base, 4*base. This is independent of the schedule-level
// next-day retry, which only happens after the whole call gives up.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait before retrying after the given 0-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * (1 << attempt)
}

// Generator produces personalized funding-opportunity digests with the
// Gemini API.
type Generator struct {
	client      *genai.Client
	model       *genai.GenerativeModel
	modelName   string
	retry       RetryPolicy
	timeout     time.Duration
	institution string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	// call performs one generation attempt; swapped out in tests.
	call func(ctx context.Context, prompt string) (string, int, error)
}

// New creates a Generator from config.
func New(ctx context.Context, cfg *config.GeneratorConfig, institution string) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generator API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(0.3)

	g := &Generator{
		client:    client,
		model:     model,
		modelName: cfg.Model,
		retry: RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryDelayBase,
		},
		timeout:     cfg.Timeout,
		institution: institution,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	g.call = g.generateOnce
	return g, nil
}

// WithClock overrides the time source used for prompt dates.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the digest for one faculty member. It retries transient
// API failures per the retry policy and reports content, token usage, and
// elapsed time.
func (g *Generator) Generate(ctx context.Context, profile *models.FacultyProfile) (*models.GenerationResult, error) {
	prompt := buildPrompt(profile, g.now(), g.institution)
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		content, tokens, err := g.call(ctx, prompt)
		if err == nil {
			return &models.GenerationResult{
				Content:    content,
				TokensUsed: tokens,
				Elapsed:    time.Since(start),
			}, nil
		}

		lastErr = err
		logrus.Warnf("Digest generation for %s failed (attempt %d/%d): %v",
			profile.Email, attempt+1, g.retry.MaxAttempts, err)

		if attempt < g.retry.MaxAttempts-1 {
			wait := g.retry.Delay(attempt)
			logrus.Infof("Retrying generation for %s in %v", profile.Email, wait)
			if err := g.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("generation failed after %d attempts: %w", g.retry.MaxAttempts, lastErr)
}

func (g *Generator) generateOnce(ctx context.Context, prompt string) (string, int, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.model.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		return "", 0, fmt.Errorf("gemini request failed: %w", err)
	}

	content := extractText(resp)
	if content == "" {
		return "", 0, fmt.Errorf("gemini returned empty content")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return content, tokens, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var out string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out
}

// TestConnection verifies the API key and model are usable.
func (g *Generator) TestConnection(ctx context.Context) error {
	if _, err := g.model.CountTokens(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("failed to reach Gemini API: %w", err)
	}
	return nil
}

// ModelName reports the configured model, for status endpoints.
func (g *Generator) ModelName() string {
	return g.modelName
}

// Close releases the underlying API client.
func (g *Generator) Close() error {
	return g.client.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
