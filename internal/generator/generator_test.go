package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfp-digest-go/internal/models"
)

var genNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// testGenerator builds a Generator around a scripted call, recording the
// sleeps the retry loop requests instead of waiting them out.
func testGenerator(call func(ctx context.Context, prompt string) (string, int, error), retry RetryPolicy) (*Generator, *[]time.Duration) {
	var slept []time.Duration
	g := &Generator{
		retry: retry,
		now:   func() time.Time { return genNow },
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		call: call,
	}
	return g, &slept
}

func TestRetryPolicyDelayDoubles(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, p.Delay(0))
	assert.Equal(t, 10*time.Second, p.Delay(1))
	assert.Equal(t, 20*time.Second, p.Delay(2))
}

func TestGenerateSucceedsFirstAttempt(t *testing.T) {
	g, slept := testGenerator(func(ctx context.Context, prompt string) (string, int, error) {
		return "digest", 123, nil
	}, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second})

	res, err := g.Generate(context.Background(), &models.FacultyProfile{Email: "a@x.edu"})
	require.NoError(t, err)

	assert.Equal(t, "digest", res.Content)
	assert.Equal(t, 123, res.TokensUsed)
	assert.Empty(t, *slept)
}

func TestGenerateRetriesWithDoublingDelay(t *testing.T) {
	calls := 0
	g, slept := testGenerator(func(ctx context.Context, prompt string) (string, int, error) {
		calls++
		if calls < 3 {
			return "", 0, errors.New("upstream hiccup")
		}
		return "digest", 7, nil
	}, RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second})

	res, err := g.Generate(context.Background(), &models.FacultyProfile{Email: "a@x.edu"})
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, "digest", res.Content)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *slept)
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	calls := 0
	g, slept := testGenerator(func(ctx context.Context, prompt string) (string, int, error) {
		calls++
		return "", 0, errors.New("always down")
	}, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second})

	_, err := g.Generate(context.Background(), &models.FacultyProfile{Email: "a@x.edu"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "always down")
	assert.Equal(t, 3, calls)
	// No sleep after the final attempt.
	assert.Len(t, *slept, 2)
}

func TestGenerateStopsWhenSleepCancelled(t *testing.T) {
	g, _ := testGenerator(func(ctx context.Context, prompt string) (string, int, error) {
		return "", 0, errors.New("transient")
	}, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second})
	g.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := g.Generate(context.Background(), &models.FacultyProfile{Email: "a@x.edu"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPromptIncludesProfileFields(t *testing.T) {
	profile := &models.FacultyProfile{
		Email:                  "a@x.edu",
		ResearchArea:           "Soft robotics",
		Keywords:               "actuators, silicone",
		EligibilityConstraints: "No DoD funding",
		EarlyCareer:            "Yes",
	}

	prompt := buildPrompt(profile, genNow, "ICC")

	assert.Contains(t, prompt, "Soft robotics")
	assert.Contains(t, prompt, "actuators, silicone")
	assert.Contains(t, prompt, "No DoD funding")
	assert.Contains(t, prompt, "March 10, 2025")
	assert.Contains(t, prompt, "| Opportunity Name | Sponsor | Deadline | Award Amount | Fit Rationale | Link |")
}

func TestBuildPromptDefaultsBlankFields(t *testing.T) {
	prompt := buildPrompt(&models.FacultyProfile{Email: "a@x.edu"}, genNow, "ICC")

	assert.Contains(t, prompt, "Research area: Not specified")
	assert.True(t, strings.Contains(prompt, "No constraints specified"))
}
