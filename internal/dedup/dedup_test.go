package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfp-digest-go/internal/models"
)

var dedupNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type stubLedger struct {
	attempt *models.EmailAttempt
	err     error
	since   time.Time
}

func (s *stubLedger) LatestSuccess(ctx context.Context, email string, since time.Time) (*models.EmailAttempt, error) {
	s.since = since
	return s.attempt, s.err
}

func testSuppressor(ledger *stubLedger, window time.Duration) *Suppressor {
	return NewSuppressor(ledger, window).WithClock(func() time.Time { return dedupNow })
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("digest body")
	b := Fingerprint("digest body")
	c := Fingerprint("digest body.")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestIsDuplicateNoPriorSuccess(t *testing.T) {
	s := testSuppressor(&stubLedger{}, DefaultWindow)

	dup, hash, err := s.IsDuplicate(context.Background(), "a@x.edu", "content")
	require.NoError(t, err)

	assert.False(t, dup)
	assert.Equal(t, Fingerprint("content"), hash)
}

func TestIsDuplicateMatchingHash(t *testing.T) {
	ledger := &stubLedger{attempt: &models.EmailAttempt{ContentHash: Fingerprint("content")}}
	s := testSuppressor(ledger, DefaultWindow)

	dup, _, err := s.IsDuplicate(context.Background(), "a@x.edu", "content")
	require.NoError(t, err)

	assert.True(t, dup)
	assert.Equal(t, dedupNow.Add(-DefaultWindow), ledger.since, "lookback window should bound the query")
}

func TestIsDuplicateDifferentHash(t *testing.T) {
	ledger := &stubLedger{attempt: &models.EmailAttempt{ContentHash: Fingerprint("old content")}}
	s := testSuppressor(ledger, DefaultWindow)

	dup, _, err := s.IsDuplicate(context.Background(), "a@x.edu", "new content")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIsDuplicateLedgerError(t *testing.T) {
	ledger := &stubLedger{err: errors.New("db down")}
	s := testSuppressor(ledger, DefaultWindow)

	dup, hash, err := s.IsDuplicate(context.Background(), "a@x.edu", "content")

	assert.Error(t, err)
	assert.False(t, dup)
	assert.NotEmpty(t, hash, "fingerprint is still returned so the attempt can be recorded")
}

func TestZeroWindowFallsBackToDefault(t *testing.T) {
	ledger := &stubLedger{}
	s := testSuppressor(ledger, 0)

	_, _, err := s.IsDuplicate(context.Background(), "a@x.edu", "content")
	require.NoError(t, err)
	assert.Equal(t, dedupNow.Add(-DefaultWindow), ledger.since)
}
