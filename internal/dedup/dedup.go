package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"rfp-digest-go/internal/models"
)

// DefaultWindow is how far back a successful send can suppress a resend.
const DefaultWindow = 7 * 24 * time.Hour

// LedgerReader is the slice of the attempt ledger the suppressor reads.
type LedgerReader interface {
	LatestSuccess(ctx context.Context, email string, since time.Time) (*models.EmailAttempt, error)
}

// Fingerprint returns the stable hex digest of digest content. No
// normalization: byte-identical content, identical fingerprint.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Suppressor decides whether freshly generated content repeats what a
// faculty member already received recently.
type Suppressor struct {
	ledger LedgerReader
	window time.Duration
	now    func() time.Time
}

func NewSuppressor(ledger LedgerReader, window time.Duration) *Suppressor {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Suppressor{ledger: ledger, window: window, now: time.Now}
}

// WithClock overrides the time source. Returns the suppressor for chaining.
func (s *Suppressor) WithClock(now func() time.Time) *Suppressor {
	s.now = now
	return s
}

// IsDuplicate reports whether the content matches the most recent
// successful send inside the lookback window. Only successes count: a
// failed or skipped attempt never blocks a send. The computed fingerprint
// is returned either way so callers can record it.
func (s *Suppressor) IsDuplicate(ctx context.Context, email, content string) (bool, string, error) {
	hash := Fingerprint(content)

	cutoff := s.now().Add(-s.window)
	last, err := s.ledger.LatestSuccess(ctx, email, cutoff)
	if err != nil {
		return false, hash, err
	}
	if last == nil {
		return false, hash, nil
	}
	return last.ContentHash == hash, hash, nil
}
