package models

import (
	"strings"
	"time"
)

// DateOnly is the layout used for schedule dates in the API and CLI.
const DateOnly = "2006-01-02"

// DateOf truncates a timestamp to its calendar date in UTC. Schedule math
// compares dates, never times of day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EmailLocalPart returns the part of an address before the @, lowered and
// stripped of path-hostile characters.
func EmailLocalPart(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	local = strings.ToLower(strings.TrimSpace(local))

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
