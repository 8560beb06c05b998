package models

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Cadence is the normalized digest frequency chosen on the intake form.
type Cadence string

const (
	CadenceWeekly      Cadence = "weekly"
	CadenceBiweekly    Cadence = "biweekly"
	CadenceMonthly     Cadence = "monthly"
	CadenceOneResponse Cadence = "one response"
)

// DefaultCadenceDays is the interval applied to any cadence without an
// explicit mapping, including "one response".
const DefaultCadenceDays = 14

var cadenceDays = map[Cadence]int{
	CadenceWeekly:   7,
	CadenceBiweekly: 14,
	CadenceMonthly:  30,
}

// Days returns the advance interval for the cadence. Unknown values fall
// back to the 14-day default rather than erroring.
func (c Cadence) Days() int {
	if days, ok := cadenceDays[c]; ok {
		return days
	}
	return DefaultCadenceDays
}

// NormalizeCadence maps free-form intake text onto a canonical cadence.
// The biweekly variants must be checked before "weekly" because they
// contain it as a substring.
func NormalizeCadence(raw string) Cadence {
	freq := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.Contains(freq, "biweekly"),
		strings.Contains(freq, "bi-weekly"),
		strings.Contains(freq, "bi weekly"):
		return CadenceBiweekly
	case strings.Contains(freq, "one response"),
		strings.Contains(freq, "one-response"):
		return CadenceOneResponse
	case strings.Contains(freq, "monthly"):
		return CadenceMonthly
	case strings.Contains(freq, "weekly"):
		return CadenceWeekly
	}

	if freq != "" {
		logrus.Warnf("Unrecognized cadence %q, defaulting to biweekly", raw)
	}
	return CadenceBiweekly
}
