package generator

import (
	"fmt"
	"strings"
	"time"

	"rfp-digest-go/internal/models"
)

// buildPrompt assembles the research prompt from the faculty intake data.
// The digest is asked for as markdown with a fixed table layout so the
// mailer can render and count opportunities.
func buildPrompt(profile *models.FacultyProfile, asOf time.Time, institution string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a research development officer at %s helping faculty find funding.\n", institution)
	fmt.Fprintf(&b, "Today's date is %s.\n\n", asOf.Format("January 2, 2006"))

	fmt.Fprintf(&b, "Find currently open funding opportunities (RFPs, grants, solicitations) for this faculty member:\n\n")
	fmt.Fprintf(&b, "- Research area: %s\n", orDefault(profile.ResearchArea, "Not specified"))
	fmt.Fprintf(&b, "- Keywords: %s\n", orDefault(profile.Keywords, "Not specified"))
	fmt.Fprintf(&b, "- Eligibility constraints: %s\n", orDefault(profile.EligibilityConstraints, "No constraints specified"))
	fmt.Fprintf(&b, "- Early career: %s\n", orDefault(profile.EarlyCareer, "Not specified"))
	fmt.Fprintf(&b, "- Funding types of interest: %s\n", orDefault(profile.FundingTypes, "Any"))
	fmt.Fprintf(&b, "- Preferred award size: %s\n", orDefault(profile.RFPSize, "Any"))
	fmt.Fprintf(&b, "- Submission timeline: %s\n", orDefault(profile.SubmissionTimeline, "Any"))
	fmt.Fprintf(&b, "- Preferred funding sources: %s\n", orDefault(profile.PreferredFundingSources, "Any"))
	if profile.AdditionalInfo != "" {
		fmt.Fprintf(&b, "- Additional context: %s\n", profile.AdditionalInfo)
	}

	b.WriteString("\nRequirements:\n")
	b.WriteString("1. Only include opportunities whose deadlines are after today.\n")
	b.WriteString("2. Respect the eligibility constraints above; exclude anything the faculty member cannot apply for.\n")
	b.WriteString("3. Rank by fit to the research area and keywords.\n")
	b.WriteString("4. Present the results as a markdown table with exactly these columns:\n")
	b.WriteString("   | Opportunity Name | Sponsor | Deadline | Award Amount | Fit Rationale | Link |\n")
	b.WriteString("5. After the table, add a short paragraph of next-step suggestions.\n")
	b.WriteString("6. If nothing suitable is open, say so explicitly instead of padding the table.\n")

	return b.String()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
