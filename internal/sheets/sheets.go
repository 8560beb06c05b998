package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/repository"
)

// Intake form header names as they appear in the response sheet's first
// row. Column positions are resolved by name, so reordering columns in
// the sheet is safe; renaming them is not.
const (
	colTimestamp      = "Timestamp"
	colEmail          = "Email Address"
	colName           = "Name"
	colResearchArea   = "Research Area"
	colKeywords       = "Keywords"
	colEligibility    = "Eligibility Constraints"
	colEarlyCareer    = "Early Career Status"
	colFundingTypes   = "Funding Types"
	colRFPSize        = "RFP Size"
	colTimeline       = "Submission Timeline"
	colFundingSources = "Preferred Funding Sources"
	colCadence        = "Email Frequency"
	colAdditionalInfo = "Additional Information"
	colDocuments      = "Documents"
)

// timestampLayouts are the formats Google Forms and manual edits produce,
// tried in order.
var timestampLayouts = []string{
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006",
	"2006-01-02",
}

// SyncStats summarizes one roster sync pass.
type SyncStats struct {
	Processed int `json:"processed"`
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}

// Syncer pulls faculty intake rows from the response spreadsheet and
// upserts them into the database.
type Syncer struct {
	service *sheetsapi.Service
	repo    *repository.Repository
	cfg     *config.SheetsConfig

	now func() time.Time
}

// New creates a Syncer reusing the Gmail OAuth2 credentials, which must
// have been granted the spreadsheets read scope.
func New(gmailCfg *config.GmailConfig, cfg *config.SheetsConfig, repo *repository.Repository) (*Syncer, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     gmailCfg.ClientID,
		ClientSecret: gmailCfg.ClientSecret,
		Scopes:       []string{sheetsapi.SpreadsheetsReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: gmailCfg.RefreshToken,
	}

	service, err := sheetsapi.NewService(ctx, option.WithTokenSource(oauth2Config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &Syncer{
		service: service,
		repo:    repo,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// WithClock overrides the time source used for timestamp fallbacks.
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// Sync fetches the intake sheet and upserts every valid row. Rows without
// a plausible email are counted as errors, not fatal; new faculty get a
// schedule due tomorrow.
func (s *Syncer) Sync(ctx context.Context) (*SyncStats, error) {
	logrus.Infof("Starting roster sync from spreadsheet %s", s.cfg.SpreadsheetID)

	values, err := s.fetchRows(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := s.applyRows(ctx, values)
	if err != nil {
		return nil, err
	}

	logrus.Infof("Roster sync completed: %d processed, %d new, %d updated, %d errors",
		stats.Processed, stats.New, stats.Updated, stats.Errors)
	return stats, nil
}

// applyRows walks the fetched rows (header first) and upserts each one.
func (s *Syncer) applyRows(ctx context.Context, values [][]interface{}) (*SyncStats, error) {
	if len(values) < 2 {
		logrus.Warn("Intake sheet has no data rows")
		return &SyncStats{}, nil
	}

	header := toStrings(values[0])
	idx := indexHeader(header)
	if _, ok := idx[colEmail]; !ok {
		return nil, fmt.Errorf("intake sheet has no %q column", colEmail)
	}

	stats := &SyncStats{}
	for i, raw := range values[1:] {
		row := padRow(toStrings(raw), len(header))
		if isEmptyRow(row) {
			continue
		}

		profile := s.profileFromRow(idx, row)
		if !strings.Contains(profile.Email, "@") {
			logrus.Warnf("Skipping intake row %d: invalid or missing email", i+2)
			stats.Errors++
			continue
		}

		created, err := s.repo.UpsertProfile(ctx, profile)
		if err != nil {
			logrus.Errorf("Failed to upsert profile %s: %v", profile.Email, err)
			stats.Errors++
			continue
		}

		if created {
			if err := s.repo.InitializeSchedule(ctx, profile.Email, profile.Cadence); err != nil {
				logrus.Errorf("Failed to initialize schedule for %s: %v", profile.Email, err)
				stats.Errors++
				continue
			}
			stats.New++
			logrus.Infof("New faculty added: %s", profile.Email)
		} else {
			stats.Updated++
			logrus.Debugf("Faculty updated: %s", profile.Email)
		}
		stats.Processed++
	}

	return stats, nil
}

// fetchRows reads the configured range, falling back to the broad range
// when the configured one errors (tab renames are the usual cause).
func (s *Syncer) fetchRows(ctx context.Context) ([][]interface{}, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, s.cfg.ReadRange).Context(ctx).Do()
	if err == nil {
		return resp.Values, nil
	}
	logrus.Warnf("Configured range %q failed: %v, trying fallback range", s.cfg.ReadRange, err)

	resp, err = s.service.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, s.cfg.FallbackRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read intake sheet %s: %w", s.cfg.SpreadsheetID, err)
	}
	return resp.Values, nil
}

// profileFromRow extracts a faculty profile from one padded data row,
// applying field defaults for blank cells.
func (s *Syncer) profileFromRow(idx map[string]int, row []string) *models.FacultyProfile {
	get := func(col, fallback string) string {
		i, ok := idx[col]
		if !ok {
			return fallback
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return fallback
		}
		return v
	}

	return &models.FacultyProfile{
		Email:                   strings.ToLower(get(colEmail, "")),
		Name:                    get(colName, ""),
		ResearchArea:            get(colResearchArea, ""),
		Keywords:                get(colKeywords, ""),
		EligibilityConstraints:  get(colEligibility, "No constraints specified"),
		EarlyCareer:             get(colEarlyCareer, "Not specified"),
		FundingTypes:            get(colFundingTypes, "General research grants"),
		RFPSize:                 get(colRFPSize, "Any size"),
		SubmissionTimeline:      get(colTimeline, "Flexible timeline"),
		PreferredFundingSources: get(colFundingSources, "Federal agencies (NSF, NIH, etc.)"),
		AdditionalInfo:          get(colAdditionalInfo, ""),
		DocumentsInfo:           get(colDocuments, ""),
		Cadence:                 models.NormalizeCadence(get(colCadence, "")),
		Active:                  true,
		LastFormSubmission:      s.parseTimestamp(get(colTimestamp, "")),
	}
}

// parseTimestamp tries the known sheet layouts and falls back to now.
func (s *Syncer) parseTimestamp(v string) *time.Time {
	if v == "" {
		now := s.now()
		return &now
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	logrus.Warnf("Could not parse intake timestamp %q", v)
	now := s.now()
	return &now
}

// TestConnection verifies the spreadsheet is reachable with the current
// credentials.
func (s *Syncer) TestConnection(ctx context.Context) error {
	meta, err := s.service.Spreadsheets.Get(s.cfg.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to reach intake sheet %s: %w", s.cfg.SpreadsheetID, err)
	}
	title := "unknown"
	if meta.Properties != nil {
		title = meta.Properties.Title
	}
	logrus.Infof("Connected to intake sheet %q", title)
	return nil
}

// indexHeader maps trimmed header names onto column positions. The first
// occurrence of a duplicated name wins.
func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	return idx
}

// toStrings converts one row of the values API response.
func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = fmt.Sprint(cell)
	}
	return out
}

// padRow extends a short row with empty cells so header positions always
// resolve.
func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
