package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/models"
)

const sendAttempts = 3

// Mailer delivers digest emails through the Gmail API and writes the
// per-faculty artifact files alongside each send.
type Mailer struct {
	service     *gmail.Service
	sender      string
	cc          []string
	artifactDir string
	institution string

	now func() time.Time
}

// New creates a Mailer from Gmail config.
func New(cfg *config.GmailConfig, artifactDir, institution string) (*Mailer, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Mailer{
		service:     service,
		sender:      cfg.Sender,
		cc:          cfg.CC,
		artifactDir: artifactDir,
		institution: institution,
		now:         time.Now,
	}, nil
}

// WithClock overrides the time source used for artifact dates.
func (m *Mailer) WithClock(now func() time.Time) *Mailer {
	m.now = now
	return m
}

// Deliver writes the digest artifacts and sends the email. Artifact paths
// are returned even when the send fails so the attempt ledger can record
// what was written.
func (m *Mailer) Deliver(ctx context.Context, profile *models.FacultyProfile, content string) (*models.DeliveryResult, error) {
	date := m.now()

	artifacts, htmlBody, count, err := m.writeArtifacts(profile, content, date)
	if err != nil {
		// The email can still go out; record the miss and continue.
		logrus.Warnf("Failed to write digest artifacts for %s: %v", profile.Email, err)
	}

	raw, err := m.buildMessage(profile, htmlBody, artifacts, count, date)
	if err != nil {
		return &models.DeliveryResult{Artifacts: artifacts}, fmt.Errorf("failed to build digest email: %w", err)
	}

	message := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}

	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		res, err := m.service.Users.Messages.Send(m.sender, message).Context(ctx).Do()
		if err == nil {
			logrus.Infof("Delivered digest to %s (message %s)", profile.Email, res.Id)
			return &models.DeliveryResult{MessageID: res.Id, Artifacts: artifacts}, nil
		}

		lastErr = err
		logrus.Warnf("Failed to deliver digest to %s (attempt %d/%d): %v", profile.Email, attempt, sendAttempts, err)

		// Only quota pressure is worth waiting out; other errors won't
		// improve on retry.
		if strings.Contains(err.Error(), "quota") || strings.Contains(err.Error(), "rate") {
			waitTime := time.Duration(attempt*attempt) * time.Second
			logrus.Infof("Rate limited, waiting %v before retry", waitTime)
			select {
			case <-ctx.Done():
				return &models.DeliveryResult{Artifacts: artifacts}, ctx.Err()
			case <-time.After(waitTime):
			}
		} else {
			break
		}
	}

	return &models.DeliveryResult{Artifacts: artifacts},
		fmt.Errorf("failed to deliver digest after %d attempts: %w", sendAttempts, lastErr)
}

// buildMessage assembles the MIME message: a plain-text body plus the
// rendered HTML digest as an attachment.
func (m *Mailer) buildMessage(profile *models.FacultyProfile, htmlBody string, artifacts models.ArtifactPaths, count int, date time.Time) (string, error) {
	var b strings.Builder

	boundary := fmt.Sprintf("rfp-digest-%d", time.Now().UnixNano())
	subject := fmt.Sprintf("%s Funding Opportunity Digest - %s", m.institution, date.Format("January 2, 2006"))
	attachmentName := fmt.Sprintf("%s_%s.html", profile.Username(), date.Format(models.DateOnly))

	b.WriteString(fmt.Sprintf("From: %s\r\n", m.sender))
	b.WriteString(fmt.Sprintf("To: %s\r\n", profile.Email))
	if len(m.cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(m.cc, ", ")))
	}
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", date.Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n", boundary))
	b.WriteString("\r\n")

	b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	b.WriteString(fmt.Sprintf("Hello %s,\r\n\r\n", profile.DisplayName()))
	if count > 0 {
		b.WriteString(fmt.Sprintf("Your personalized funding opportunity digest is attached with %d opportunities matched to your research profile.\r\n\r\n", count))
	} else {
		b.WriteString("Your personalized funding opportunity digest is attached.\r\n\r\n")
	}
	b.WriteString("Open the attached HTML file for the full formatted digest.\r\n")
	b.WriteString(fmt.Sprintf("To update your preferences or pause these digests, reply to this email.\r\n\r\n%s\r\n", m.institution))

	if htmlBody != "" {
		b.WriteString(fmt.Sprintf("\r\n--%s\r\n", boundary))
		b.WriteString(fmt.Sprintf("Content-Type: text/html; charset=UTF-8; name=\"%s\"\r\n", attachmentName))
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n\r\n", attachmentName))
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(htmlBody)))
	}
	b.WriteString(fmt.Sprintf("\r\n--%s--\r\n", boundary))

	return b.String(), nil
}

// TestConnection verifies the Gmail API credentials.
func (m *Mailer) TestConnection(ctx context.Context) error {
	if _, err := m.service.Users.GetProfile(m.sender).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to test Gmail API connection: %w", err)
	}
	return nil
}

// Close closes the mailer (no-op for the Gmail API).
func (m *Mailer) Close() error {
	return nil
}
