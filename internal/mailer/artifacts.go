package mailer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"rfp-digest-go/internal/models"
)

// writeArtifacts persists the digest for one attempt: the raw markdown as
// received from the generator, and a styled HTML rendering of just the
// opportunities table. Both land in the faculty's own folder under the
// artifacts directory, named <username>_<date>.
func (m *Mailer) writeArtifacts(profile *models.FacultyProfile, content string, date time.Time) (models.ArtifactPaths, string, int, error) {
	username := profile.Username()
	dateStr := date.Format(models.DateOnly)

	folder := filepath.Join(m.artifactDir, username)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return models.ArtifactPaths{}, "", 0, fmt.Errorf("failed to create faculty folder: %w", err)
	}

	mdPath := filepath.Join(folder, fmt.Sprintf("%s_%s.md", username, dateStr))
	htmlPath := filepath.Join(folder, fmt.Sprintf("%s_%s.html", username, dateStr))
	paths := models.ArtifactPaths{Markdown: mdPath, HTML: htmlPath, Folder: folder}

	if err := os.WriteFile(mdPath, []byte(content), 0o644); err != nil {
		return models.ArtifactPaths{Folder: folder}, "", 0, fmt.Errorf("failed to write markdown artifact: %w", err)
	}

	table := extractTable(content)
	if table == "" {
		logrus.Warnf("No opportunities table found in digest for %s, rendering full content", profile.Email)
		table = content
	}
	count := countOpportunities(table)

	tableHTML, err := renderMarkdown(table)
	if err != nil {
		return models.ArtifactPaths{Markdown: mdPath, Folder: folder}, "", count,
			fmt.Errorf("failed to render digest HTML: %w", err)
	}

	page := buildHTMLPage(profile.Email, username, tableHTML, count, m.institution, date)
	if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
		return models.ArtifactPaths{Markdown: mdPath, Folder: folder}, "", count,
			fmt.Errorf("failed to write HTML artifact: %w", err)
	}

	return paths, page, count, nil
}

// extractTable pulls the markdown opportunities table out of the generated
// digest. Generation models sometimes wrap their reasoning in <think>
// blocks; anything before the closing tag is dropped first.
func extractTable(content string) string {
	if i := strings.LastIndex(content, "</think>"); i >= 0 {
		content = content[i+len("</think>"):]
	}

	var tableLines []string
	inTable := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inTable && strings.HasPrefix(trimmed, "|") && isTableHeader(trimmed):
			inTable = true
			tableLines = append(tableLines, line)
		case inTable && strings.HasPrefix(trimmed, "|"):
			tableLines = append(tableLines, line)
		case inTable && trimmed == "":
			// blank lines inside a table are tolerated
		case inTable:
			return strings.Join(tableLines, "\n")
		}
	}

	if len(tableLines) == 0 {
		return ""
	}
	return strings.Join(tableLines, "\n")
}

func isTableHeader(line string) bool {
	for _, keyword := range []string{"Opportunity", "Sponsor", "Deadline", "Agency", "Program"} {
		if strings.Contains(line, keyword) {
			return true
		}
	}
	return false
}

// countOpportunities counts data rows: table lines minus the header and the
// separator row.
func countOpportunities(table string) int {
	count := 0
	for _, line := range strings.Split(table, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") {
			continue
		}
		if isTableHeader(trimmed) || isSeparatorRow(trimmed) {
			continue
		}
		count++
	}
	return count
}

func isSeparatorRow(line string) bool {
	stripped := strings.Trim(line, "| ")
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		switch r {
		case '-', ':', '|', ' ':
		default:
			return false
		}
	}
	return true
}

func renderMarkdown(source string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// buildHTMLPage wraps the rendered table in the styled digest page that is
// both saved as the HTML artifact and attached to the email.
func buildHTMLPage(email, username, tableHTML string, count int, institution string, date time.Time) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&b, "<title>Funding Opportunities for %s - %s</title>\n", username, date.Format(models.DateOnly))
	b.WriteString(`<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 30px; background-color: #f8f9fa; color: #333; }
.container { max-width: 1200px; margin: 0 auto; background-color: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
h1 { color: #2c3e50; border-bottom: 3px solid #3498db; padding-bottom: 10px; margin-bottom: 20px; }
.summary { background-color: #e8f4fd; padding: 15px; border-radius: 5px; margin-bottom: 25px; border-left: 4px solid #3498db; }
table { border-collapse: collapse; width: 100%; margin-top: 20px; font-size: 14px; }
th { background-color: #34495e; color: white; padding: 12px 8px; text-align: left; font-weight: 600; }
td { border: 1px solid #ddd; padding: 10px 8px; vertical-align: top; }
tr:nth-child(even) { background-color: #f8f9fa; }
a { color: #2980b9; text-decoration: none; font-weight: 500; }
.footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd; text-align: center; color: #666; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
`)
	fmt.Fprintf(&b, "<h1>Funding Opportunities for %s</h1>\n", email)
	b.WriteString("<div class=\"summary\">\n")
	fmt.Fprintf(&b, "<strong>Summary:</strong> %d funding opportunities found<br>\n", count)
	fmt.Fprintf(&b, "<strong>Generated:</strong> %s<br>\n", date.Format("January 2, 2006 at 3:04 PM"))
	b.WriteString("<strong>Focus:</strong> Personalized matches based on your research interests\n</div>\n")
	b.WriteString(tableHTML)
	fmt.Fprintf(&b, "\n<div class=\"footer\">\n<p><em>Generated by %s</em></p>\n</div>\n", institution)
	b.WriteString("</div>\n</body>\n</html>\n")

	return b.String()
}
