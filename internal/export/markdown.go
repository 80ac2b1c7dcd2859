// Package export renders analysis results and catalog snapshots into files
// a user can keep.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	filenameSuffix = "_BTP_Analysis.md"
	footer         = "*Generated by BTP Research*"
	dateLayout     = "2006-01-02"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Document is one analysis ready for export.
type Document struct {
	ServiceName string    `json:"service_name"`
	Category    string    `json:"category"`
	Model       string    `json:"model"`
	Content     string    `json:"content"`
	Citations   []string  `json:"citations"`
	Date        time.Time `json:"-"`
}

// SanitizeFilename replaces every character outside [A-Za-z0-9_-] with '_'.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// Filename returns the export filename for a service name.
func Filename(serviceName string) string {
	return SanitizeFilename(serviceName) + filenameSuffix
}

// Markdown renders doc and returns the suggested filename with the body.
// A zero Date uses the current day.
func Markdown(doc Document) (string, []byte) {
	date := doc.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.ServiceName)
	if doc.Category != "" {
		fmt.Fprintf(&b, "**Category:** %s  \n", doc.Category)
	}
	fmt.Fprintf(&b, "**Date:** %s  \n", date.Format(dateLayout))
	if doc.Model != "" {
		fmt.Fprintf(&b, "**Model:** %s  \n", doc.Model)
	}
	b.WriteString("\n---\n\n")

	writeBody(&b, doc.Content, doc.Citations)

	b.WriteString("\n---\n\n")
	b.WriteString(footer)
	b.WriteString("\n")

	return Filename(doc.ServiceName), []byte(b.String())
}

// ClipboardText renders the content and sources without the metadata block.
func ClipboardText(content string, citations []string) string {
	var b strings.Builder
	writeBody(&b, content, citations)
	return b.String()
}

func writeBody(b *strings.Builder, content string, citations []string) {
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n")

	if len(citations) == 0 {
		return
	}
	b.WriteString("\n## Sources\n\n")
	for i, c := range citations {
		fmt.Fprintf(b, "%d. %s\n", i+1, c)
	}
}
