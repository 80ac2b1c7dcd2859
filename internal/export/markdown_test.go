package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarkdown_RoundTrip(t *testing.T) {
	name, body := Markdown(Document{
		ServiceName: "My/Service",
		Content:     "Hello",
		Citations:   []string{"https://x"},
		Date:        time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	})

	assert.True(t, strings.HasPrefix(name, "My_Service_"))
	assert.Equal(t, "My_Service_BTP_Analysis.md", name)

	text := string(body)
	assert.Contains(t, text, "Hello")
	assert.Contains(t, text, "https://x")
	assert.Contains(t, text, "**Date:** 2026-03-04")
	assert.NotContains(t, text, "**Category:**")
	assert.NotContains(t, text, "**Model:**")
}

func TestMarkdown_Layout(t *testing.T) {
	_, body := Markdown(Document{
		ServiceName: "Audit Log Service",
		Category:    "Security",
		Model:       "sonar-pro",
		Content:     "\n## Overview\nAudit logs.\n",
		Citations:   []string{"https://b.example.com", "https://a.example.com"},
		Date:        time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})

	want := "# Audit Log Service\n\n" +
		"**Category:** Security  \n" +
		"**Date:** 2026-01-02  \n" +
		"**Model:** sonar-pro  \n" +
		"\n---\n\n" +
		"## Overview\nAudit logs.\n" +
		"\n## Sources\n\n" +
		"1. https://b.example.com\n" +
		"2. https://a.example.com\n" +
		"\n---\n\n" +
		"*Generated by BTP Research*\n"
	assert.Equal(t, want, string(body))
}

func TestMarkdown_NoCitations(t *testing.T) {
	_, body := Markdown(Document{ServiceName: "X", Content: "c"})
	assert.NotContains(t, string(body), "## Sources")
	assert.Contains(t, string(body), time.Now().Format(dateLayout))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My/Service", "My_Service"},
		{"SAP HANA Cloud", "SAP_HANA_Cloud"},
		{"a-b_c", "a-b_c"},
		{"Übersetzung.v2", "_bersetzung_v2"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestClipboardText(t *testing.T) {
	assert.Equal(t, "Body\n", ClipboardText("Body", nil))
	assert.Equal(t, "Body\n\n## Sources\n\n1. https://x\n", ClipboardText(" Body ", []string{"https://x"}))
}
