package model

import "time"

// AnalysisCategory identifies which analysis flavor produced a result.
type AnalysisCategory string

const (
	AnalysisFull  AnalysisCategory = "full"
	AnalysisQuick AnalysisCategory = "quick"
)

// ParseAnalysisCategory maps user input to a category, defaulting to full.
func ParseAnalysisCategory(s string) AnalysisCategory {
	if AnalysisCategory(s) == AnalysisQuick {
		return AnalysisQuick
	}
	return AnalysisFull
}

// AnalysisResult is the outcome of one analysis invocation. It lives only
// in memory; exporting it is an explicit user action.
type AnalysisResult struct {
	Category  AnalysisCategory `json:"category"`
	Content   string           `json:"content"`
	Citations []string         `json:"citations"`
	Model     string           `json:"model,omitempty"`
}

// GuestUsage is the persisted counter of analyses run by an
// unauthenticated user.
type GuestUsage struct {
	Count int `json:"count"`
	// LastReset is recorded when the counter is created but nothing resets
	// the counter on a schedule.
	LastReset time.Time `json:"lastReset"`
}
