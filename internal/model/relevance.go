package model

import (
	"strings"
	"time"
)

// Relevance is the three-level judgment of how central a service is to an
// SAP Basis administrator's responsibilities.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// MaxReasonLength bounds the stored reason, in runes.
const MaxReasonLength = 200

// AllRelevances returns the accepted levels from most to least relevant.
func AllRelevances() []Relevance {
	return []Relevance{RelevanceHigh, RelevanceMedium, RelevanceLow}
}

// Valid reports whether r is one of the accepted levels.
func (r Relevance) Valid() bool {
	switch r {
	case RelevanceHigh, RelevanceMedium, RelevanceLow:
		return true
	}
	return false
}

// ParseRelevance normalizes s to a Relevance. Anything outside the accepted
// set is coerced to medium and coerced is reported true.
func ParseRelevance(s string) (r Relevance, coerced bool) {
	r = Relevance(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, false
	}
	return RelevanceMedium, true
}

// RelevanceRecord is the cached classification of a single service.
type RelevanceRecord struct {
	ServiceID string    `json:"service_id"`
	Relevance Relevance `json:"relevance"`
	Reason    string    `json:"reason"`
	// Cached reports whether this call was served from the cache. Diagnostic
	// only; never persisted.
	Cached    bool      `json:"cached"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// TruncateReason cuts s to at most MaxReasonLength runes.
func TruncateReason(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= MaxReasonLength {
		return s
	}
	return string(runes[:MaxReasonLength])
}
