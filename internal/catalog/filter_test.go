package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/btp-research/internal/model"
)

var sample = []model.ServiceSummary{
	{TechnicalID: "auditlog", DisplayName: "Audit Log Service", Description: "Retrieve audit logs", Category: "Security"},
	{TechnicalID: "connectivity", DisplayName: "Connectivity", Description: "Connect to on-premise systems", Category: "Integration"},
	{TechnicalID: "destination", DisplayName: "Destination", Category: "integration"},
	{TechnicalID: "uebersicht", DisplayName: "Übersicht Café", Category: ""},
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{name: "empty query returns all", q: Query{}, want: []string{"auditlog", "connectivity", "destination", "uebersicht"}},
		{name: "display name case-insensitive", q: Query{Text: "AUDIT"}, want: []string{"auditlog"}},
		{name: "matches description", q: Query{Text: "on-premise"}, want: []string{"connectivity"}},
		{name: "matches technical id", q: Query{Text: "destin"}, want: []string{"destination"}},
		{name: "accent insensitive", q: Query{Text: "ubersicht cafe"}, want: []string{"uebersicht"}},
		{name: "category exact ignoring case", q: Query{Category: "Integration"}, want: []string{"connectivity", "destination"}},
		{name: "category and text", q: Query{Text: "dest", Category: "integration"}, want: []string{"destination"}},
		{name: "category partial does not match", q: Query{Category: "Integr"}, want: []string{}},
		{name: "no match", q: Query{Text: "kyma"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(sample, tt.q)
			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.TechnicalID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCategories(t *testing.T) {
	services := []model.ServiceSummary{
		{Category: "Security"},
		{Category: "ai"},
		{Category: "Integration"},
		{Category: ""},
		{Category: "Security"},
		{Category: " DevOps "},
	}
	assert.Equal(t, []string{"ai", "DevOps", "Integration", "Security"}, Categories(services))
}

func TestCategories_Empty(t *testing.T) {
	assert.Empty(t, Categories(nil))
	assert.NotNil(t, Categories(nil))
}

func TestFindByID(t *testing.T) {
	s, ok := FindByID(sample, "connectivity")
	assert.True(t, ok)
	assert.Equal(t, "Connectivity", s.DisplayName)

	_, ok = FindByID(sample, "nope")
	assert.False(t, ok)
}
