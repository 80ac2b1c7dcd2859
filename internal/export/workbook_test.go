package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/btp-research/internal/model"
)

func rowValues(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.String()
	}
	return out
}

func TestCatalogWorkbook(t *testing.T) {
	services := []model.ServiceSummary{
		{TechnicalID: "auditlog", DisplayName: "Audit Log Service", Category: "Security"},
		{TechnicalID: "html5", DisplayName: "HTML5 Apps"},
	}
	rel := map[string]model.RelevanceRecord{
		"auditlog": {ServiceID: "auditlog", Relevance: model.RelevanceHigh, Reason: "compliance"},
	}

	f, err := CatalogWorkbook(services, rel)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, catalogSheet, sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, catalogHeader, rowValues(sheet.Rows[0]))
	assert.Equal(t, []string{"auditlog", "Audit Log Service", "Security", "high", "compliance"}, rowValues(sheet.Rows[1]))
	assert.Equal(t, []string{"html5", "HTML5 Apps", "", "", ""}, rowValues(sheet.Rows[2]))
}

func TestWriteCatalogWorkbook(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCatalogWorkbook(&buf, []model.ServiceSummary{{TechnicalID: "a", DisplayName: "A"}}, nil)
	require.NoError(t, err)

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 2)
}
