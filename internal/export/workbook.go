package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/btp-research/internal/model"
)

const catalogSheet = "Services"

var catalogHeader = []string{"ID", "Name", "Category", "Relevance", "Reason"}

// CatalogWorkbook builds a workbook with one row per service. Services
// missing from relevance get empty relevance columns.
func CatalogWorkbook(services []model.ServiceSummary, relevance map[string]model.RelevanceRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(catalogSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, catalogHeader)
	for _, svc := range services {
		rec, ok := relevance[svc.TechnicalID]
		level, reason := "", ""
		if ok {
			level, reason = string(rec.Relevance), rec.Reason
		}
		addRow(sheet, []string{svc.TechnicalID, svc.DisplayName, svc.Category, level, reason})
	}
	return f, nil
}

// WriteCatalogWorkbook streams the workbook to w.
func WriteCatalogWorkbook(w io.Writer, services []model.ServiceSummary, relevance map[string]model.RelevanceRecord) error {
	f, err := CatalogWorkbook(services, relevance)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
