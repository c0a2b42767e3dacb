package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// CSVImporter handles CSV files. The first record becomes the header row
// of a single table.
type CSVImporter struct{}

func (p *CSVImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var rows []*doctree.Node
	for _, record := range records {
		if blankRecord(record) {
			continue
		}
		row := doctree.New(doctree.KindTableRow)
		for _, field := range record {
			lines := strings.Split(strings.ReplaceAll(field, "\r\n", "\n"), "\n")
			row.Append(tableCell(len(rows) == 0, []*doctree.Node{linesParagraph(lines)}))
		}
		rows = append(rows, row)
	}

	t := table(rows)
	if t == nil {
		return doctree.NewDoc(), nil
	}
	return doctree.NewDoc(t), nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
