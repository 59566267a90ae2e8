// Package tabular implements the CSV merge layer: it reads tabular
// datasets with arbitrary columns, merges resolved accession mappings into
// named output columns, and persists intermediate progress so an
// interrupted run loses at most one chunk of work.
package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/btraven00/tinkuy/pkg/xref"
)

// Table is an in-memory CSV dataset with a header row.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// Read loads a CSV file into a Table. The first record is the header.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows, pad on write

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	t := &Table{Header: records[0], Rows: records[1:]}
	t.reindex()

	return t, nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		t.index[name] = i
	}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the index of a named column.
func (t *Table) ColumnIndex(name string) (int, error) {
	if i, ok := t.index[name]; ok {
		return i, nil
	}

	return 0, fmt.Errorf("column %q not found in input", name)
}

// EnsureColumn returns the index of a named column, appending it to the
// header when missing.
func (t *Table) EnsureColumn(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}

	t.Header = append(t.Header, name)
	t.index[name] = len(t.Header) - 1

	return len(t.Header) - 1
}

// Cell returns the value of a cell, or "" when the row is shorter than
// the requested column.
func (t *Table) Cell(row, col int) string {
	if col < len(t.Rows[row]) {
		return t.Rows[row][col]
	}

	return ""
}

// SetCell writes a cell value, padding the row when necessary.
func (t *Table) SetCell(row, col int, value string) {
	for len(t.Rows[row]) <= col {
		t.Rows[row] = append(t.Rows[row], "")
	}

	t.Rows[row][col] = value
}

// Write saves the table to a CSV file, padding ragged rows to the header
// width.
func (t *Table) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)

	if err := writer.Write(t.Header); err != nil {
		return err
	}

	width := len(t.Header)

	for _, row := range t.Rows {
		padded := row
		for len(padded) < width {
			padded = append(padded, "")
		}

		if err := writer.Write(padded[:width]); err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}

// Columns describes where accessions are read from and where the resolved
// identifiers are written.
type Columns struct {
	Accession  string
	BioProject string
	GEO        string
}

// PendingAccessions returns the accession values of rows whose output
// columns are not yet populated, deduplicated in row order.
func (t *Table) PendingAccessions(cols Columns) ([]string, error) {
	accCol, err := t.ColumnIndex(cols.Accession)
	if err != nil {
		return nil, err
	}

	prjCol := t.EnsureColumn(cols.BioProject)
	geoCol := t.EnsureColumn(cols.GEO)

	seen := make(map[string]bool)

	var pending []string

	for row := range t.Rows {
		id := t.Cell(row, accCol)
		if id == "" || seen[id] {
			continue
		}

		// A row already carrying both output values is left alone.
		if t.Cell(row, prjCol) != "" && t.Cell(row, geoCol) != "" {
			continue
		}

		seen[id] = true

		pending = append(pending, id)
	}

	return pending, nil
}

// Merge writes resolved mappings into the output columns of every row whose
// accession has a result. Populated cells are never overwritten unless
// overwrite is set. It returns the number of rows updated.
func (t *Table) Merge(results map[string]*xref.Mapping, cols Columns, overwrite bool) (int, error) {
	accCol, err := t.ColumnIndex(cols.Accession)
	if err != nil {
		return 0, err
	}

	prjCol := t.EnsureColumn(cols.BioProject)
	geoCol := t.EnsureColumn(cols.GEO)

	updated := 0

	for row := range t.Rows {
		m, ok := results[normalize(t.Cell(row, accCol))]
		if !ok {
			continue
		}

		changed := false

		if m.BioProjectID != "" && (overwrite || t.Cell(row, prjCol) == "") {
			t.SetCell(row, prjCol, m.BioProjectID)

			changed = true
		}

		if m.GEOID != "" && (overwrite || t.Cell(row, geoCol) == "") {
			t.SetCell(row, geoCol, m.GEOID)

			changed = true
		}

		if changed {
			updated++
		}
	}

	return updated, nil
}

func normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
