package sheets

import (
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// newID is swapped in tests.
var newID = uuid.NewString

type NormalizeOptions struct {
	// StartRow is the 1-based source row where tabular data begins. Earlier rows are
	// dropped before RowIndex numbering. Zero or one keeps every row.
	StartRow int
	// RequiredColumns drops rows where every listed column is blank.
	RequiredColumns []int
}

// Normalize flattens a parsed table into rows keyed by "col<i>".
func Normalize(t *Table, opts NormalizeOptions) []Row {
	if t == nil {
		return nil
	}
	raw := t.Rows
	if skip := opts.StartRow - 1; skip > 0 {
		if skip >= len(raw) {
			raw = nil
		} else {
			raw = raw[skip:]
		}
	}

	width := t.Width()
	rows := make([]Row, 0, len(raw))
	for i, rr := range raw {
		cells := make(map[string]any, width)
		for c := 0; c < width; c++ {
			var cell *Cell
			if c < len(rr.C) {
				cell = rr.C[c]
			}
			cells[ColumnKey(c)] = cell.Value()
		}
		row := Row{ID: newID(), RowIndex: i + 1, Cells: cells}
		if isBlank(row, opts.RequiredColumns) {
			continue
		}
		rows = append(rows, row)
	}
	log.Debugf("normalized %d of %d rows (start row %d)", len(rows), len(t.Rows), opts.StartRow)
	return rows
}

func isBlank(r Row, cols []int) bool {
	if len(cols) == 0 {
		return false
	}
	for _, c := range cols {
		if strings.TrimSpace(r.String(c)) != "" {
			return false
		}
	}
	return true
}
