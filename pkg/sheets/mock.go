package sheets

import "context"

// MockSource serves an in-memory table. Some dashboard pages are backed by mock data
// rather than a live spreadsheet.
type MockSource struct {
	Table *Table
	Err   error
	Calls int
}

// NewMockTable builds a table from labels and literal row values; nil values become
// missing cells.
func NewMockTable(labels []string, rows [][]any) *Table {
	t := &Table{}
	for i, l := range labels {
		t.Columns = append(t.Columns, Column{ID: columnLetter(i), Label: l, Kind: "string"})
	}
	for _, row := range rows {
		rr := RawRow{C: make([]*Cell, len(row))}
		for i, v := range row {
			if v != nil {
				rr.C[i] = &Cell{V: v}
			}
		}
		t.Rows = append(t.Rows, rr)
	}
	return t
}

func (m *MockSource) Fetch(_ context.Context) (*Table, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Table == nil {
		return &Table{Rows: []RawRow{}}, nil
	}
	cp := &Table{Columns: append([]Column(nil), m.Table.Columns...)}
	for _, r := range m.Table.Rows {
		cp.Rows = append(cp.Rows, RawRow{C: append([]*Cell(nil), r.C...)})
	}
	return cp, nil
}
