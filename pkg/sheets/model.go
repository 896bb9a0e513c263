package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Source yields one freshly fetched Table per call. Nothing is cached.
type Source interface {
	Fetch(ctx context.Context) (*Table, error)
}

type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"type"`
}

// Cell is one gviz cell. V is the literal value and F the formatted/formula text,
// either of which may be missing.
type Cell struct {
	V any     `json:"v"`
	F *string `json:"f,omitempty"`
}

// Value applies the precedence rule: literal, then formatted, then "".
func (c *Cell) Value() any {
	if c == nil {
		return ""
	}
	if c.V != nil {
		return c.V
	}
	if c.F != nil {
		return *c.F
	}
	return ""
}

type RawRow struct {
	C []*Cell `json:"c"`
}

// Table is the parsed result of one sheet fetch. Columns are positional.
type Table struct {
	Columns []Column `json:"cols"`
	Rows    []RawRow `json:"rows"`
}

// Width is the number of positional columns any row may address.
func (t *Table) Width() int {
	w := len(t.Columns)
	for _, r := range t.Rows {
		if len(r.C) > w {
			w = len(r.C)
		}
	}
	return w
}

// Label returns the column label, falling back to the gviz column ID.
func (t *Table) Label(i int) string {
	if i < 0 || i >= len(t.Columns) {
		return ColumnKey(i)
	}
	if l := strings.TrimSpace(t.Columns[i].Label); l != "" {
		return l
	}
	if t.Columns[i].ID != "" {
		return t.Columns[i].ID
	}
	return ColumnKey(i)
}

func ColumnKey(i int) string {
	return "col" + strconv.Itoa(i)
}

// Row is a normalized source row. Every column of the table has a key in Cells.
type Row struct {
	ID       string
	RowIndex int
	Cells    map[string]any
}

// Get returns the value at column i, or "" when the row has no such column.
func (r Row) Get(i int) any {
	if v, ok := r.Cells[ColumnKey(i)]; ok {
		return v
	}
	return ""
}

// String renders column i the way a table cell displays it.
func (r Row) String(i int) string {
	return Stringify(r.Get(i))
}

func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// MarshalJSON flattens the row into {"_id", "_rowIndex", "col0", ...}.
func (r Row) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Cells)+2)
	for k, v := range r.Cells {
		m[k] = v
	}
	m["_id"] = r.ID
	m["_rowIndex"] = r.RowIndex
	return json.Marshal(m)
}
