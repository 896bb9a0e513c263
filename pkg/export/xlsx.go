package export

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"misdash/pkg/extract"
	"misdash/pkg/pipeline"
)

const maxSheetName = 31

// Summary is an extra sheet of aggregated values (ranking or category totals).
type Summary struct {
	Title string
	Rows  []extract.Aggregate
}

// WriteXLSX writes the loaded rows of a view as a workbook: one data sheet followed by
// one sheet per summary. Derived name and value are appended after the source columns.
func WriteXLSX(w io.Writer, st pipeline.State, summaries ...Summary) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("close workbook: %v", err)
		}
	}()

	data := SheetName(st.Title, "Data")
	if err := f.SetSheetName(f.GetSheetName(0), data); err != nil {
		return errors.Wrap(err, "rename sheet")
	}

	header := make([]any, 0, len(st.Columns)+3)
	header = append(header, "#")
	for _, c := range st.Columns {
		header = append(header, c)
	}
	header = append(header, "Name", "Value")
	if err := writeRow(f, data, 1, header); err != nil {
		return err
	}

	for i, r := range st.Rows {
		row := make([]any, 0, len(header))
		row = append(row, r.Row.RowIndex)
		for c := range st.Columns {
			row = append(row, r.Row.Get(c))
		}
		row = append(row, r.Derived.Name, r.Derived.Value)
		if err := writeRow(f, data, i+2, row); err != nil {
			return err
		}
	}
	if err := boldHeader(f, data, len(header)); err != nil {
		return err
	}

	for _, s := range summaries {
		name := SheetName(s.Title, "Summary")
		if _, err := f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "add sheet %s", name)
		}
		if err := writeRow(f, name, 1, []any{"Key", "Value"}); err != nil {
			return err
		}
		for i, a := range s.Rows {
			if err := writeRow(f, name, i+2, []any{a.Key, a.Value}); err != nil {
				return err
			}
		}
		if err := boldHeader(f, name, 2); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "write %s!%s", sheet, cell)
	}
	return nil
}

func boldHeader(f *excelize.File, sheet string, width int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(width, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

// SheetName makes title usable as a worksheet name: forbidden characters are dropped
// and the result is cut to 31 characters.
func SheetName(title, fallback string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, title)
	cleaned = strings.Trim(strings.TrimSpace(cleaned), "'")
	if cleaned == "" {
		return fallback
	}
	if r := []rune(cleaned); len(r) > maxSheetName {
		cleaned = string(r[:maxSheetName])
	}
	return cleaned
}
