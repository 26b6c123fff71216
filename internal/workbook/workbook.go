// Package workbook builds and inspects merged spreadsheets.
package workbook

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MergedSheet is the sheet name used for merged output.
const MergedSheet = "Merged"

// Page is one source image in a merged workbook.
type Page struct {
	Name string
	Size int64
}

// Summary describes a workbook's sheets.
type Summary struct {
	Sheets []SheetSummary
}

// SheetSummary is the name and row count of one sheet.
type SheetSummary struct {
	Name string
	Rows int
}

// TotalRows sums rows across sheets.
func (s Summary) TotalRows() int {
	total := 0
	for _, sh := range s.Sheets {
		total += sh.Rows
	}
	return total
}

func (s Summary) String() string {
	parts := make([]string, 0, len(s.Sheets))
	for _, sh := range s.Sheets {
		parts = append(parts, fmt.Sprintf("%s (%d rows)", sh.Name, sh.Rows))
	}
	return strings.Join(parts, ", ")
}

// WriteMerged writes a workbook with one row per page in upload order.
func WriteMerged(w io.Writer, pages []Page) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", MergedSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := []any{"Page", "Source", "Bytes"}
	if err := f.SetSheetRow(MergedSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, p := range pages {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{i + 1, p.Name, p.Size}
		if err := f.SetSheetRow(MergedSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(MergedSheet, "B", "B", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Inspect opens the workbook at path and counts rows per sheet.
func Inspect(path string) (Summary, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return summarize(f)
}

// InspectReader is Inspect for an in-memory workbook.
func InspectReader(r io.Reader) (Summary, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Summary{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return summarize(f)
}

func summarize(f *excelize.File) (Summary, error) {
	var summary Summary
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return Summary{}, fmt.Errorf("read sheet %s: %w", name, err)
		}
		summary.Sheets = append(summary.Sheets, SheetSummary{Name: name, Rows: len(rows)})
	}
	return summary, nil
}
