package workbook

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteMergedAndInspect(t *testing.T) {
	var buf bytes.Buffer
	pages := []Page{{Name: "p1.png", Size: 10}, {Name: "p2.jpg", Size: 20}, {Name: "p3.heic", Size: 30}}
	if err := WriteMerged(&buf, pages); err != nil {
		t.Fatalf("WriteMerged: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	summary, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(summary.Sheets) != 1 || summary.Sheets[0].Name != MergedSheet {
		t.Fatalf("sheets = %#v", summary.Sheets)
	}
	if summary.TotalRows() != len(pages)+1 {
		t.Fatalf("rows = %d, want %d", summary.TotalRows(), len(pages)+1)
	}
	if !strings.Contains(summary.String(), "Merged (4 rows)") {
		t.Fatalf("String = %q", summary.String())
	}
}

func TestInspectReader_RejectsGarbage(t *testing.T) {
	if _, err := InspectReader(strings.NewReader("not a workbook")); err == nil {
		t.Fatal("InspectReader returned nil error for garbage input")
	}
}
