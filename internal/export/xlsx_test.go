package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/themobileprof/ceepilot/pkg/models"
)

func sampleSimulations() []models.Simulation {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return []models.Simulation{
		{
			Date: "2024-03-01", Department: "75", Sector: "BAR", Typology: "TH", FicheCode: "BAR-TH-104",
			Parameters: map[string]any{"zone": "H1", "surface": "100"},
			Cumacs:     10000, Euros: 65, Success: true, CreatedAt: at,
		},
		{
			Date: "2024-03-02", Department: "69", Sector: "BAR", Typology: "EN", FicheCode: "BAR-EN-101",
			Parameters: map[string]any{"surface": "80"},
			Cumacs:     1234.5, Euros: 8.02425, Success: true, CreatedAt: at,
		},
		{
			FicheCode: "BAR-TH-104", Error: "missing required parameters: surface", CreatedAt: at,
		},
	}
}

func TestExport(t *testing.T) {
	f, err := NewExporter().Export(sampleSimulations())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(simulationsSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][4] != "Fiche" {
		t.Errorf("Expected header Fiche, got %q", rows[0][4])
	}
	if rows[1][5] != "surface=100; zone=H1" {
		t.Errorf("Expected sorted parameters, got %q", rows[1][5])
	}
	if rows[3][8] != "Échec" {
		t.Errorf("Expected failed status, got %q", rows[3][8])
	}

	euros, err := f.GetCellValue(simulationsSheet, "H3", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetCellValue failed: %v", err)
	}
	if euros != "8.02" {
		t.Errorf("Expected euros rounded to 8.02, got %q", euros)
	}

	count, _ := f.GetCellValue(totalsSheet, "B2")
	if count != "2" {
		t.Errorf("Expected 2 successful simulations, got %q", count)
	}
	cumacs, _ := f.GetCellValue(totalsSheet, "B3")
	if cumacs != "11234.5" {
		t.Errorf("Expected 11234.5 cumacs, got %q", cumacs)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleSimulations()); err != nil {
		t.Fatalf("WriteXLSX failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(totalsSheet); idx < 0 {
		t.Errorf("Expected %s sheet", totalsSheet)
	}
	code, _ := f.GetCellValue(simulationsSheet, "E2")
	if code != "BAR-TH-104" {
		t.Errorf("Expected BAR-TH-104, got %q", code)
	}
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, nil); err != nil {
		t.Fatalf("WriteXLSX failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Expected a workbook even without simulations")
	}
}
