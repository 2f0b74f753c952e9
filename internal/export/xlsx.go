package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/themobileprof/ceepilot/pkg/models"
)

const (
	simulationsSheet = "Simulations"
	totalsSheet      = "Totaux"
)

var headers = []string{
	"Date", "Département", "Secteur", "Typologie", "Fiche",
	"Paramètres", "kWh cumac", "Prime (€)", "Statut", "Erreur", "Enregistré le",
}

// Exporter renders saved simulations as a workbook
type Exporter struct{}

// NewExporter creates an exporter
func NewExporter() *Exporter {
	return &Exporter{}
}

// Export builds a workbook with one row per simulation and a totals sheet
func (e *Exporter) Export(sims []models.Simulation) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", simulationsSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	eurosStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, fmt.Errorf("failed to create euro style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(simulationsSheet, cell, h)
	}
	f.SetRowStyle(simulationsSheet, 1, 1, headerStyle)

	var cumacs, euros decimal.Decimal
	count := 0
	for i, s := range sims {
		row := i + 2
		status := "OK"
		if !s.Success {
			status = "Échec"
		} else {
			count++
			cumacs = cumacs.Add(decimal.NewFromFloat(s.Cumacs))
			euros = euros.Add(decimal.NewFromFloat(s.Euros))
		}
		values := []any{
			s.Date, s.Department, s.Sector, s.Typology, s.FicheCode,
			formatParameters(s.Parameters), s.Cumacs, roundEuros(s.Euros), status, s.Error,
			s.CreatedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(simulationsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
		f.SetCellStyle(simulationsSheet, fmt.Sprintf("H%d", row), fmt.Sprintf("H%d", row), eurosStyle)
	}

	f.SetColWidth(simulationsSheet, "A", "E", 14)
	f.SetColWidth(simulationsSheet, "F", "F", 40)
	f.SetColWidth(simulationsSheet, "G", "I", 14)
	f.SetColWidth(simulationsSheet, "J", "J", 40)
	f.SetColWidth(simulationsSheet, "K", "K", 18)

	if _, err := f.NewSheet(totalsSheet); err != nil {
		return nil, fmt.Errorf("failed to create totals sheet: %w", err)
	}
	totals := [][]any{
		{"Indicateur", "Valeur"},
		{"Simulations réussies", count},
		{"kWh cumac", cumacs.InexactFloat64()},
		{"Prime totale (€)", euros.Round(2).InexactFloat64()},
	}
	for i, row := range totals {
		for j, val := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			f.SetCellValue(totalsSheet, cell, val)
		}
	}
	f.SetRowStyle(totalsSheet, 1, 1, headerStyle)
	f.SetCellStyle(totalsSheet, "B4", "B4", eurosStyle)
	f.SetColWidth(totalsSheet, "A", "A", 24)

	return f, nil
}

// WriteXLSX writes sims as a workbook to w
func WriteXLSX(w io.Writer, sims []models.Simulation) error {
	f, err := NewExporter().Export(sims)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func roundEuros(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// formatParameters renders form values as "k=v; k=v" in key order
func formatParameters(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, "; ")
}
