package fiches

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/themobileprof/ceepilot/internal/db"
	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/pkg/models"
)

const ficheYAML = `code: bar-th-104
name: Pompe à chaleur de type air/eau ou eau/eau
version: "A54.3"
description: Mise en place d'une pompe à chaleur
function: |
  def bar_th_104(surface, zone, etas=126):
      coef = {'H1': 1.2, 'H2': 1.0, 'H3': 0.7}
      return surface * 700 * coef.get(zone, 1.0) * (1.2 if etas >= 140 else 1.0)
parameters:
  zone:
    - H1
    - H2
    - H3
labels:
  surface: Surface habitable (m²)
  zone: Zone climatique
`

func setupTestDB(t *testing.T) (*db.DB, func()) {
	tmpDir, err := os.MkdirTemp("", "ceepilot-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	return database, func() {
		database.Close()
		os.RemoveAll(tmpDir)
	}
}

func writeFiche(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fiche.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fiche: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	fiche, err := loader.LoadFromFile(writeFiche(t, ficheYAML))
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if fiche.Code != "BAR-TH-104" {
		t.Errorf("Expected code BAR-TH-104, got %s", fiche.Code)
	}
	if fiche.Sector != "BAR" || fiche.Typology != "TH" {
		t.Errorf("Expected sector BAR / typology TH, got %s / %s", fiche.Sector, fiche.Typology)
	}
	if fiche.Version != "A54.3" {
		t.Errorf("Expected version A54.3, got %s", fiche.Version)
	}
	if len(fiche.ParameterOptions["zone"]) != 3 {
		t.Errorf("Expected 3 zone options, got %v", fiche.ParameterOptions["zone"])
	}
	if fiche.Labels["zone"] != "Zone climatique" {
		t.Errorf("Expected zone label, got %q", fiche.Labels["zone"])
	}
}

func TestLoadFromFileWithoutCode(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	if _, err := loader.LoadFromFile(writeFiche(t, "name: orphan\nfunction: \"def f():\\n    return 1\\n\"\n")); err == nil {
		t.Error("Expected error for fiche without code")
	}
}

func TestImportAndGetFiche(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	fiche, err := loader.LoadFromFile(writeFiche(t, ficheYAML))
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := loader.ImportFiche(fiche, OriginFile); err != nil {
		t.Fatalf("ImportFiche failed: %v", err)
	}

	got, err := loader.GetFiche("bar-th-104")
	if err != nil {
		t.Fatalf("GetFiche failed: %v", err)
	}
	if got.Name != fiche.Name {
		t.Errorf("Expected name %s, got %s", fiche.Name, got.Name)
	}
	if got.FunctionSource != fiche.FunctionSource {
		t.Error("Function source mismatch after round trip through the database")
	}
	if len(got.ParameterOptions["zone"]) != 3 {
		t.Errorf("Expected zone options to survive, got %v", got.ParameterOptions)
	}

	// Re-import updates in place
	fiche.Name = "PAC air/eau"
	if err := loader.ImportFiche(fiche, OriginFile); err != nil {
		t.Fatalf("Re-import failed: %v", err)
	}
	got, err = loader.GetFiche("BAR-TH-104")
	if err != nil {
		t.Fatalf("GetFiche failed: %v", err)
	}
	if got.Name != "PAC air/eau" {
		t.Errorf("Expected updated name, got %s", got.Name)
	}
}

func TestImportRejectsBrokenFunction(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{"no function", "surface = 1\n", engine.ErrParse},
		{"forbidden builtin", "def f(x):\n    print(x)\n    return x\n", engine.ErrLoad},
		{"rebound", "def f(x):\n    return x\nf = 1\n", engine.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fiche := &models.Fiche{Code: "BAT-EN-101", Name: "Isolation", FunctionSource: tt.src}
			err := loader.ImportFiche(fiche, OriginFile)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := loader.GetFiche("BAT-EN-101"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected broken fiche to stay out of the catalogue, got %v", err)
	}
}

func TestListFichesAndFacets(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	src := "def f(surface):\n    return surface * 10\n"
	for _, code := range []string{"BAR-TH-104", "BAR-EN-101", "BAT-TH-116", "IND-UT-117"} {
		sector, typology := splitCode(code)
		fiche := &models.Fiche{Code: code, Name: code, Sector: sector, Typology: typology, FunctionSource: src}
		if err := loader.ImportFiche(fiche, OriginFile); err != nil {
			t.Fatalf("ImportFiche %s failed: %v", code, err)
		}
	}

	all, err := loader.ListFiches(models.FicheFilter{})
	if err != nil {
		t.Fatalf("ListFiches failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Expected 4 fiches, got %d", len(all))
	}
	if all[0].FunctionSource != "" {
		t.Error("Expected listing to omit function source")
	}

	bar, err := loader.ListFiches(models.FicheFilter{Sector: "bar"})
	if err != nil {
		t.Fatalf("ListFiches failed: %v", err)
	}
	if len(bar) != 2 {
		t.Errorf("Expected 2 BAR fiches, got %d", len(bar))
	}

	barTH, err := loader.ListFiches(models.FicheFilter{Sector: "BAR", Typology: "TH"})
	if err != nil {
		t.Fatalf("ListFiches failed: %v", err)
	}
	if len(barTH) != 1 || barTH[0].Code != "BAR-TH-104" {
		t.Errorf("Expected only BAR-TH-104, got %+v", barTH)
	}

	sectors, err := loader.Sectors()
	if err != nil {
		t.Fatalf("Sectors failed: %v", err)
	}
	if len(sectors) != 3 || sectors[0] != "BAR" {
		t.Errorf("Expected [BAR BAT IND], got %v", sectors)
	}

	typologies, err := loader.Typologies("BAR")
	if err != nil {
		t.Fatalf("Typologies failed: %v", err)
	}
	if len(typologies) != 2 || typologies[0] != "EN" || typologies[1] != "TH" {
		t.Errorf("Expected [EN TH], got %v", typologies)
	}
}

func TestImportNormalizesSectorAndTypology(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	fiche := &models.Fiche{
		Code:           "bar-th-104",
		Sector:         " bar",
		Typology:       "th ",
		FunctionSource: "def f(surface):\n    return surface * 10\n",
	}
	if err := loader.ImportFiche(fiche, OriginFile); err != nil {
		t.Fatalf("ImportFiche failed: %v", err)
	}

	sectors, err := loader.Sectors()
	if err != nil {
		t.Fatalf("Sectors failed: %v", err)
	}
	if len(sectors) != 1 || sectors[0] != "BAR" {
		t.Errorf("Expected [BAR], got %v", sectors)
	}

	for _, sector := range []string{"bar", "BAR", "Bar"} {
		typologies, err := loader.Typologies(sector)
		if err != nil {
			t.Fatalf("Typologies failed: %v", err)
		}
		if len(typologies) != 1 || typologies[0] != "TH" {
			t.Errorf("Expected [TH] for %q, got %v", sector, typologies)
		}

		list, err := loader.ListFiches(models.FicheFilter{Sector: sector, Typology: "th"})
		if err != nil {
			t.Fatalf("ListFiches failed: %v", err)
		}
		if len(list) != 1 || list[0].Code != "BAR-TH-104" {
			t.Errorf("Expected BAR-TH-104 for %q, got %+v", sector, list)
		}
	}
}

func TestUpdateFunction(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	options := map[string][]string{"zone": {"H1", "H2"}}
	if err := loader.UpdateFunction("res-ch-105", "def f(x):\n    return x\n", options); err != nil {
		t.Fatalf("UpdateFunction failed: %v", err)
	}

	fiche, err := loader.GetFiche("RES-CH-105")
	if err != nil {
		t.Fatalf("GetFiche failed: %v", err)
	}
	if fiche.Sector != "RES" || fiche.Typology != "CH" {
		t.Errorf("Expected derived sector/typology, got %s/%s", fiche.Sector, fiche.Typology)
	}
	if len(fiche.ParameterOptions["zone"]) != 2 {
		t.Errorf("Expected options to be stored, got %v", fiche.ParameterOptions)
	}

	if err := loader.UpdateFunction("RES-CH-105", "nope = 1\n", nil); !errors.Is(err, engine.ErrParse) {
		t.Errorf("Expected ErrParse for broken update, got %v", err)
	}
}

func TestDeleteFiche(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	loader := NewLoader(database.Conn(), nil)
	if err := loader.DeleteFiche("BAR-TH-999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
