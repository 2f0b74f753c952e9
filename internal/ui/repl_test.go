package ui

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/themobileprof/ceepilot/internal/db"
	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/internal/fiches"
	"github.com/themobileprof/ceepilot/internal/history"
	"github.com/themobileprof/ceepilot/internal/session"
	"github.com/themobileprof/ceepilot/pkg/models"
)

func setupREPL(t *testing.T) (*REPL, *bytes.Buffer, *history.Store) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	catalogue := fiches.NewLoader(database.Conn(), nil)
	err = catalogue.ImportFiche(&models.Fiche{
		Code:             "BAR-EN-101",
		Name:             "Isolation de combles",
		FunctionSource:   "def f(surface, zone):\n    return surface * {'H1': 1700, 'H2': 1400}[zone]\n",
		ParameterOptions: map[string][]string{"zone": {"H1", "H2"}},
	}, fiches.OriginFile)
	if err != nil {
		t.Fatalf("ImportFiche failed: %v", err)
	}

	quiet := func() *engine.Engine { return engine.New(engine.WithLogger(log.New(io.Discard, "", 0))) }
	sess := session.NewManager(0, quiet).Get("tester")
	store := history.NewStore(database.Conn())

	var out bytes.Buffer
	return NewREPL(catalogue, store, database, sess, "tester", &out), &out, store
}

func TestREPLWizard(t *testing.T) {
	repl, out, store := setupREPL(t)

	script := strings.Join([]string{
		"sectors",
		"fiches bar",
		"department 75",
		"select bar-en-101",
		"set surface=100",
		"calc",
		"set zone=H1",
		"calc",
		"save",
		"history",
		"logs",
		"exit",
	}, "\n")

	if err := repl.Start(strings.NewReader(script)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	output := out.String()
	for _, want := range []string{
		"• BAR: EN",
		"BAR-EN-101  Isolation de combles",
		"* zone [H1|H2]",
		"✗ missing required parameters: zone",
		"✓ 170000.00 kWh cumac = 1105.00 €",
		"Saved simulation",
		"Saved simulations (1)",
		"Status: failed",
		"Au revoir",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q\n%s", want, output)
		}
	}

	page, err := store.List("tester", models.HistoryQuery{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Total != 1 || page.Items[0].Department != "75" {
		t.Errorf("Unexpected saved history: %+v", page.Items)
	}
}

func TestREPLErrors(t *testing.T) {
	repl, _, _ := setupREPL(t)

	tests := []struct {
		input string
	}{
		{"calc"},
		{"form"},
		{"save"},
		{"select"},
		{"select NOPE-XX-1"},
		{"set novalue"},
		{"date"},
		{"frobnicate"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if err := repl.ExecuteNonInteractive(tt.input); err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
		})
	}
}

func TestREPLEndOfInput(t *testing.T) {
	repl, out, _ := setupREPL(t)
	if err := repl.Start(strings.NewReader("help\n")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !strings.Contains(out.String(), "Available Commands") {
		t.Errorf("Expected help output, got %s", out.String())
	}
}
