package journey

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/themobileprof/ceepilot/pkg/models"
)

func readJourneys(t *testing.T, path string) []Journey {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open journey log: %v", err)
	}
	defer f.Close()

	var out []Journey
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var j Journey
		if err := json.Unmarshal(sc.Bytes(), &j); err != nil {
			t.Fatalf("Invalid journey line %q: %v", sc.Text(), err)
		}
		out = append(out, j)
	}
	return out
}

func TestJourneyLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "journeys.jsonl")
	l := NewLogger(path)

	sel := models.Selection{Department: "75", FicheCode: "BAR-TH-104"}
	l.Start("alice", sel)
	l.AddStep("alice", "select", 3*time.Millisecond, "BAR-TH-104")
	l.AddStep("alice", "calculate", 2*time.Millisecond, "")
	l.SetOutcome("alice", Outcome{Success: true, Cumacs: 10000, Euros: 65})

	l.Start("bob", models.Selection{FicheCode: "BAT-EN-101"})
	if l.Open() != 2 {
		t.Errorf("Expected 2 open journeys, got %d", l.Open())
	}

	if err := l.End("alice"); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if err := l.End("bob"); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if l.Open() != 0 {
		t.Errorf("Expected no open journeys, got %d", l.Open())
	}

	journeys := readJourneys(t, path)
	if len(journeys) != 2 {
		t.Fatalf("Expected 2 journeys, got %d", len(journeys))
	}
	a := journeys[0]
	if a.Session != "alice" || a.Selection.FicheCode != "BAR-TH-104" {
		t.Errorf("Unexpected journey: %+v", a)
	}
	if len(a.Steps) != 2 || a.Steps[0].Action != "select" || a.Steps[0].DurationMs != 3 {
		t.Errorf("Unexpected steps: %+v", a.Steps)
	}
	if a.Outcome == nil || a.Outcome.Euros != 65 {
		t.Errorf("Expected outcome with 65 euros, got %+v", a.Outcome)
	}
	if journeys[1].Outcome != nil {
		t.Errorf("Expected no outcome for bob, got %+v", journeys[1].Outcome)
	}
}

func TestStepsWithoutJourneyIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journeys.jsonl")
	l := NewLogger(path)

	l.AddStep("ghost", "calculate", time.Millisecond, "")
	l.SetOutcome("ghost", Outcome{Success: true})
	if err := l.End("ghost"); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected no log file, got %v", err)
	}
}

func TestDisabledLogger(t *testing.T) {
	l := NewLogger("")
	if l.Enabled() {
		t.Error("Expected logger without path to be disabled")
	}
	l.Start("alice", models.Selection{})
	if l.Open() != 0 {
		t.Errorf("Expected nothing recorded, got %d", l.Open())
	}
	if err := l.End("alice"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	var nilLogger *Logger
	nilLogger.Start("x", models.Selection{})
	if err := nilLogger.End("x"); err != nil {
		t.Errorf("Expected nil logger to be a no-op, got %v", err)
	}
}
