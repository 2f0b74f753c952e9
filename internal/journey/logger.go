package journey

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/themobileprof/ceepilot/pkg/models"
)

// Journey records one pass through the wizard, from selection to result
type Journey struct {
	Session   string           `json:"session"`
	Timestamp time.Time        `json:"timestamp"`
	Selection models.Selection `json:"selection"`
	Steps     []Step           `json:"steps"`
	Outcome   *Outcome         `json:"outcome,omitempty"`
}

// Step is one wizard action (select, calculate, save)
type Step struct {
	Action     string `json:"action"`
	DurationMs int64  `json:"duration_ms"`
	Details    string `json:"details,omitempty"`
}

// Outcome is the last calculation of a journey
type Outcome struct {
	Success bool    `json:"success"`
	Cumacs  float64 `json:"cumacs"`
	Euros   float64 `json:"euros"`
	Error   string  `json:"error,omitempty"`
}

// Logger appends finished journeys to a JSONL file. A Logger with an empty
// path records nothing.
type Logger struct {
	mu          sync.Mutex
	open        map[string]*Journey
	logFilePath string
	now         func() time.Time
}

// NewLogger creates a journey logger writing to path
func NewLogger(path string) *Logger {
	return &Logger{
		open:        make(map[string]*Journey),
		logFilePath: path,
		now:         time.Now,
	}
}

// Enabled reports whether journeys are written anywhere
func (l *Logger) Enabled() bool {
	return l != nil && l.logFilePath != ""
}

// Start begins a journey for session, dropping any unfinished one
func (l *Logger) Start(session string, sel models.Selection) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.open[session] = &Journey{
		Session:   session,
		Timestamp: l.now(),
		Selection: sel,
		Steps:     make([]Step, 0),
	}
}

// AddStep records a wizard action on the session's journey
func (l *Logger) AddStep(session, action string, duration time.Duration, details string) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	j := l.open[session]
	if j == nil {
		return
	}
	j.Steps = append(j.Steps, Step{
		Action:     action,
		DurationMs: duration.Milliseconds(),
		Details:    details,
	})
}

// SetOutcome records the latest calculation result of the session
func (l *Logger) SetOutcome(session string, out Outcome) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if j := l.open[session]; j != nil {
		j.Outcome = &out
	}
}

// End writes the session's journey as one JSON line and forgets it
func (l *Logger) End(session string) error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	j := l.open[session]
	if j == nil {
		return nil
	}
	delete(l.open, session)

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal journey: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.logFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create journey directory: %w", err)
	}
	f, err := os.OpenFile(l.logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journey log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journey log: %w", err)
	}
	return nil
}

// Open returns the number of unfinished journeys
func (l *Logger) Open() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}
