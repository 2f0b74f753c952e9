package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/pkg/models"
)

// ErrNoFiche is returned when an action needs a selected fiche
var ErrNoFiche = errors.New("no fiche selected")

// ErrNoResult is returned when saving before any calculation
var ErrNoResult = errors.New("no calculation to save")

// Session is one user's wizard state. It owns its Engine, so a fiche
// selected by one user never replaces another user's function.
type Session struct {
	mu         sync.Mutex
	key        string
	engine     *engine.Engine
	selection  models.Selection
	fiche      *models.Fiche
	lastParams map[string]any
	lastResult *engine.Result
	lastSeen   time.Time
}

// Key returns the session key, usually the user id
func (s *Session) Key() string {
	return s.key
}

// Select loads the fiche's function and records the wizard selection. On
// failure the previous selection is kept without its fiche.
func (s *Session) Select(sel models.Selection, fiche *models.Fiche) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastParams = nil
	s.lastResult = nil
	sel.FicheCode = fiche.Code
	if sel.Sector == "" {
		sel.Sector = fiche.Sector
	}
	if sel.Typology == "" {
		sel.Typology = fiche.Typology
	}

	if !s.engine.LoadFunction(fiche.FunctionSource) {
		s.fiche = nil
		s.selection.FicheCode = ""
		return fmt.Errorf("%s: %s", fiche.Code, engine.Describe(s.engine.LastLoadError()))
	}
	s.selection = sel
	s.fiche = fiche
	return nil
}

// Selection returns the current wizard selection
func (s *Session) Selection() models.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Fiche returns the selected fiche, or nil
func (s *Session) Fiche() *models.Fiche {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fiche
}

// Parameters returns the loaded function's parameters
func (s *Session) Parameters() []engine.Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RequiredParameters()
}

// Calculate runs the selected fiche's function and remembers the outcome
func (s *Session) Calculate(raw map[string]any) engine.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.engine.Calculate(raw)
	params := make(map[string]any, len(raw))
	for k, v := range raw {
		params[k] = v
	}
	s.lastParams = params
	s.lastResult = &res
	return res
}

// LastSimulation builds a record of the last calculation for userID
func (s *Session) LastSimulation(userID string) (*models.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fiche == nil {
		return nil, ErrNoFiche
	}
	if s.lastResult == nil {
		return nil, ErrNoResult
	}

	return &models.Simulation{
		UserID:     userID,
		Date:       s.selection.Date,
		Department: s.selection.Department,
		Sector:     s.selection.Sector,
		Typology:   s.selection.Typology,
		FicheCode:  s.selection.FicheCode,
		Parameters: s.lastParams,
		Cumacs:     s.lastResult.Cumacs,
		Euros:      s.lastResult.Euros,
		Success:    s.lastResult.Success,
		Error:      s.lastResult.Error,
	}, nil
}

// Manager hands out one Session per key and expires idle ones
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	ttl       time.Duration
	newEngine func() *engine.Engine
	now       func() time.Time
}

// NewManager creates a session manager. newEngine builds the engine of each
// new session; nil uses engine.New with defaults.
func NewManager(ttl time.Duration, newEngine func() *engine.Engine) *Manager {
	if newEngine == nil {
		newEngine = func() *engine.Engine { return engine.New() }
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		ttl:       ttl,
		newEngine: newEngine,
		now:       time.Now,
	}
}

// Get returns the session for key, creating it if needed
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[key]
	if ok && m.ttl > 0 && now.Sub(s.lastSeen) > m.ttl {
		ok = false
	}
	if !ok {
		s = &Session{key: key, engine: m.newEngine()}
		m.sessions[key] = s
	}
	s.lastSeen = now
	return s
}

// Drop forgets the session for key
func (m *Manager) Drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes expired sessions and returns how many were dropped
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dropped := 0
	for key, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.ttl {
			delete(m.sessions, key)
			dropped++
		}
	}
	return dropped
}

// StartCleanup sweeps expired sessions every interval until stop is called
func (m *Manager) StartCleanup(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
