package mocks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/themobileprof/ceepilot/internal/interfaces"
	"github.com/themobileprof/ceepilot/pkg/models"
)

// MockFicheStore is an in-memory FicheStore for testing
type MockFicheStore struct {
	GetFicheFunc   func(code string) (*models.Fiche, error)
	ListFichesFunc func(filter models.FicheFilter) ([]models.Fiche, error)
	SectorsFunc    func() ([]string, error)
	TypologiesFunc func(sector string) ([]string, error)
	fiches         map[string]*models.Fiche
}

// NewMockFicheStore creates a mock catalogue holding fiches
func NewMockFicheStore(fiches ...*models.Fiche) *MockFicheStore {
	m := &MockFicheStore{fiches: make(map[string]*models.Fiche)}
	for _, f := range fiches {
		m.fiches[f.Code] = f
	}
	return m
}

func (m *MockFicheStore) GetFiche(code string) (*models.Fiche, error) {
	if m.GetFicheFunc != nil {
		return m.GetFicheFunc(code)
	}
	if f, ok := m.fiches[code]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("fiche not found: %s", code)
}

func (m *MockFicheStore) ListFiches(filter models.FicheFilter) ([]models.Fiche, error) {
	if m.ListFichesFunc != nil {
		return m.ListFichesFunc(filter)
	}
	var result []models.Fiche
	for _, f := range m.fiches {
		if filter.Sector != "" && f.Sector != filter.Sector {
			continue
		}
		if filter.Typology != "" && f.Typology != filter.Typology {
			continue
		}
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *MockFicheStore) Sectors() ([]string, error) {
	if m.SectorsFunc != nil {
		return m.SectorsFunc()
	}
	seen := make(map[string]bool)
	var result []string
	for _, f := range m.fiches {
		if f.Sector != "" && !seen[f.Sector] {
			seen[f.Sector] = true
			result = append(result, f.Sector)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *MockFicheStore) Typologies(sector string) ([]string, error) {
	if m.TypologiesFunc != nil {
		return m.TypologiesFunc(sector)
	}
	seen := make(map[string]bool)
	var result []string
	for _, f := range m.fiches {
		if f.Sector == sector && f.Typology != "" && !seen[f.Typology] {
			seen[f.Typology] = true
			result = append(result, f.Typology)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Ensure MockFicheStore implements FicheStore interface
var _ interfaces.FicheStore = (*MockFicheStore)(nil)

// MockSimulationStore is an in-memory SimulationStore for testing
type MockSimulationStore struct {
	SaveFunc   func(sim *models.Simulation) error
	ListFunc   func(userID string, q models.HistoryQuery) (*models.HistoryPage, error)
	TotalsFunc func(userID string) (*models.HistoryTotals, error)
	sims       []*models.Simulation
	nextID     int
	mu         sync.Mutex
}

// NewMockSimulationStore creates an empty mock history
func NewMockSimulationStore() *MockSimulationStore {
	return &MockSimulationStore{}
}

func (m *MockSimulationStore) Save(sim *models.Simulation) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(sim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sim.ID = fmt.Sprintf("sim-%d", m.nextID)
	m.sims = append(m.sims, sim)
	return nil
}

func (m *MockSimulationStore) Get(userID, id string) (*models.Simulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sims {
		if s.UserID == userID && s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("simulation not found: %s", id)
}

func (m *MockSimulationStore) Delete(userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sims {
		if s.UserID == userID && s.ID == id {
			m.sims = append(m.sims[:i], m.sims[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("simulation not found: %s", id)
}

func (m *MockSimulationStore) List(userID string, q models.HistoryQuery) (*models.HistoryPage, error) {
	if m.ListFunc != nil {
		return m.ListFunc(userID, q)
	}
	items, _ := m.All(userID, q)
	if items == nil {
		items = []models.Simulation{}
	}
	return &models.HistoryPage{Items: items, Total: len(items), Page: 1, PageSize: len(items)}, nil
}

func (m *MockSimulationStore) All(userID string, q models.HistoryQuery) ([]models.Simulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Simulation
	for _, s := range m.sims {
		if s.UserID == userID {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *MockSimulationStore) Totals(userID string) (*models.HistoryTotals, error) {
	if m.TotalsFunc != nil {
		return m.TotalsFunc(userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &models.HistoryTotals{}
	for _, s := range m.sims {
		if s.UserID == userID && s.Success {
			t.Count++
			t.Cumacs += s.Cumacs
			t.Euros += s.Euros
		}
	}
	return t, nil
}

// Ensure MockSimulationStore implements SimulationStore interface
var _ interfaces.SimulationStore = (*MockSimulationStore)(nil)

// MockCalculationLogger records calculation log calls in memory
type MockCalculationLogger struct {
	Entries []models.LogEntry
	mu      sync.Mutex
}

func (m *MockCalculationLogger) LogCalculation(sessionID, ficheCode string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.Entries) + 1)
	m.Entries = append(m.Entries, models.LogEntry{ID: id, SessionID: sessionID, FicheCode: ficheCode, Status: "started"})
	return id, nil
}

func (m *MockCalculationLogger) UpdateLogStatus(logID int64, status, errorMsg string, durationMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logID < 1 || int(logID) > len(m.Entries) {
		return fmt.Errorf("log entry not found: %d", logID)
	}
	e := &m.Entries[logID-1]
	e.Status = status
	e.Error = errorMsg
	e.DurationMs = durationMs
	return nil
}

func (m *MockCalculationLogger) RecentLogs(limit int) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.LogEntry
	for i := len(m.Entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, m.Entries[i])
	}
	return result, nil
}

// Ensure MockCalculationLogger implements CalculationLogger interface
var _ interfaces.CalculationLogger = (*MockCalculationLogger)(nil)
