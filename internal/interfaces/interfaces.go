package interfaces

import (
	"context"
	"database/sql"

	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/pkg/models"
)

// FicheStore reads the fiche catalogue
type FicheStore interface {
	// GetFiche retrieves a fiche, including its calculation source
	GetFiche(code string) (*models.Fiche, error)
	// ListFiches returns catalogue entries matching filter
	ListFiches(filter models.FicheFilter) ([]models.Fiche, error)
	// Sectors returns the distinct sectors of the catalogue
	Sectors() ([]string, error)
	// Typologies returns the typologies of a sector
	Typologies(sector string) ([]string, error)
}

// FicheImporter writes fiches into the catalogue
type FicheImporter interface {
	// LoadFromFile reads and parses a fiche YAML file
	LoadFromFile(path string) (*models.Fiche, error)
	// ImportFiche validates and stores a fiche
	ImportFiche(fiche *models.Fiche, origin string) error
	// UpdateFunction replaces a fiche's calculation source and options
	UpdateFunction(code, src string, options map[string][]string) error
}

// SourceFetcher retrieves calculation sources from object storage
type SourceFetcher interface {
	// FetchFunction returns the function source text of a fiche
	FetchFunction(ctx context.Context, code string) (string, error)
	// FetchParameterOptions returns the choice lists of a fiche's parameters
	FetchParameterOptions(ctx context.Context, code string) (map[string][]string, error)
}

// Calculator evaluates one fiche's calculation function
type Calculator interface {
	LoadFunction(src string) bool
	RequiredParameters() []engine.Parameter
	Calculate(raw map[string]any) engine.Result
}

// SimulationStore persists saved simulations per user
type SimulationStore interface {
	Save(sim *models.Simulation) error
	Get(userID, id string) (*models.Simulation, error)
	Delete(userID, id string) error
	List(userID string, q models.HistoryQuery) (*models.HistoryPage, error)
	All(userID string, q models.HistoryQuery) ([]models.Simulation, error)
	Totals(userID string) (*models.HistoryTotals, error)
}

// CalculationLogger records calculation attempts
type CalculationLogger interface {
	// LogCalculation records the start of an attempt and returns its id
	LogCalculation(sessionID, ficheCode string) (int64, error)
	// UpdateLogStatus records the outcome of an attempt
	UpdateLogStatus(logID int64, status, errorMsg string, durationMs int64) error
	// RecentLogs returns the latest attempts
	RecentLogs(limit int) ([]models.LogEntry, error)
}

// SettingsManager handles settings persistence
type SettingsManager interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// DatabaseConnection provides low-level database access
type DatabaseConnection interface {
	// Conn returns the underlying sql.DB connection
	Conn() *sql.DB
	// Close closes the database connection
	Close() error
	// Migrate runs database migrations
	Migrate() error
}
