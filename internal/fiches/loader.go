package fiches

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a fiche code is not in the catalogue
var ErrNotFound = errors.New("fiche not found")

// Origins of a catalogue entry
const (
	OriginFile    = "file"
	OriginStorage = "storage"
)

// Loader handles fiche loading and storage
type Loader struct {
	db        *sql.DB
	functions *engine.Loader
}

// NewLoader creates a fiche loader. functions validates calculation sources
// before they are stored; nil uses the default strict loader.
func NewLoader(db *sql.DB, functions *engine.Loader) *Loader {
	if functions == nil {
		functions = engine.DefaultLoader()
	}
	return &Loader{db: db, functions: functions}
}

// NormalizeCode upper-cases and trims a fiche code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// splitCode derives sector and typology from a code such as BAR-TH-104
func splitCode(code string) (sector, typology string) {
	parts := strings.Split(code, "-")
	if len(parts) >= 3 {
		return parts[0], parts[1]
	}
	return "", ""
}

// normalize upper-cases code, sector and typology, deriving the last two
// from the code when absent. Catalogue filters compare upper-case values.
func normalize(fiche *models.Fiche) {
	fiche.Code = NormalizeCode(fiche.Code)
	fiche.Sector = NormalizeCode(fiche.Sector)
	fiche.Typology = NormalizeCode(fiche.Typology)
	if fiche.Code == "" {
		return
	}
	sector, typology := splitCode(fiche.Code)
	if fiche.Sector == "" {
		fiche.Sector = sector
	}
	if fiche.Typology == "" {
		fiche.Typology = typology
	}
	if fiche.Name == "" {
		fiche.Name = fiche.Code
	}
}

// LoadFromFile reads and parses a fiche YAML file
func (l *Loader) LoadFromFile(path string) (*models.Fiche, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fiche file: %w", err)
	}

	var fiche models.Fiche
	if err := yaml.Unmarshal(data, &fiche); err != nil {
		return nil, fmt.Errorf("failed to parse fiche YAML: %w", err)
	}

	normalize(&fiche)
	if fiche.Code == "" {
		return nil, fmt.Errorf("fiche %s has no code", path)
	}

	return &fiche, nil
}

// Check verifies that the fiche's calculation function loads
func (l *Loader) Check(fiche *models.Fiche) (*engine.FunctionDefinition, error) {
	if strings.TrimSpace(fiche.FunctionSource) == "" {
		return nil, fmt.Errorf("fiche %s has no calculation function", fiche.Code)
	}
	def, err := l.functions.Load(fiche.FunctionSource)
	if err != nil {
		return nil, fmt.Errorf("fiche %s: %w", fiche.Code, err)
	}
	return def, nil
}

// ImportFiche validates a fiche and stores it in the catalogue
func (l *Loader) ImportFiche(fiche *models.Fiche, origin string) error {
	normalize(fiche)
	if fiche.Code == "" {
		return fmt.Errorf("fiche has no code")
	}

	if _, err := l.Check(fiche); err != nil {
		return err
	}

	params, err := json.Marshal(nonNilOptions(fiche.ParameterOptions))
	if err != nil {
		return fmt.Errorf("failed to marshal parameter options: %w", err)
	}
	labels, err := json.Marshal(nonNilLabels(fiche.Labels))
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	_, err = l.db.Exec(`
		INSERT INTO fiches (code, name, version, sector, typology, description, function_source, parameters_json, labels_json, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			sector = excluded.sector,
			typology = excluded.typology,
			description = excluded.description,
			function_source = excluded.function_source,
			parameters_json = excluded.parameters_json,
			labels_json = excluded.labels_json,
			origin = excluded.origin,
			updated_at = strftime('%s', 'now')
	`,
		fiche.Code, fiche.Name, fiche.Version, fiche.Sector, fiche.Typology, fiche.Description,
		fiche.FunctionSource, string(params), string(labels), origin,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fiche %s: %w", fiche.Code, err)
	}

	return nil
}

// UpdateFunction replaces the calculation source and parameter options of an
// existing fiche, or creates a minimal entry for it.
func (l *Loader) UpdateFunction(code, src string, options map[string][]string) error {
	code = NormalizeCode(code)
	fiche, err := l.GetFiche(code)
	if errors.Is(err, ErrNotFound) {
		sector, typology := splitCode(code)
		fiche = &models.Fiche{Code: code, Name: code, Sector: sector, Typology: typology}
	} else if err != nil {
		return err
	}

	fiche.FunctionSource = src
	if options != nil {
		fiche.ParameterOptions = options
	}
	return l.ImportFiche(fiche, OriginStorage)
}

// GetFiche retrieves a fiche by code
func (l *Loader) GetFiche(code string) (*models.Fiche, error) {
	var f models.Fiche
	var params, labels string
	var updatedAt int64
	err := l.db.QueryRow(`
		SELECT code, name, version, sector, typology, description, function_source, parameters_json, labels_json, updated_at
		FROM fiches WHERE code = ?
	`, NormalizeCode(code)).Scan(&f.Code, &f.Name, &f.Version, &f.Sector, &f.Typology, &f.Description,
		&f.FunctionSource, &params, &labels, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fiche: %w", err)
	}

	if err := json.Unmarshal([]byte(params), &f.ParameterOptions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameter options: %w", err)
	}
	if err := json.Unmarshal([]byte(labels), &f.Labels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
	}
	f.UpdatedAt = time.Unix(updatedAt, 0)

	return &f, nil
}

// ListFiches returns catalogue entries without their function source
func (l *Loader) ListFiches(filter models.FicheFilter) ([]models.Fiche, error) {
	query := `SELECT code, name, version, sector, typology, description, updated_at FROM fiches WHERE 1 = 1`
	var args []any
	if filter.Sector != "" {
		query += ` AND sector = ?`
		args = append(args, NormalizeCode(filter.Sector))
	}
	if filter.Typology != "" {
		query += ` AND typology = ?`
		args = append(args, NormalizeCode(filter.Typology))
	}
	query += ` ORDER BY code`

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fiches: %w", err)
	}
	defer rows.Close()

	var fiches []models.Fiche
	for rows.Next() {
		var f models.Fiche
		var updatedAt int64
		if err := rows.Scan(&f.Code, &f.Name, &f.Version, &f.Sector, &f.Typology, &f.Description, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fiche: %w", err)
		}
		f.UpdatedAt = time.Unix(updatedAt, 0)
		fiches = append(fiches, f)
	}

	return fiches, rows.Err()
}

// Sectors returns the distinct sectors present in the catalogue
func (l *Loader) Sectors() ([]string, error) {
	return l.distinct(`SELECT DISTINCT sector FROM fiches WHERE sector != '' ORDER BY sector`)
}

// Typologies returns the distinct typologies of a sector
func (l *Loader) Typologies(sector string) ([]string, error) {
	return l.distinct(`SELECT DISTINCT typology FROM fiches WHERE sector = ? AND typology != '' ORDER BY typology`, NormalizeCode(sector))
}

// DeleteFiche removes a fiche from the catalogue
func (l *Loader) DeleteFiche(code string) error {
	res, err := l.db.Exec("DELETE FROM fiches WHERE code = ?", NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to delete fiche: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return nil
}

func (l *Loader) distinct(query string, args ...any) ([]string, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalogue: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func nonNilOptions(m map[string][]string) map[string][]string {
	if m == nil {
		return map[string][]string{}
	}
	return m
}

func nonNilLabels(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
