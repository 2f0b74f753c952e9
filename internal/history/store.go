package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/themobileprof/ceepilot/pkg/models"
)

// ErrNotFound is returned when a simulation does not exist for the user
var ErrNotFound = errors.New("simulation not found")

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// sortColumns whitelists the columns a listing may be ordered by
var sortColumns = map[string]string{
	"":           "created_at",
	"created_at": "created_at",
	"date":       "date",
	"cumacs":     "cumacs",
	"euros":      "euros",
	"fiche_code": "fiche_code",
}

const selectColumns = `id, user_id, created_at, date, department, sector, typology, fiche_code,
	parameters_json, cumacs, euros, success, error_message`

// Store persists saved simulations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a simulation store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Save stores sim, assigning its ID and CreatedAt
func (s *Store) Save(sim *models.Simulation) error {
	if sim.UserID == "" {
		return fmt.Errorf("simulation has no user")
	}
	if sim.FicheCode == "" {
		return fmt.Errorf("simulation has no fiche code")
	}

	params := sim.Parameters
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	sim.ID = uuid.NewString()
	sim.CreatedAt = s.now().UTC().Truncate(time.Second)

	_, err = s.db.Exec(`
		INSERT INTO simulations (id, user_id, created_at, date, department, sector, typology, fiche_code,
			parameters_json, cumacs, euros, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sim.ID, sim.UserID, sim.CreatedAt.Unix(), sim.Date, sim.Department, sim.Sector, sim.Typology,
		sim.FicheCode, string(paramsJSON), sim.Cumacs, sim.Euros, sim.Success, sim.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert simulation: %w", err)
	}
	return nil
}

// Get returns one of the user's simulations
func (s *Store) Get(userID, id string) (*models.Simulation, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM simulations WHERE user_id = ? AND id = ?`, userID, id)
	sim, err := scanSimulation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sim, nil
}

// Delete removes one of the user's simulations
func (s *Store) Delete(userID, id string) error {
	res, err := s.db.Exec("DELETE FROM simulations WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete simulation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns one page of the user's simulations matching q
func (s *Store) List(userID string, q models.HistoryQuery) (*models.HistoryPage, error) {
	column, ok := sortColumns[q.SortBy]
	if !ok {
		return nil, fmt.Errorf("cannot sort by %q", q.SortBy)
	}
	page, size := normalizePage(q.Page, q.PageSize)

	where, args := filterClause(userID, q)

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM simulations `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count simulations: %w", err)
	}

	direction := "ASC"
	if q.Desc {
		direction = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM simulations %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		selectColumns, where, column, direction, direction)

	rows, err := s.db.Query(query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulations: %w", err)
	}
	defer rows.Close()

	items := []models.Simulation{}
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *sim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.HistoryPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// All returns every simulation of the user matching q, unpaginated
func (s *Store) All(userID string, q models.HistoryQuery) ([]models.Simulation, error) {
	q.Page = 1
	q.PageSize = maxPageSize
	var all []models.Simulation
	for {
		p, err := s.List(userID, q)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if len(all) >= p.Total || len(p.Items) == 0 {
			return all, nil
		}
		q.Page++
	}
}

// Totals sums the user's successful simulations
func (s *Store) Totals(userID string) (*models.HistoryTotals, error) {
	var t models.HistoryTotals
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(cumacs), 0), COALESCE(SUM(euros), 0)
		FROM simulations WHERE user_id = ? AND success = 1
	`, userID).Scan(&t.Count, &t.Cumacs, &t.Euros)
	if err != nil {
		return nil, fmt.Errorf("failed to sum simulations: %w", err)
	}
	return &t, nil
}

func filterClause(userID string, q models.HistoryQuery) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{userID}
	if q.FicheCode != "" {
		conds = append(conds, "fiche_code = ?")
		args = append(args, strings.ToUpper(q.FicheCode))
	}
	if q.Sector != "" {
		conds = append(conds, "sector = ?")
		args = append(args, strings.ToUpper(q.Sector))
	}
	if q.Department != "" {
		conds = append(conds, "department = ?")
		args = append(args, q.Department)
	}
	if q.SuccessOnly {
		conds = append(conds, "success = 1")
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSimulation(row scanner) (*models.Simulation, error) {
	var sim models.Simulation
	var createdAt int64
	var params string
	err := row.Scan(&sim.ID, &sim.UserID, &createdAt, &sim.Date, &sim.Department, &sim.Sector,
		&sim.Typology, &sim.FicheCode, &params, &sim.Cumacs, &sim.Euros, &sim.Success, &sim.Error)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan simulation: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &sim.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	sim.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &sim, nil
}
