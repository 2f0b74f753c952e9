package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/themobileprof/ceepilot/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migration.sql
var migrationSQL string

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	// Pure Go driver, no CGO needed
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	_, err := db.conn.Exec(migrationSQL)
	if err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying database connection for advanced operations
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// GetSetting retrieves a setting value
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting updates or inserts a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = strftime('%s', 'now')
	`, key, value, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// LogCalculation records the start of a calculation attempt
func (db *DB) LogCalculation(sessionID, ficheCode string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO logs (session_id, fiche_code, status)
		VALUES (?, ?, 'started')
	`, sessionID, ficheCode)
	if err != nil {
		return 0, fmt.Errorf("failed to log calculation: %w", err)
	}
	return result.LastInsertId()
}

// UpdateLogStatus updates the status of a log entry
func (db *DB) UpdateLogStatus(logID int64, status, errorMsg string, durationMs int64) error {
	_, err := db.conn.Exec(`
		UPDATE logs SET status = ?, error_message = ?, duration_ms = ?
		WHERE id = ?
	`, status, errorMsg, durationMs, logID)
	if err != nil {
		return fmt.Errorf("failed to update log status: %w", err)
	}
	return nil
}

// RecentLogs returns the latest calculation log entries, newest first
func (db *DB) RecentLogs(limit int) ([]models.LogEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, session_id, fiche_code, status, error_message, duration_ms, created_at
		FROM logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.FicheCode, &e.Status, &e.Error, &e.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Begin starts a transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}
