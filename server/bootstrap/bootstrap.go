package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/themobileprof/ceepilot/internal/fiches"
	"github.com/themobileprof/ceepilot/internal/interfaces"
	"github.com/themobileprof/ceepilot/internal/storage"
)

// SeedFiches imports every YAML fiche of dir into the catalogue. Files that
// fail to parse or whose function does not load are skipped with a warning.
func SeedFiches(importer interfaces.FicheImporter, dir string) (int, error) {
	log.Println("🌱 Seeding fiches from", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read fiches directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || (!strings.HasSuffix(entry.Name(), ".yaml") && !strings.HasSuffix(entry.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		fiche, err := importer.LoadFromFile(path)
		if err != nil {
			log.Printf("Warning: failed to parse %s: %v", path, err)
			continue
		}

		if err := importer.ImportFiche(fiche, fiches.OriginFile); err != nil {
			log.Printf("Warning: failed to seed %s: %v", fiche.Code, err)
			continue
		}
		count++
	}

	log.Printf("✓ Seeded %d fiches", count)
	return count, nil
}

// SyncFiches refreshes the listed fiches from object storage. It returns the
// codes that failed.
func SyncFiches(ctx context.Context, client *storage.Client, catalogue storage.FicheUpdater, codes []string) []string {
	var failed []string
	for _, code := range codes {
		if err := client.Sync(ctx, code, catalogue); err != nil {
			log.Printf("Warning: failed to sync %s: %v", code, err)
			failed = append(failed, code)
			continue
		}
		log.Printf("✓ Synced %s", code)
	}
	return failed
}

// Status reports catalogue and history counts
func Status(db *sql.DB) (map[string]int, error) {
	status := make(map[string]int)
	for key, query := range map[string]string{
		"fiches":      "SELECT COUNT(*) FROM fiches",
		"simulations": "SELECT COUNT(*) FROM simulations",
		"users":       "SELECT COUNT(DISTINCT user_id) FROM simulations",
	} {
		var n int
		if err := db.QueryRow(query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", key, err)
		}
		status[key] = n
	}
	return status, nil
}
