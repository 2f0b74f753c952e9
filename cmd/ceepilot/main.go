package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/themobileprof/ceepilot/internal/config"
	"github.com/themobileprof/ceepilot/internal/db"
	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/internal/export"
	"github.com/themobileprof/ceepilot/internal/fiches"
	"github.com/themobileprof/ceepilot/internal/history"
	"github.com/themobileprof/ceepilot/internal/session"
	"github.com/themobileprof/ceepilot/internal/storage"
	"github.com/themobileprof/ceepilot/internal/ui"
	"github.com/themobileprof/ceepilot/pkg/models"
	"github.com/themobileprof/ceepilot/server/bootstrap"
)

var (
	version     = "1.0.0"
	configPath  string
	dbPath      string
	initDB      bool
	loadDir     string
	listFiches  bool
	sector      string
	ficheCode   string
	params      paramFlags
	date        string
	department  string
	saveResult  bool
	userID      string
	showHistory bool
	exportPath  string
	syncCodes   string
	showVersion bool
)

// paramFlags collects repeated -param key=value flags
type paramFlags map[string]any

func (p paramFlags) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (p paramFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	p[strings.TrimSpace(key)] = value
	return nil
}

func init() {
	params = paramFlags{}

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "Path to configuration file")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	flag.BoolVar(&initDB, "init", false, "Initialize database and load fiches")
	flag.StringVar(&loadDir, "load", "", "Load fiches from directory")
	flag.BoolVar(&listFiches, "list", false, "List catalogue fiches")
	flag.StringVar(&sector, "sector", "", "Filter -list by sector")
	flag.StringVar(&ficheCode, "fiche", "", "Fiche to calculate")
	flag.Var(params, "param", "Calculation parameter key=value (repeatable)")
	flag.StringVar(&date, "date", "", "Date of the works (YYYY-MM-DD)")
	flag.StringVar(&department, "department", "", "Department of the works")
	flag.BoolVar(&saveResult, "save", false, "Save the calculation in the user's history")
	flag.StringVar(&userID, "user", "local", "User owning saved simulations")
	flag.BoolVar(&showHistory, "history", false, "Show the user's saved simulations")
	flag.StringVar(&exportPath, "export", "", "Export the user's simulations to an .xlsx file")
	flag.StringVar(&syncCodes, "sync", "", "Comma-separated fiche codes to refresh from storage")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("CEEPilot v%s\n", version)
		fmt.Println("CEE subsidy estimator")
		return
	}

	if err := config.LoadEnvFiles(".env"); err != nil {
		log.Printf("Warning: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	functions := engine.NewLoader(engine.DefaultSandbox(), engine.LoaderOptions{
		Strict:   cfg.StrictSandbox,
		MaxSteps: cfg.MaxSteps,
	})
	catalogue := fiches.NewLoader(database.Conn(), functions)
	store := history.NewStore(database.Conn())

	switch {
	case initDB:
		err = initialize(cfg, catalogue)
	case loadDir != "":
		_, err = bootstrap.SeedFiches(catalogue, loadDir)
	case syncCodes != "":
		err = syncFiches(cfg, database, catalogue)
	case listFiches:
		err = list(catalogue)
	case ficheCode != "":
		err = calculate(cfg, functions, catalogue, store)
	case showHistory:
		err = printHistory(store)
	case exportPath != "":
		err = exportHistory(store)
	default:
		err = interactive(cfg, functions, catalogue, store, database)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func initialize(cfg *config.Config, catalogue *fiches.Loader) error {
	fmt.Println("Initializing CEEPilot...")
	fmt.Println("✓ Database initialized")

	dir := cfg.FichesDir
	if _, err := os.Stat(dir); err != nil {
		dir = "fiches"
	}
	if _, err := os.Stat(dir); err == nil {
		if _, err := bootstrap.SeedFiches(catalogue, dir); err != nil {
			fmt.Printf("Warning: failed to load fiches: %v\n", err)
		}
	}

	fmt.Println("\n✓ CEEPilot initialized successfully!")
	return nil
}

func syncFiches(cfg *config.Config, database *db.DB, catalogue *fiches.Loader) error {
	if cfg.StorageURL == "" {
		return fmt.Errorf("storage_url is not configured")
	}
	client := storage.NewClient(database.Conn(), cfg.StorageURL, time.Duration(cfg.StorageTTL)*time.Second)

	var codes []string
	for _, c := range strings.Split(syncCodes, ",") {
		if c = fiches.NormalizeCode(c); c != "" {
			codes = append(codes, c)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if failed := bootstrap.SyncFiches(ctx, client, catalogue, codes); len(failed) > 0 {
		return fmt.Errorf("failed to sync %s", strings.Join(failed, ", "))
	}
	return nil
}

func list(catalogue *fiches.Loader) error {
	items, err := catalogue.ListFiches(models.FicheFilter{Sector: sector})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No fiches installed. Run with -load DIR first.")
		return nil
	}
	for _, f := range items {
		fmt.Printf("%-12s %-4s %-4s %s\n", f.Code, f.Sector, f.Typology, f.Name)
	}
	return nil
}

// newSession creates the single wizard session of a CLI run
func newSession(cfg *config.Config, functions *engine.Loader) *session.Session {
	sessions := session.NewManager(0, func() *engine.Engine {
		return engine.New(engine.WithConversionRate(cfg.ConversionRate), engine.WithLoader(functions))
	})
	return sessions.Get(userID)
}

func interactive(cfg *config.Config, functions *engine.Loader, catalogue *fiches.Loader, store *history.Store, database *db.DB) error {
	repl := ui.NewREPL(catalogue, store, database, newSession(cfg, functions), userID, os.Stdout)

	// Non-interactive mode - join all args as a single command
	if args := flag.Args(); len(args) > 0 {
		return repl.ExecuteNonInteractive(strings.Join(args, " "))
	}
	return repl.Start(os.Stdin)
}

func calculate(cfg *config.Config, functions *engine.Loader, catalogue *fiches.Loader, store *history.Store) error {
	fiche, err := catalogue.GetFiche(ficheCode)
	if err != nil {
		return err
	}

	sess := newSession(cfg, functions)
	if err := sess.Select(models.Selection{Date: date, Department: department}, fiche); err != nil {
		return err
	}

	if len(params) == 0 {
		fmt.Printf("%s - %s\n", fiche.Code, fiche.Name)
		for _, p := range sess.Parameters() {
			marker := " "
			if p.Required {
				marker = "*"
			}
			line := fmt.Sprintf("  %s %s", marker, p.Name)
			if label := fiche.Labels[p.Name]; label != "" {
				line += " (" + label + ")"
			}
			if opts := fiche.ParameterOptions[p.Name]; len(opts) > 0 {
				line += " [" + strings.Join(opts, ", ") + "]"
			}
			if p.HasDefault {
				line += fmt.Sprintf(" default=%v", p.Default)
			}
			fmt.Println(line)
		}
		return nil
	}

	res := sess.Calculate(params)
	if !res.Success {
		fmt.Printf("✗ %s\n", res.Error)
	} else {
		fmt.Printf("✓ %s: %.2f kWh cumac, %.2f €\n", fiche.Code, res.Cumacs, res.Euros)
	}

	if saveResult {
		sim, err := sess.LastSimulation(userID)
		if err != nil {
			return err
		}
		if err := store.Save(sim); err != nil {
			return err
		}
		fmt.Printf("✓ Saved simulation %s\n", sim.ID)
	}
	return nil
}

func printHistory(store *history.Store) error {
	sims, err := store.All(userID, models.HistoryQuery{Desc: true})
	if err != nil {
		return err
	}
	if len(sims) == 0 {
		fmt.Println("No saved simulations.")
		return nil
	}
	for _, s := range sims {
		status := "✓"
		if !s.Success {
			status = "✗"
		}
		fmt.Printf("%s %s %-12s %12.2f kWh cumac %10.2f €  %s\n",
			status, s.CreatedAt.Format("2006-01-02 15:04"), s.FicheCode, s.Cumacs, s.Euros, s.ID)
	}

	totals, err := store.Totals(userID)
	if err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d simulations, %.2f kWh cumac, %.2f €\n", totals.Count, totals.Cumacs, totals.Euros)
	return nil
}

func exportHistory(store *history.Store) error {
	sims, err := store.All(userID, models.HistoryQuery{})
	if err != nil {
		return err
	}

	f, err := os.Create(exportPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", exportPath, err)
	}
	defer f.Close()

	if err := export.WriteXLSX(f, sims); err != nil {
		return err
	}
	fmt.Printf("✓ Exported %d simulations to %s\n", len(sims), exportPath)
	return nil
}
