package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/themobileprof/ceepilot/internal/config"
	"github.com/themobileprof/ceepilot/internal/db"
	"github.com/themobileprof/ceepilot/server"
	"github.com/themobileprof/ceepilot/server/bootstrap"
)

var (
	version = "1.0.0"
)

func main() {
	// Load .env file if it exists
	if err := config.LoadEnvFiles(".env"); err != nil {
		log.Printf("Warning: %v", err)
	}

	configPath := config.GetConfigPath()
	if p := os.Getenv("CEEPILOT_CONFIG"); p != "" {
		configPath = p
	}
	var addr, fichesDir string
	var devMode bool

	flag.StringVar(&configPath, "config", configPath, "Path to configuration file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&fichesDir, "fiches", "", "Seed fiches from directory at startup")
	flag.BoolVar(&devMode, "dev", false, "Verbose gin logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if fichesDir == "" {
		fichesDir = cfg.FichesDir
	}

	if !devMode {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	fmt.Printf("CEEPilot Server v%s\n", version)
	fmt.Printf("Database: %s\n", cfg.DBPath)
	fmt.Printf("Conversion rate: %v €/kWh cumac\n", cfg.ConversionRate)

	srv := server.New(cfg, database)
	defer srv.Close()

	if _, err := os.Stat(fichesDir); err == nil {
		if _, err := bootstrap.SeedFiches(srv.Fiches(), fichesDir); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	if status, err := bootstrap.Status(database.Conn()); err == nil {
		fmt.Printf("Catalogue: %d fiches, %d saved simulations\n", status["fiches"], status["simulations"])
	}

	srv.Start(10 * time.Minute)

	fmt.Printf("✓ Server listening on %s\n", cfg.Server.Addr)
	fmt.Println("  - Health: /health")
	fmt.Println("  - API: /api/fiches, /api/wizard/*, /api/simulations")
	fmt.Println()

	if err := srv.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
