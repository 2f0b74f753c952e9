package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment override
const envPrefix = "CEEPILOT_"

// Config represents the application configuration
type Config struct {
	DBPath         string  `yaml:"db_path"`
	FichesDir      string  `yaml:"fiches_dir"`
	StorageURL     string  `yaml:"storage_url,omitempty"`
	StorageTTL     int     `yaml:"storage_ttl_seconds"`
	ConversionRate float64 `yaml:"conversion_rate"`
	StrictSandbox  bool    `yaml:"strict_sandbox"`
	MaxSteps       uint64  `yaml:"max_steps"`
	JourneyLog     string  `yaml:"journey_log,omitempty"`
	Server         Server  `yaml:"server"`
	Auth           Auth    `yaml:"auth"`
}

// Server holds HTTP server settings
type Server struct {
	Addr       string `yaml:"addr"`
	BaseURL    string `yaml:"base_url,omitempty"`
	SessionTTL int    `yaml:"session_ttl_minutes"`
	RateLimit  int    `yaml:"rate_limit"`
	RateWindow int    `yaml:"rate_window_seconds"`
}

// Auth holds the OAuth2 identity provider settings
type Auth struct {
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	AuthURL      string   `yaml:"auth_url,omitempty"`
	TokenURL     string   `yaml:"token_url,omitempty"`
	UserInfoURL  string   `yaml:"userinfo_url,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// Enabled reports whether an identity provider is configured
func (a Auth) Enabled() bool {
	return a.ClientID != "" && a.AuthURL != "" && a.TokenURL != ""
}

// SessionDuration returns the session TTL
func (s Server) SessionDuration() time.Duration {
	return time.Duration(s.SessionTTL) * time.Minute
}

// RateInterval returns the rate limiter window
func (s Server) RateInterval() time.Duration {
	return time.Duration(s.RateWindow) * time.Second
}

// Default returns the default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".ceepilot")
	return &Config{
		DBPath:         filepath.Join(baseDir, "ceepilot.db"),
		FichesDir:      filepath.Join(baseDir, "fiches"),
		StorageURL:     "",
		StorageTTL:     3600,
		ConversionRate: 0.0065,
		StrictSandbox:  true,
		MaxSteps:       1_000_000,
		JourneyLog:     filepath.Join(baseDir, "journeys.jsonl"),
		Server: Server{
			Addr:       ":8080",
			SessionTTL: 24 * 60,
			RateLimit:  60,
			RateWindow: 60,
		},
		Auth: Auth{
			Scopes: []string{"openid", "email"},
		},
	}
}

// Load reads configuration from file, creating with defaults if it doesn't exist
func Load(path string) (*Config, error) {
	// If file doesn't exist, create it with defaults
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default() // Start with defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadEnvFiles loads KEY=VALUE files into the environment. Missing files are
// skipped and variables already set are left alone.
func LoadEnvFiles(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CEEPILOT_* environment variables
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("DB_PATH", &c.DBPath)
	str("FICHES_DIR", &c.FichesDir)
	str("STORAGE_URL", &c.StorageURL)
	str("JOURNEY_LOG", &c.JourneyLog)
	str("ADDR", &c.Server.Addr)
	str("BASE_URL", &c.Server.BaseURL)
	str("AUTH_CLIENT_ID", &c.Auth.ClientID)
	str("AUTH_CLIENT_SECRET", &c.Auth.ClientSecret)
	str("AUTH_URL", &c.Auth.AuthURL)
	str("AUTH_TOKEN_URL", &c.Auth.TokenURL)
	str("AUTH_USERINFO_URL", &c.Auth.UserInfoURL)

	if v := os.Getenv(envPrefix + "AUTH_SCOPES"); v != "" {
		c.Auth.Scopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if v := os.Getenv(envPrefix + "CONVERSION_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sCONVERSION_RATE: %w", envPrefix, err)
		}
		c.ConversionRate = rate
	}
	if v := os.Getenv(envPrefix + "STRICT_SANDBOX"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTRICT_SANDBOX: %w", envPrefix, err)
		}
		c.StrictSandbox = strict
	}
	if v := os.Getenv(envPrefix + "MAX_STEPS"); v != "" {
		steps, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_STEPS: %w", envPrefix, err)
		}
		c.MaxSteps = steps
	}

	return c.Validate()
}

// Validate checks values that would make the estimator misbehave
func (c *Config) Validate() error {
	if c.ConversionRate <= 0 {
		return fmt.Errorf("conversion_rate must be positive, got %v", c.ConversionRate)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	return nil
}

// Save writes the configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ceepilot", "config.yaml")
}
