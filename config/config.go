/*
Package config loads server configuration.

SOURCES (later wins):
  1. env-default tags below
  2. YAML file from -config flag or CONFIG_PATH (optional)
  3. Environment variables (env tags)

  Defaults also replace zero values read from the file, so zero is never
  a meaningful setting. scan_enabled has no default for that reason.

EXAMPLE (config/local.yaml):
  env: local
  http_server:
    address: ":8080"
    timeout: 15s
    idle_timeout: 60s
  storage:
    path: "./society.db"
  dues:
    category_id: 1
    timezone: "Asia/Kolkata"
    scan_enabled: true
    scan_interval: 1h
    workers: 4
  cors:
    allowed_origins: ["http://localhost:5173"]
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config is the top-level server configuration.
type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Storage    `yaml:"storage"`
	Dues       `yaml:"dues"`
	CORS       `yaml:"cors"`
}

// HTTPServer configures the listener.
type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"15s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// Storage configures the SQLite database.
type Storage struct {
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"society.db"`
}

// Dues configures the dues computation.
type Dues struct {
	CategoryID   int64         `yaml:"category_id" env:"DUES_CATEGORY_ID" env-default:"1"`
	Timezone     string        `yaml:"timezone" env:"DUES_TIMEZONE" env-default:"UTC"`
	ScanEnabled  bool          `yaml:"scan_enabled" env:"DUES_SCAN_ENABLED"`
	ScanInterval time.Duration `yaml:"scan_interval" env:"DUES_SCAN_INTERVAL" env-default:"1h"`
	Workers      int           `yaml:"workers" env:"DUES_WORKERS" env-default:"1"`
}

// CORS lists the portal origins allowed to call the API.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://localhost:8080"`
}

// MustLoad loads the configuration or exits.
func MustLoad() *Config {
	cfg, err := Load(configPath())
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load reads path (if non-empty) and the environment, then validates.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("dues.timezone: %w", err))
	}
	if c.CategoryID <= 0 {
		errs = append(errs, fmt.Errorf("dues.category_id must be positive, got %d", c.CategoryID))
	}
	if c.ScanEnabled && c.ScanInterval <= 0 {
		errs = append(errs, fmt.Errorf("dues.scan_interval must be positive when scanning is enabled"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("dues.workers must be at least 1, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

// Location returns the society timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// configPath prefers the -config flag over CONFIG_PATH.
func configPath() string {
	var path string
	if flag.Lookup("config") == nil {
		flag.StringVar(&path, "config", "", "path to config file")
	}
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}
