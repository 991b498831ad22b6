package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	sourceFile = "file"
	sourceHTTP = "http"
	sourceDB   = "db"
)

type Config struct {
	Addr             string        `env:"PLANNER_ADDR" envDefault:":8080"`
	ManifestPath     string        `env:"PLANNER_MANIFEST"`
	Source           string        `env:"PLANNER_SOURCE" envDefault:"file"`
	DataDir          string        `env:"PLANNER_DATA_DIR" envDefault:"."`
	DataURL          string        `env:"PLANNER_DATA_URL"`
	FetchTimeout     time.Duration `env:"PLANNER_FETCH_TIMEOUT" envDefault:"10s"`
	MaximizedDefault bool          `env:"PLANNER_MAXIMIZED_DEFAULT" envDefault:"true"`
	FallbackPolicy   string        `env:"PLANNER_FALLBACK_POLICY" envDefault:"strict"`
	LogLevel         string        `env:"PLANNER_LOG_LEVEL" envDefault:"info"`

	DBDialect     string `env:"DB_DIALECT" envDefault:"sqlite"`
	DBSQLitePath  string `env:"DB_SQLITE_PATH"`
	DBPostgresDSN string `env:"DB_POSTGRES_DSN"`
	DatabaseURL   string `env:"DATABASE_URL"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Source)) {
	case sourceFile, sourceDB:
	case sourceHTTP:
		if strings.TrimSpace(c.DataURL) == "" {
			return fmt.Errorf("PLANNER_SOURCE=http requires PLANNER_DATA_URL")
		}
	default:
		return fmt.Errorf("unsupported PLANNER_SOURCE %q", c.Source)
	}
	if _, err := parseFallbackPolicy(c.FallbackPolicy); err != nil {
		return err
	}
	return nil
}
