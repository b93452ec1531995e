// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"rwa-portfolio-lab/internal/model"
	"rwa-portfolio-lab/internal/optimizer"
	"rwa-portfolio-lab/internal/orchestrator"
	"rwa-portfolio-lab/internal/scheduler"
	"rwa-portfolio-lab/internal/storage/csvfile"
)

// Source kinds.
const (
	SourceMemory   = "memory"
	SourceCSV      = "csv"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres" // apy, supply, transfers in PostgreSQL; spot prices and history in ClickHouse
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr" env:"SERVER_ADDR"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	} `yaml:"server"`

	Source struct {
		Kind          string        `yaml:"kind" env:"SOURCE_KIND"`
		CSVDir        string        `yaml:"csv_dir" env:"CSV_DIR"`
		CSVFiles      csvfile.Files `yaml:"csv_files"`
		SQLitePath    string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
		PostgresDSN   string        `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
		ClickhouseDSN string        `yaml:"clickhouse_dsn" env:"CLICKHOUSE_DSN"`
	} `yaml:"source"`

	Model model.Config `yaml:"model"`

	Optimizer struct {
		MaxIterations int           `yaml:"max_iterations" env:"OPTIMIZER_MAX_ITERATIONS"`
		Timeout       time.Duration `yaml:"timeout" env:"OPTIMIZER_TIMEOUT"`
	} `yaml:"optimizer"`

	Schedule struct {
		RetrainCron       string        `yaml:"retrain_cron" env:"RETRAIN_CRON"`
		RetrainPerRequest bool          `yaml:"retrain_per_request" env:"RETRAIN_PER_REQUEST"`
		TrainTimeout      time.Duration `yaml:"train_timeout" env:"TRAIN_TIMEOUT"` // bounds one training run
	} `yaml:"schedule"`

	Tracing struct {
		Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	} `yaml:"tracing"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"` // console or json
	} `yaml:"log"`
}

// Default returns the configuration used when neither file nor environment
// set a value.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Source.Kind = SourceCSV
	cfg.Source.CSVDir = "data"
	cfg.Source.CSVFiles = csvfile.DefaultFiles
	cfg.Source.SQLitePath = "data/rwa.db"
	cfg.Model = model.DefaultConfig()
	cfg.Optimizer.MaxIterations = optimizer.DefaultMaxIterations
	cfg.Optimizer.Timeout = optimizer.DefaultTimeout
	cfg.Schedule.RetrainCron = "0 0 * * * *"
	cfg.Schedule.TrainTimeout = orchestrator.DefaultTrainTimeout
	cfg.Tracing.ServiceName = "rwa-portfolio-lab"
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks that the selected source is fully configured and that
// numeric settings are usable.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceMemory:
	case SourceCSV:
		if c.Source.CSVDir == "" {
			return fmt.Errorf("source.csv_dir is required for the csv source")
		}
	case SourceSQLite:
		if c.Source.SQLitePath == "" {
			return fmt.Errorf("source.sqlite_path is required for the sqlite source")
		}
	case SourcePostgres:
		if c.Source.PostgresDSN == "" || c.Source.ClickhouseDSN == "" {
			return fmt.Errorf("source.postgres_dsn and source.clickhouse_dsn are required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Model.Estimators <= 0 {
		return fmt.Errorf("model.estimators must be positive")
	}
	if c.Optimizer.MaxIterations <= 0 {
		return fmt.Errorf("optimizer.max_iterations must be positive")
	}
	if c.Optimizer.Timeout <= 0 {
		return fmt.Errorf("optimizer.timeout must be positive")
	}
	if c.Schedule.TrainTimeout <= 0 {
		return fmt.Errorf("schedule.train_timeout must be positive")
	}
	if c.Schedule.RetrainCron != "" {
		if err := scheduler.Validate(c.Schedule.RetrainCron); err != nil {
			return fmt.Errorf("schedule.retrain_cron: %w", err)
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
