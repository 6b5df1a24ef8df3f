package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/lumenlake/sessionizer/internal/core/session"
)

// Schema violation policies (run.on_schema_violation).
const (
	ViolationRejectRow   = "reject_row"
	ViolationRejectBatch = "reject_batch"
)

// Config represents the top-level application config plus resolved product profiles.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Run      RunConfig      `koanf:"run"`

	// Profiles is populated by Load after parsing profile files.
	Profiles []session.Profile `koanf:"-"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type RunConfig struct {
	SessionTimeout       string   `koanf:"session_timeout"` // parsed and validated on startup
	ActionCodes          []string `koanf:"action_codes"`
	LookbackDays         int      `koanf:"lookback_days"`
	ExtendedLookbackDays int      `koanf:"extended_lookback_days"`
	OnSchemaViolation    string   `koanf:"on_schema_violation"` // reject_row | reject_batch
	WorkerCount          int      `koanf:"worker_count"`
	ProfileDir           string   `koanf:"profile_dir"`
	RetentionDays        int      `koanf:"retention_days"`
}

// Timeout returns the parsed session timeout. Call after Validate.
func (c RunConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.SessionTimeout)
	if err != nil {
		return session.DefaultTimeout
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	timeout, err := time.ParseDuration(c.Run.SessionTimeout)
	if err != nil {
		return fmt.Errorf("invalid run.session_timeout %q: %w", c.Run.SessionTimeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("run.session_timeout must be > 0")
	}
	if len(c.Run.ActionCodes) == 0 {
		return fmt.Errorf("run.action_codes must not be empty")
	}
	if c.Run.LookbackDays <= 0 {
		return fmt.Errorf("run.lookback_days must be > 0")
	}
	if c.Run.ExtendedLookbackDays < c.Run.LookbackDays {
		return fmt.Errorf("run.extended_lookback_days must be >= run.lookback_days")
	}
	if c.Run.OnSchemaViolation != ViolationRejectRow && c.Run.OnSchemaViolation != ViolationRejectBatch {
		return fmt.Errorf("invalid run.on_schema_violation %q (must be reject_row or reject_batch)", c.Run.OnSchemaViolation)
	}
	if c.Run.WorkerCount <= 0 {
		return fmt.Errorf("run.worker_count must be > 0")
	}
	if c.Run.RetentionDays <= 0 {
		return fmt.Errorf("run.retention_days must be > 0")
	}
	if c.Run.ExtendedLookbackDays >= c.Run.RetentionDays {
		return fmt.Errorf("run.extended_lookback_days (%d) must be < run.retention_days (%d)",
			c.Run.ExtendedLookbackDays, c.Run.RetentionDays)
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates
// product profiles.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                8080,
		"server.host":                "0.0.0.0",
		"server.mode":                "release",
		"database.type":              "postgres",
		"database.dsn":               "",
		"database.max_open_conns":    25,
		"database.max_idle_conns":    25,
		"database.auto_migrate":      true,
		"run.session_timeout":        "30m",
		"run.action_codes":           session.DefaultActionCodes,
		"run.lookback_days":          5,
		"run.extended_lookback_days": 6,
		"run.on_schema_violation":    ViolationRejectRow,
		"run.worker_count":           8,
		"run.profile_dir":            "./config/profiles",
		"run.retention_days":         14,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("SESSIONIZER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SESSIONIZER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := session.NewFileSystemProfileRepository(cfg.Run.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load product profiles: %w", err)
	}
	cfg.Profiles = repo.Profiles()

	return &cfg, nil
}
