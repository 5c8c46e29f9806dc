package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validatePort("server.http_port", c.Server.HTTPPort); err != nil {
		return err
	}
	if c.Server.HTTPPort == c.Server.Port {
		return fmt.Errorf("server.http_port must differ from server.port (%d)", c.Server.Port)
	}
	if c.Server.Workers < 1 {
		return errors.New("server.workers must be >= 1")
	}
	if c.Server.WaitTimeout <= 0 {
		return errors.New("server.wait_timeout must be positive")
	}

	if c.Series.DataDir == "" {
		return errors.New("series.data_dir is required")
	}
	if c.Series.MaxDays < 1 {
		return errors.New("series.max_days must be >= 1")
	}
	if c.Series.MaxInMemory < 1 {
		return errors.New("series.max_in_memory must be >= 1")
	}
	if c.Series.CheckpointInterval < 0 {
		return errors.New("series.checkpoint_interval must not be negative")
	}

	switch c.Archive.Backend {
	case BackendFile:
	case BackendPostgres:
		if err := c.Archive.Postgres.validate("archive.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("archive.backend must be %q or %q, got %q", BackendFile, BackendPostgres, c.Archive.Backend)
	}

	if c.Feed.Enabled {
		if !strings.HasPrefix(c.Feed.Path, "/") {
			return fmt.Errorf("feed.path must start with /, got %q", c.Feed.Path)
		}
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// SlogLevel parses the configured level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", field, port)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
