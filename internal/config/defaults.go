package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort            = 7575
	DefaultHTTPPort        = 7576
	DefaultWorkers         = 10
	DefaultWaitTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultDataDir         = "data"
	DefaultMaxDays         = 30
	DefaultMaxInMemory     = 5
	DefaultBackend         = BackendFile
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultFeedPath        = "/feed"
	DefaultFeedBufferSize  = 256
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = DefaultWorkers
	}
	if c.Server.WaitTimeout == 0 {
		c.Server.WaitTimeout = DefaultWaitTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Series defaults
	if c.Series.DataDir == "" {
		c.Series.DataDir = DefaultDataDir
	}
	if c.Series.MaxDays == 0 {
		c.Series.MaxDays = DefaultMaxDays
	}
	if c.Series.MaxInMemory == 0 {
		c.Series.MaxInMemory = DefaultMaxInMemory
	}

	// Archive defaults
	if c.Archive.Backend == "" {
		c.Archive.Backend = DefaultBackend
	}
	applyDBDefaults(&c.Archive.Postgres)

	// Feed defaults
	if c.Feed.Path == "" {
		c.Feed.Path = DefaultFeedPath
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
