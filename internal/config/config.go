package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration of a salesd instance.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Series  SeriesConfig  `yaml:"series"`
	Archive ArchiveConfig `yaml:"archive"`
	Feed    FeedConfig    `yaml:"feed"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the TCP listener settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	Port            int           `yaml:"port"`
	HTTPPort        int           `yaml:"http_port"` // health check and live feed
	Workers         int           `yaml:"workers"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`     // cap on WAIT_* commands
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // bound on flushing at exit
}

// Addr returns the host:port to listen on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.ListenAddr, strconv.Itoa(s.Port))
}

// HTTPAddr returns the host:port of the HTTP listener.
func (s ServerConfig) HTTPAddr() string {
	return net.JoinHostPort(s.ListenAddr, strconv.Itoa(s.HTTPPort))
}

// SeriesConfig holds day storage settings.
type SeriesConfig struct {
	DataDir            string        `yaml:"data_dir"`
	MaxDays            int           `yaml:"max_days"`
	MaxInMemory        int           `yaml:"max_in_memory"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"` // 0 disables periodic flushes
}

// Archive backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// ArchiveConfig selects where evicted days are stored.
type ArchiveConfig struct {
	Backend  string   `yaml:"backend"` // "file" or "postgres"
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FeedConfig holds the live feed mounted on the HTTP listener.
type FeedConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	BufferSize int    `yaml:"buffer_size"` // per-subscriber message queue
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
