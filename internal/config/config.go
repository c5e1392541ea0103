package config

import "time"

// ServerConfig is the root configuration for an opengroupd instance.
type ServerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   HTTPConfig     `yaml:"server"`
	Database DBConfig       `yaml:"database"`
	Rooms    RoomsConfig    `yaml:"rooms"`
	NATS     NATSConfig     `yaml:"nats"`
	Limits   LimitsConfig   `yaml:"limits"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Files    FilesConfig    `yaml:"files"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this server.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// HTTPConfig holds the HTTP and WebSocket listener settings.
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // Per-call deadline inside the dispatcher
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	WebSocket      bool          `yaml:"websocket"` // Serve /loki/v1/ws
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Name            string `yaml:"name"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	ApplicationName string `yaml:"application_name"`
	MaxConns        int    `yaml:"max_conns"`
	MinConns        int    `yaml:"min_conns"`
}

// RoomsConfig holds per-room pool settings and the rooms created at startup.
// Room pools share the root database; each room lives in its own schema.
type RoomsConfig struct {
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	IdleTimeout time.Duration `yaml:"idle_timeout"` // Unused pools are closed after this long
	Seed        []RoomSeed    `yaml:"seed"`
}

// RoomSeed is a room ensured to exist at startup.
type RoomSeed struct {
	ID         int64    `yaml:"id"`
	Name       string   `yaml:"name"`
	Moderators []string `yaml:"moderators"`
}

// NATSConfig holds the NATS request/reply transport settings.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Subject       string `yaml:"subject"`
	Queue         string `yaml:"queue"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

// LimitsConfig holds per-room rate limiting. RequestsPerSecond of zero disables it.
type LimitsConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// JanitorConfig holds background maintenance settings.
type JanitorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
	Concurrency  int           `yaml:"concurrency"`
}

// FilesConfig holds inline file upload settings.
type FilesConfig struct {
	MaxSize int `yaml:"max_size"` // Decoded bytes
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
