package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr              = ":8080"
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultRequestTimeout    = 15 * time.Second
	DefaultMaxBodyBytes      = 15 << 20
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultApplicationName   = "opengroupd"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultRoomMaxConns      = 4
	DefaultRoomMinConns      = 0
	DefaultRoomIdleTimeout   = 30 * time.Minute
	DefaultNATSSubject       = "opengroup.rpc"
	DefaultNATSQueue         = "opengroupd"
	DefaultNATSMaxReconnects = 60
	DefaultBurst             = 20
	DefaultJanitorInterval   = 5 * time.Minute
	DefaultChallengeTTL      = 10 * time.Minute
	DefaultJanitorWorkers    = 4
	DefaultMaxFileSize       = 10 << 20
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *ServerConfig) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Rooms defaults
	if c.Rooms.MaxConns == 0 {
		c.Rooms.MaxConns = DefaultRoomMaxConns
	}
	if c.Rooms.IdleTimeout == 0 {
		c.Rooms.IdleTimeout = DefaultRoomIdleTimeout
	}

	// NATS defaults
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}
	if c.NATS.Queue == "" {
		c.NATS.Queue = DefaultNATSQueue
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = DefaultNATSMaxReconnects
	}

	// Limits defaults
	if c.Limits.RequestsPerSecond > 0 && c.Limits.Burst == 0 {
		c.Limits.Burst = DefaultBurst
	}

	// Janitor defaults
	if c.Janitor.Interval == 0 {
		c.Janitor.Interval = DefaultJanitorInterval
	}
	if c.Janitor.ChallengeTTL == 0 {
		c.Janitor.ChallengeTTL = DefaultChallengeTTL
	}
	if c.Janitor.Concurrency == 0 {
		c.Janitor.Concurrency = DefaultJanitorWorkers
	}

	// Files defaults
	if c.Files.MaxSize == 0 {
		c.Files.MaxSize = DefaultMaxFileSize
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
	if db.ApplicationName == "" {
		db.ApplicationName = DefaultApplicationName
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
