package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.MaxBodyBytes < 1 {
		return errors.New("server.max_body_bytes must be >= 1")
	}
	if c.Server.RequestTimeout < 0 {
		return errors.New("server.request_timeout must be >= 0")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if err := c.Rooms.validate(); err != nil {
		return err
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.New("nats.url is required when nats is enabled")
		}
		if c.NATS.Subject == "" {
			return errors.New("nats.subject is required when nats is enabled")
		}
	}

	if c.Limits.RequestsPerSecond < 0 {
		return fmt.Errorf("limits.requests_per_second must be >= 0, got %v", c.Limits.RequestsPerSecond)
	}
	if c.Limits.RequestsPerSecond > 0 && c.Limits.Burst < 1 {
		return errors.New("limits.burst must be >= 1 when rate limiting is enabled")
	}

	if c.Janitor.Interval <= 0 {
		return errors.New("janitor.interval must be > 0")
	}
	if c.Janitor.ChallengeTTL <= 0 {
		return errors.New("janitor.challenge_ttl must be > 0")
	}
	if c.Janitor.Concurrency < 1 {
		return errors.New("janitor.concurrency must be >= 1")
	}

	if c.Files.MaxSize < 1 {
		return errors.New("files.max_size must be >= 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
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

func (r *RoomsConfig) validate() error {
	if r.MaxConns < 1 {
		return errors.New("rooms.max_conns must be >= 1")
	}
	if r.MinConns < 0 {
		return errors.New("rooms.min_conns must be >= 0")
	}
	if r.MinConns > r.MaxConns {
		return fmt.Errorf("rooms.min_conns (%d) cannot exceed max_conns (%d)", r.MinConns, r.MaxConns)
	}
	if r.IdleTimeout < 0 {
		return errors.New("rooms.idle_timeout must be >= 0")
	}

	seen := make(map[int64]bool, len(r.Seed))
	for i, room := range r.Seed {
		if room.Name == "" {
			return fmt.Errorf("rooms.seed[%d].name is required", i)
		}
		if seen[room.ID] {
			return fmt.Errorf("rooms.seed[%d].id %d is duplicated", i, room.ID)
		}
		seen[room.ID] = true
	}
	return nil
}
