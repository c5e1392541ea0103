package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-opengroup
server:
  addr: 127.0.0.1:9000
  websocket: true
database:
  host: localhost
  port: 5433
  name: opengroup
  user: testuser
  password: testpass
rooms:
  seed:
    - id: 1
      name: lobby
      moderators:
        - "05aa"
    - id: -7
      name: backroom
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-opengroup" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-opengroup")
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "127.0.0.1:9000")
	}
	if !cfg.Server.WebSocket {
		t.Error("Server.WebSocket = false, want true")
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5433)
	}
	if len(cfg.Rooms.Seed) != 2 {
		t.Fatalf("len(Rooms.Seed) = %d, want 2", len(cfg.Rooms.Seed))
	}
	if cfg.Rooms.Seed[1].ID != -7 {
		t.Errorf("Rooms.Seed[1].ID = %d, want %d", cfg.Rooms.Seed[1].ID, -7)
	}
	if got := cfg.Rooms.Seed[0].Moderators; len(got) != 1 || got[0] != "05aa" {
		t.Errorf("Rooms.Seed[0].Moderators = %v, want [05aa]", got)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-opengroup
database:
  host: localhost
  name: opengroup
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-opengroup
database:
  host: localhost
  name: opengroup
  user: testuser
  password: testpass
limits:
  requests_per_second: 5
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Server.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("Server.RequestTimeout = %v, want %v", cfg.Server.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.SSLMode != DefaultDBSSLMode {
		t.Errorf("Database.SSLMode = %q, want %q", cfg.Database.SSLMode, DefaultDBSSLMode)
	}
	if cfg.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Database.MaxConns = %d, want %d", cfg.Database.MaxConns, DefaultMaxConns)
	}
	if cfg.Rooms.MaxConns != DefaultRoomMaxConns {
		t.Errorf("Rooms.MaxConns = %d, want %d", cfg.Rooms.MaxConns, DefaultRoomMaxConns)
	}
	if cfg.Rooms.IdleTimeout != DefaultRoomIdleTimeout {
		t.Errorf("Rooms.IdleTimeout = %v, want %v", cfg.Rooms.IdleTimeout, DefaultRoomIdleTimeout)
	}
	if cfg.NATS.Subject != DefaultNATSSubject {
		t.Errorf("NATS.Subject = %q, want %q", cfg.NATS.Subject, DefaultNATSSubject)
	}
	if cfg.Limits.Burst != DefaultBurst {
		t.Errorf("Limits.Burst = %d, want %d", cfg.Limits.Burst, DefaultBurst)
	}
	if cfg.Janitor.Interval != DefaultJanitorInterval {
		t.Errorf("Janitor.Interval = %v, want %v", cfg.Janitor.Interval, DefaultJanitorInterval)
	}
	if cfg.Files.MaxSize != DefaultMaxFileSize {
		t.Errorf("Files.MaxSize = %d, want %d", cfg.Files.MaxSize, DefaultMaxFileSize)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging = %+v, want level %q format %q", cfg.Logging, DefaultLogLevel, DefaultLogFormat)
	}
}

func TestLoadAndValidate(t *testing.T) {
	yaml := `
instance:
  id: test-opengroup
database:
  host: localhost
  name: opengroup
  user: testuser
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("LoadAndValidate() expected error, got nil")
	}
	want := "validate config: database.password is required"
	if err.Error() != want {
		t.Errorf("LoadAndValidate() error = %q, want %q", err.Error(), want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*ServerConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			modify:  func(c *ServerConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing database host",
			modify:  func(c *ServerConfig) { c.Database.Host = "" },
			wantErr: "database.host is required",
		},
		{
			name:    "missing database password",
			modify:  func(c *ServerConfig) { c.Database.Password = "" },
			wantErr: "database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			modify: func(c *ServerConfig) {
				c.Database.MaxConns = 5
				c.Database.MinConns = 10
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "room min_conns exceeds max_conns",
			modify: func(c *ServerConfig) {
				c.Rooms.MaxConns = 1
				c.Rooms.MinConns = 2
			},
			wantErr: "rooms.min_conns (2) cannot exceed max_conns (1)",
		},
		{
			name: "duplicate seed room",
			modify: func(c *ServerConfig) {
				c.Rooms.Seed = []RoomSeed{{ID: 3, Name: "a"}, {ID: 3, Name: "b"}}
			},
			wantErr: "rooms.seed[1].id 3 is duplicated",
		},
		{
			name:    "unnamed seed room",
			modify:  func(c *ServerConfig) { c.Rooms.Seed = []RoomSeed{{ID: 3}} },
			wantErr: "rooms.seed[0].name is required",
		},
		{
			name: "nats enabled without url",
			modify: func(c *ServerConfig) {
				c.NATS.Enabled = true
				c.NATS.URL = ""
			},
			wantErr: "nats.url is required when nats is enabled",
		},
		{
			name: "rate limit without burst",
			modify: func(c *ServerConfig) {
				c.Limits.RequestsPerSecond = 10
				c.Limits.Burst = 0
			},
			wantErr: "limits.burst must be >= 1 when rate limiting is enabled",
		},
		{
			name:    "zero janitor interval",
			modify:  func(c *ServerConfig) { c.Janitor.Interval = 0 },
			wantErr: "janitor.interval must be > 0",
		},
		{
			name:    "bad log level",
			modify:  func(c *ServerConfig) { c.Logging.Level = "trace" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:    "bad log format",
			modify:  func(c *ServerConfig) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "valid config",
			modify:  func(c *ServerConfig) {},
			wantErr: "",
		},
		{
			name: "valid config with nats and rate limit",
			modify: func(c *ServerConfig) {
				c.NATS = NATSConfig{Enabled: true, URL: "nats://localhost:4222", Subject: "opengroup.rpc"}
				c.Limits = LimitsConfig{RequestsPerSecond: 2.5, Burst: 5}
				c.Janitor.Interval = 30 * time.Second
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func validConfig() *ServerConfig {
	cfg := &ServerConfig{
		Instance: InstanceConfig{ID: "test"},
		Database: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass"},
		Rooms: RoomsConfig{
			Seed: []RoomSeed{{ID: 1, Name: "lobby"}},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
