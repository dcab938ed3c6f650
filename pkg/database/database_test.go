package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/instantcocoa/periscope/pkg/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "localhost" {
		t.Errorf("Host = %v, want %v", cfg.Host, "localhost")
	}
	if cfg.Port != 5432 {
		t.Errorf("Port = %v, want %v", cfg.Port, 5432)
	}
	if cfg.Database != "periscope" {
		t.Errorf("Database = %v, want %v", cfg.Database, "periscope")
	}
	if cfg.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %v, want %v", cfg.MaxOpenConns, 25)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, 30*time.Second)
	}
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{
			name: "default config",
			cfg:  DefaultConfig(),
			want: "host=localhost port=5432 user=periscope password=periscope dbname=periscope sslmode=disable",
		},
		{
			name: "custom config",
			cfg: &Config{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "secret123",
				Database: "telemetry",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 user=admin password=secret123 dbname=telemetry sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnect_UnreachableHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "invalid-host-that-does-not-exist"
	cfg.ConnectTimeout = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Connect(ctx, cfg, testutil.DiscardLogger()); err == nil {
		t.Error("expected error when connecting to invalid host")
	}
}

func TestConnect_RetriesUntilContextDone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "invalid-host-that-does-not-exist"
	cfg.ConnectTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if _, err := Connect(ctx, cfg, testutil.DiscardLogger()); err == nil {
		t.Fatal("expected error when connecting to invalid host")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Connect returned after %v, want it bounded by the context", elapsed)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file      string
		version   int
		name      string
		direction string
		ok        bool
	}{
		{"001_create_telemetry.up.sql", 1, "create_telemetry", "up", true},
		{"001_create_telemetry.down.sql", 1, "create_telemetry", "down", true},
		{"010_add_indexes.up.sql", 10, "add_indexes", "up", true},
		{"100_big_migration.down.sql", 100, "big_migration", "down", true},
		{"invalid.sql", 0, "", "", false},
		{"001_no_direction.sql", 0, "", "", false},
		{"abc_bad_version.up.sql", 0, "", "", false},
		{"000_zero.up.sql", 0, "", "", false},
		{"001_.up.sql", 0, "", "", false},
		{"README.md", 0, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, direction, ok := parseMigrationName(tt.file)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if version != tt.version {
				t.Errorf("version = %v, want %v", version, tt.version)
			}
			if name != tt.name {
				t.Errorf("name = %v, want %v", name, tt.name)
			}
			if direction != tt.direction {
				t.Errorf("direction = %v, want %v", direction, tt.direction)
			}
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_index.up.sql":          {Data: []byte("CREATE INDEX i ON spans (trace_id)")},
		"migrations/002_add_index.down.sql":        {Data: []byte("DROP INDEX i")},
		"migrations/001_create_telemetry.up.sql":   {Data: []byte("CREATE TABLE spans ()")},
		"migrations/001_create_telemetry.down.sql": {Data: []byte("DROP TABLE spans")},
		"migrations/notes.txt":                     {Data: []byte("ignored")},
	}

	m := NewMigrator(&DB{}, "test")
	if err := m.LoadMigrations(fsys, "migrations"); err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}

	got := m.Migrations()
	if len(got) != 2 {
		t.Fatalf("len(migrations) = %d, want 2", len(got))
	}
	if got[0].Version != 1 || got[0].Name != "create_telemetry" {
		t.Errorf("migrations[0] = %d %s, want 1 create_telemetry", got[0].Version, got[0].Name)
	}
	if got[0].Down != "DROP TABLE spans" {
		t.Errorf("migrations[0].Down = %q", got[0].Down)
	}
	if got[1].Version != 2 || got[1].Up != "CREATE INDEX i ON spans (trace_id)" {
		t.Errorf("migrations[1] = %+v", got[1])
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "missing directory",
			fsys: fstest.MapFS{},
		},
		{
			name: "down without up",
			fsys: fstest.MapFS{
				"migrations/001_orphan.down.sql": {Data: []byte("DROP TABLE x")},
			},
		},
		{
			name: "conflicting names",
			fsys: fstest.MapFS{
				"migrations/001_one.up.sql":   {Data: []byte("SELECT 1")},
				"migrations/001_two.down.sql": {Data: []byte("SELECT 1")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMigrator(&DB{}, "test")
			if err := m.LoadMigrations(tt.fsys, "migrations"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMigrator_WithLogger(t *testing.T) {
	m := NewMigrator(&DB{}, "test")
	if m.WithLogger(testutil.DiscardLogger()) != m {
		t.Error("WithLogger should return the same migrator for chaining")
	}
	if m.table() != "test_schema_migrations" {
		t.Errorf("table() = %v, want %v", m.table(), "test_schema_migrations")
	}
}
