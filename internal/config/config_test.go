package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func mapLookup(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when nothing is set.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith("", mapLookup(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ETL.ChunkSize != 1000 {
		t.Errorf("ETL.ChunkSize = %d, want 1000", cfg.ETL.ChunkSize)
	}
	if cfg.ETL.StateStorage != "etl_state.json" {
		t.Errorf("ETL.StateStorage = %q, want %q", cfg.ETL.StateStorage, "etl_state.json")
	}
	if cfg.ETL.StateKey != "updated_at" {
		t.Errorf("ETL.StateKey = %q, want %q", cfg.ETL.StateKey, "updated_at")
	}
	if cfg.ETL.PollInterval != 30*time.Second {
		t.Errorf("ETL.PollInterval = %v, want 30s", cfg.ETL.PollInterval)
	}
	if cfg.DB.Host != "movies-postgresql" || cfg.DB.Port != 5432 {
		t.Errorf("DB = %s:%d, want movies-postgresql:5432", cfg.DB.Host, cfg.DB.Port)
	}
	if cfg.Index.URL != "http://localhost:9200" {
		t.Errorf("Index.URL = %q, want %q", cfg.Index.URL, "http://localhost:9200")
	}
	if cfg.Index.Name != "movies" {
		t.Errorf("Index.Name = %q, want %q", cfg.Index.Name, "movies")
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("HTTP.Addr = %q, want empty", cfg.HTTP.Addr)
	}
}

// TestEnvOverride verifies that environment variables override defaults.
func TestEnvOverride(t *testing.T) {
	cfg, err := loadWith("", mapLookup(map[string]string{
		"CHUNK_SIZE":        "50",
		"ETL_STATE_KEY":     "modified",
		"ETL_POLL_INTERVAL": "5",
		"ES_MOVIES_URL":     "http://es:9200",
		"DB_NAME":           "movies_database",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ETL.ChunkSize != 50 {
		t.Errorf("ETL.ChunkSize = %d, want 50", cfg.ETL.ChunkSize)
	}
	if cfg.ETL.StateKey != "modified" {
		t.Errorf("ETL.StateKey = %q, want %q", cfg.ETL.StateKey, "modified")
	}
	if cfg.ETL.PollInterval != 5*time.Second {
		t.Errorf("ETL.PollInterval = %v, want 5s", cfg.ETL.PollInterval)
	}
	if cfg.Index.URL != "http://es:9200" {
		t.Errorf("Index.URL = %q, want %q", cfg.Index.URL, "http://es:9200")
	}
	if cfg.DB.Name != "movies_database" {
		t.Errorf("DB.Name = %q, want %q", cfg.DB.Name, "movies_database")
	}
}

// TestEnvFileBelowEnvironment verifies .env values apply but never beat the real environment.
func TestEnvFileBelowEnvironment(t *testing.T) {
	path := writeEnvFile(t, "CHUNK_SIZE=200\nDB_USER=app\nETL_DRAIN_TIMEOUT=1m\n")

	cfg, err := loadWith(path, mapLookup(map[string]string{"CHUNK_SIZE": "10"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ETL.ChunkSize != 10 {
		t.Errorf("ETL.ChunkSize = %d, want 10 (environment wins)", cfg.ETL.ChunkSize)
	}
	if cfg.DB.User != "app" {
		t.Errorf("DB.User = %q, want %q", cfg.DB.User, "app")
	}
	if cfg.ETL.DrainTimeout != time.Minute {
		t.Errorf("ETL.DrainTimeout = %v, want 1m", cfg.ETL.DrainTimeout)
	}
}

// TestMissingEnvFile verifies a missing .env file is not an error.
func TestMissingEnvFile(t *testing.T) {
	_, err := loadWith(filepath.Join(t.TempDir(), "nope.env"), mapLookup(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestInvalidIntKeepsDefault verifies unparseable numbers fall back to the default.
func TestInvalidIntKeepsDefault(t *testing.T) {
	cfg, err := loadWith("", mapLookup(map[string]string{"CHUNK_SIZE": "lots"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ETL.ChunkSize != 1000 {
		t.Errorf("ETL.ChunkSize = %d, want 1000", cfg.ETL.ChunkSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr string
	}{
		{"zero chunk", map[string]string{"CHUNK_SIZE": "0"}, "chunk_size"},
		{"oversized chunk", map[string]string{"CHUNK_SIZE": "40000"}, "chunk_size"},
		{"sqlite without dsn", map[string]string{"DB_DRIVER": "sqlite"}, "db.dsn"},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}, "db.driver"},
		{"bad schema", map[string]string{"DB_SCHEMA": "content; drop table x"}, "db.schema"},
		{"unknown backend", map[string]string{"INDEX_BACKEND": "solr"}, "index.backend"},
		{"zero bulk", map[string]string{"ES_BULK_SIZE": "0"}, "bulk_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWith("", mapLookup(tt.vars))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDataSourceName(t *testing.T) {
	d := DBConfig{Host: "db", Port: 5433, Name: "movies", User: "app", Password: "p@ss"}
	got := d.DataSourceName()
	want := "postgres://app:p%40ss@db:5433/movies"
	if got != want {
		t.Errorf("DataSourceName() = %q, want %q", got, want)
	}

	d.DSN = "file:test.db"
	if got := d.DataSourceName(); got != "file:test.db" {
		t.Errorf("DataSourceName() with DSN = %q, want %q", got, "file:test.db")
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.DB.Password = "hunter2"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "db.password" && ki.Value != maskedValue {
			t.Errorf("db.password shown as %q, want masked", ki.Value)
		}
		if ki.Key == "db.dsn" && ki.Value != "" {
			t.Errorf("empty db.dsn shown as %q, want empty", ki.Value)
		}
	}
	if got := len(ShowAll(cfg)); got != len(specs) {
		t.Errorf("ShowAll returned %d keys, want %d", got, len(specs))
	}
}
