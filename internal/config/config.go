package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ETL   ETLConfig
	DB    DBConfig
	Index IndexConfig
	HTTP  HTTPConfig
	Log   LogConfig
}

type ETLConfig struct {
	ChunkSize       int
	StateStorage    string
	StateKey        string
	PollInterval    time.Duration
	MaxCycleRetries int
	DrainTimeout    time.Duration
}

type DBConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	Schema          string
	DSN             string
	ConnectAttempts int
}

type IndexConfig struct {
	Backend    string
	URL        string
	Name       string
	BulkSize   int
	SQLitePath string
}

type HTTPConfig struct {
	Addr string
	// Token, when set, is required as a bearer token on every ops request.
	Token string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	BackendElasticsearch = "elasticsearch"
	BackendSQLite        = "sqlite"

	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// MaxChunkSize bounds etl.chunk_size.
const MaxChunkSize = 10000

// DefaultEnvFile is read on Load when present. Values in it never override
// variables already set in the process environment.
const DefaultEnvFile = ".env"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func defaults() Config {
	return Config{
		ETL: ETLConfig{
			ChunkSize:       1000,
			StateStorage:    "etl_state.json",
			StateKey:        "updated_at",
			PollInterval:    30 * time.Second,
			MaxCycleRetries: 3,
			DrainTimeout:    30 * time.Second,
		},
		DB: DBConfig{
			Driver:          DriverPostgres,
			Host:            "movies-postgresql",
			Port:            5432,
			Schema:          "content",
			ConnectAttempts: 10,
		},
		Index: IndexConfig{
			Backend:    BackendElasticsearch,
			URL:        "http://localhost:9200",
			Name:       "movies",
			BulkSize:   500,
			SQLitePath: "movies_index.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional .env file in the
// working directory and the process environment, in increasing precedence.
func Load() (Config, error) {
	return loadWith(DefaultEnvFile, os.LookupEnv)
}

func loadWith(envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()

	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			applyEnv(&cfg, func(k string) (string, bool) {
				v, ok := fileVars[k]
				return v, ok
			}, envFile)
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	applyEnv(&cfg, lookup, "environment")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work at runtime.
func (c Config) Validate() error {
	if c.ETL.ChunkSize < 1 || c.ETL.ChunkSize > MaxChunkSize {
		return fmt.Errorf("invalid config: etl.chunk_size must be between 1 and %d, got %d", MaxChunkSize, c.ETL.ChunkSize)
	}
	if c.ETL.StateStorage == "" || c.ETL.StateKey == "" {
		return fmt.Errorf("invalid config: etl.state_storage and etl.state_key are required")
	}
	if c.ETL.PollInterval <= 0 {
		return fmt.Errorf("invalid config: etl.poll_interval must be positive")
	}
	if c.ETL.MaxCycleRetries < 0 {
		return fmt.Errorf("invalid config: etl.max_cycle_retries must not be negative")
	}
	switch c.DB.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.DB.DSN == "" {
			return fmt.Errorf("invalid config: db.dsn is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("invalid config: unknown db.driver %q", c.DB.Driver)
	}
	if !identRe.MatchString(c.DB.Schema) {
		return fmt.Errorf("invalid config: db.schema %q is not a plain identifier", c.DB.Schema)
	}
	if c.DB.ConnectAttempts < 1 {
		return fmt.Errorf("invalid config: db.connect_attempts must be positive")
	}
	switch c.Index.Backend {
	case BackendElasticsearch:
		if c.Index.URL == "" {
			return fmt.Errorf("invalid config: index.url is required for %s", BackendElasticsearch)
		}
	case BackendSQLite:
		if c.Index.SQLitePath == "" {
			return fmt.Errorf("invalid config: index.sqlite_path is required for %s", BackendSQLite)
		}
	default:
		return fmt.Errorf("invalid config: unknown index.backend %q", c.Index.Backend)
	}
	if c.Index.Name == "" {
		return fmt.Errorf("invalid config: index.name is required")
	}
	if c.Index.BulkSize < 1 {
		return fmt.Errorf("invalid config: index.bulk_size must be positive, got %d", c.Index.BulkSize)
	}
	return nil
}

// DataSourceName returns the DSN handed to database/sql. An explicit DSN wins;
// otherwise a postgres URL is assembled from the connection parameters.
func (d DBConfig) DataSourceName() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	return u.String()
}
